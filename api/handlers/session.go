// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/3xecutablefile/terminal-ui/internal/model"
	"github.com/3xecutablefile/terminal-ui/internal/recorder"
	"github.com/3xecutablefile/terminal-ui/internal/session"
	"github.com/3xecutablefile/terminal-ui/internal/term"
)

// SessionHandler handles HTTP requests for the session journal.
type SessionHandler struct {
	sessionManager *session.Manager
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionManager *session.Manager) *SessionHandler {
	return &SessionHandler{
		sessionManager: sessionManager,
	}
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID          string   `json:"id"`
	Shell       string   `json:"shell"`
	Args        []string `json:"args,omitempty"`
	Cols        int      `json:"cols"`
	Rows        int      `json:"rows"`
	Status      string   `json:"status"`
	ExitCode    *int     `json:"exitCode,omitempty"`
	Signal      string   `json:"signal,omitempty"`
	PID         *int     `json:"pid,omitempty"`
	LogFilePath string   `json:"logFilePath,omitempty"`
	Duration    string   `json:"duration"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// ScreenResponse is a recording replayed onto a terminal grid.
type ScreenResponse struct {
	Cols   int      `json:"cols"`
	Rows   int      `json:"rows"`
	Lines  []string `json:"lines"`
	Cursor [2]int   `json:"cursor"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func toSessionResponse(s *model.Session) *SessionResponse {
	return &SessionResponse{
		ID:          s.ID,
		Shell:       s.Shell,
		Args:        s.Args,
		Cols:        s.Cols,
		Rows:        s.Rows,
		Status:      string(s.Status),
		ExitCode:    s.ExitCode,
		Signal:      s.Signal,
		PID:         s.PID,
		LogFilePath: s.LogFilePath,
		Duration:    formatDuration(s.Duration()),
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   s.UpdatedAt.Format(time.RFC3339),
	}
}

// formatDuration rounds to whole seconds.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// lookup loads the session named by the :id parameter, writing the error
// response itself when that fails.
func (h *SessionHandler) lookup(c *gin.Context) (*model.Session, bool) {
	sessionID := c.Param("id")
	if sessionID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Session ID is required")
		return nil, false
	}

	sess, err := h.sessionManager.Get(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
			return nil, false
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get session: "+err.Error())
		return nil, false
	}
	return sess, true
}

// List handles GET /api/sessions - lists journaled sessions, newest first.
// An optional ?status= filters by lifecycle state.
func (h *SessionHandler) List(c *gin.Context) {
	status := model.SessionStatus(c.Query("status"))
	switch status {
	case "", model.SessionStatusRunning, model.SessionStatusExited, model.SessionStatusFailed:
	default:
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown status "+string(status))
		return
	}

	sessions, err := h.sessionManager.List(c.Request.Context(), status)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list sessions: "+err.Error())
		return
	}

	response := make([]*SessionResponse, len(sessions))
	for i, sess := range sessions {
		response[i] = toSessionResponse(sess)
	}
	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/sessions/:id - gets a specific session.
func (h *SessionHandler) Get(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(sess))
}

// Delete handles DELETE /api/sessions/:id - terminates the session if it
// is still running and removes it from the journal.
func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.sessionManager.Delete(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete session: "+err.Error())
		return
	}

	c.Status(http.StatusNoContent)
}

// GetLogs handles GET /api/sessions/:id/logs - downloads the asciicast
// recording. With ?format=screen the recording is replayed onto a grid of
// its recorded size and the final screen is returned instead.
func (h *SessionHandler) GetLogs(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	if sess.LogFilePath == "" {
		sendError(c, http.StatusNotFound, "LOG_NOT_FOUND", "Log file not found for session "+sess.ID)
		return
	}

	file, err := os.Open(sess.LogFilePath)
	if err != nil {
		sendError(c, http.StatusNotFound, "LOG_NOT_FOUND", "Log file not found for session "+sess.ID)
		return
	}
	defer file.Close()

	if c.Query("format") != "screen" {
		c.Header("Content-Type", "application/x-asciicast")
		c.Header("Content-Disposition", "attachment; filename="+sess.ID+".cast")
		c.File(sess.LogFilePath)
		return
	}

	header, events, err := recorder.Read(file)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read log: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, screenResponse(recorder.Replay(header, events)))
}

func screenResponse(t *term.Terminal) *ScreenResponse {
	snap := t.Snapshot()
	return &ScreenResponse{
		Cols:   snap.Cols,
		Rows:   snap.Rows,
		Lines:  snap.Lines(),
		Cursor: [2]int{snap.Cursor.Col, snap.Cursor.Row},
	}
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.GET("", h.List)
		sessions.GET("/:id", h.Get)
		sessions.DELETE("/:id", h.Delete)
		sessions.GET("/:id/logs", h.GetLogs)
	}
}
