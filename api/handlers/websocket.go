package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/3xecutablefile/terminal-ui/internal/logging"
	"github.com/3xecutablefile/terminal-ui/internal/model"
	"github.com/3xecutablefile/terminal-ui/internal/session"
	"github.com/3xecutablefile/terminal-ui/internal/ws"
)

// WebSocketHandler spawns a session per WebSocket connection.
type WebSocketHandler struct {
	sessionManager *session.Manager
	defaultCols    int
	defaultRows    int
	log            logrus.FieldLogger
}

// NewWebSocketHandler creates a new WebSocketHandler. Attach requests
// without a size get defaultCols x defaultRows.
func NewWebSocketHandler(sessionManager *session.Manager, defaultCols, defaultRows int, log logrus.FieldLogger) *WebSocketHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &WebSocketHandler{
		sessionManager: sessionManager,
		defaultCols:    defaultCols,
		defaultRows:    defaultRows,
		log:            log,
	}
}

// Attach handles GET /api/attach?cols=&rows= - upgrades to WebSocket and
// runs a new shell over it until the shell exits or the client goes away.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	var req model.AttachRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid size: "+err.Error())
		return
	}
	if err := req.Validate(h.defaultCols, h.defaultRows); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	conn, err := ws.Upgrade(c.Writer, c.Request, h.log)
	if err != nil {
		// The upgrader has already replied.
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	handle, err := h.sessionManager.Start(c.Request.Context(), conn, uint16(req.Cols), uint16(req.Rows))
	if err != nil {
		code := websocket.CloseInternalServerErr
		if errors.Is(err, model.ErrConcurrencyLimit) {
			code = websocket.CloseTryAgainLater
		}
		h.log.WithError(err).Warn("attach rejected")
		conn.Reject(code, err.Error())
		return
	}

	h.log.WithField("session", handle.Session.ID).Info("client attached")
}

// RegisterRoutes registers the WebSocket handler routes on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/attach", h.Attach)
}
