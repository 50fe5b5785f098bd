package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/3xecutablefile/terminal-ui/internal/bridge"
	"github.com/3xecutablefile/terminal-ui/internal/logging"
	"github.com/3xecutablefile/terminal-ui/internal/model"
	"github.com/3xecutablefile/terminal-ui/internal/pty"
	"github.com/3xecutablefile/terminal-ui/internal/recorder"
	"github.com/3xecutablefile/terminal-ui/internal/repository"
)

// Spawner starts the child for a new session.
type Spawner func(opts pty.StartOptions) (bridge.Session, error)

// SpawnPTY is the Spawner backed by a real pseudo-terminal.
func SpawnPTY(opts pty.StartOptions) (bridge.Session, error) {
	s, err := pty.SpawnCommand(opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Config holds configuration for the session manager.
type Config struct {
	// LogDir receives one asciicast recording per session when Record is set.
	LogDir string
	Record bool

	MaxSessions int
	Shell       pty.ShellPrefs

	ReadBufferSize int
	DrainTimeout   time.Duration

	Spawner Spawner
	Logger  logrus.FieldLogger
}

// Manager runs bridge daemons for attached clients and journals them.
type Manager struct {
	repo   *repository.SessionRepository
	config Config
	log    logrus.FieldLogger

	mu       sync.Mutex
	closed   bool
	sessions map[string]*Handle
	wg       sync.WaitGroup
}

// Handle is a running session.
type Handle struct {
	Session *model.Session

	cancel context.CancelFunc
	done   chan struct{}
	status pty.ExitStatus
	err    error
}

// Done is closed once the daemon has returned and the journal is updated.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the child's exit status and the daemon's error. It is
// valid after Done is closed.
func (h *Handle) Result() (pty.ExitStatus, error) {
	<-h.done
	return h.status, h.err
}

// NewManager creates a new session manager.
func NewManager(repo *repository.SessionRepository, config Config) (*Manager, error) {
	if config.MaxSessions <= 0 {
		config.MaxSessions = 10
	}
	if config.Spawner == nil {
		config.Spawner = SpawnPTY
	}
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	if config.Record {
		if config.LogDir == "" {
			return nil, errors.New("recording requires a log directory")
		}
		if err := os.MkdirAll(config.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return &Manager{
		repo:     repo,
		config:   config,
		log:      config.Logger,
		sessions: make(map[string]*Handle),
	}, nil
}

// Start spawns a shell of the given size and relays it over transport until
// the child exits, the transport ends, or the session is terminated. The
// transport is closed when the daemon returns.
func (m *Manager) Start(ctx context.Context, transport bridge.Transport, cols, rows uint16) (*Handle, error) {
	if cols == 0 || rows == 0 {
		return nil, model.ErrInvalidSize
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("session manager is closed")
	}

	active, err := m.repo.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}
	if active >= m.config.MaxSessions {
		return nil, model.ErrConcurrencyLimit
	}

	id := uuid.New().String()
	log := m.log.WithField("session", id)

	opts := pty.ShellOptions(cols, rows, m.config.Shell)
	child, err := m.config.Spawner(opts)
	if err != nil {
		return nil, err
	}

	pid := child.PID()
	record := &model.Session{
		ID:     id,
		Shell:  opts.Command,
		Args:   opts.Args,
		Cols:   int(cols),
		Rows:   int(rows),
		PID:    &pid,
		Status: model.SessionStatusRunning,
	}

	var rec *recorder.Recorder
	if m.config.Record {
		record.LogFilePath = filepath.Join(m.config.LogDir, id+".cast")
		rec, err = recorder.Create(record.LogFilePath, int(cols), int(rows), map[string]string{
			"SHELL": opts.Command,
			"TERM":  "xterm-256color",
		})
		if err != nil {
			log.WithError(err).Warn("recording disabled")
			record.LogFilePath = ""
			rec = nil
		}
	}

	if err := m.repo.Create(ctx, record); err != nil {
		abandon(child)
		if rec != nil {
			rec.Close()
			os.Remove(record.LogFilePath)
		}
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	daemonOpts := bridge.Options{
		ReadBufferSize: m.config.ReadBufferSize,
		DrainTimeout:   m.config.DrainTimeout,
		Logger:         log,
		ExitWithChild:  true,
		OnResize: func(cols, rows uint16) {
			if err := m.repo.UpdateSize(context.Background(), id, int(cols), int(rows)); err != nil {
				log.WithError(err).Warn("failed to journal resize")
			}
		},
	}
	if rec != nil {
		daemonOpts.Recorder = rec
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		Session: record,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.sessions[id] = h
	m.wg.Add(1)

	log.WithFields(logrus.Fields{"pid": pid, "shell": opts.Command, "cols": cols, "rows": rows}).Info("session started")

	go m.run(runCtx, h, bridge.NewDaemon(child, transport, daemonOpts), child, transport, rec, log)
	return h, nil
}

func (m *Manager) run(ctx context.Context, h *Handle, d *bridge.Daemon, child bridge.Session, transport bridge.Transport, rec *recorder.Recorder, log logrus.FieldLogger) {
	defer m.wg.Done()
	defer h.cancel()

	status, err := d.Run(ctx)
	transport.Close()

	journalStatus := model.SessionStatusExited
	if err != nil {
		// The daemon gave up before the child exited.
		log.WithError(err).Warn("session ended abnormally")
		journalStatus = model.SessionStatusFailed
		abandon(child)
		status, _ = child.Wait()
	}
	if rec != nil {
		if cerr := rec.Close(); cerr != nil {
			log.WithError(cerr).Warn("failed to close recording")
		}
	}

	code := int(status.Code)
	if uerr := m.repo.UpdateStatus(context.Background(), h.Session.ID, journalStatus, &code, status.Signal); uerr != nil {
		log.WithError(uerr).Warn("failed to journal exit")
	}

	m.mu.Lock()
	delete(m.sessions, h.Session.ID)
	m.mu.Unlock()

	log.WithFields(logrus.Fields{"code": status.Code, "signal": status.Signal, "outputs": d.OutputCount()}).Info("session ended")

	h.status, h.err = status, err
	close(h.done)
}

func abandon(child bridge.Session) {
	child.Kill()
	child.Release()
}

// Get returns the journal record of a session.
func (m *Manager) Get(ctx context.Context, id string) (*model.Session, error) {
	return m.repo.GetByID(ctx, id)
}

// List returns journaled sessions, newest first, optionally filtered by status.
func (m *Manager) List(ctx context.Context, status model.SessionStatus) ([]*model.Session, error) {
	return m.repo.List(ctx, status)
}

// Active returns the number of sessions this manager is running.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Terminate asks a running session to end and waits until it has, or
// until ctx is done.
func (m *Manager) Terminate(ctx context.Context, id string) error {
	m.mu.Lock()
	h, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return model.ErrSessionNotRunning
	}

	h.cancel()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delete terminates the session if it is running, then removes its journal
// record and recording.
func (m *Manager) Delete(ctx context.Context, id string) error {
	record, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := m.Terminate(ctx, id); err != nil && !errors.Is(err, model.ErrSessionNotRunning) {
		return err
	}

	if err := m.repo.Delete(ctx, id); err != nil {
		return err
	}
	if record.LogFilePath != "" {
		if err := os.Remove(record.LogFilePath); err != nil && !os.IsNotExist(err) {
			m.log.WithError(err).WithField("session", id).Warn("failed to remove recording")
		}
	}
	return nil
}

// Close terminates every running session and waits for them to finish.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	for _, h := range m.sessions {
		h.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}
