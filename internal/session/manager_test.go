package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/3xecutablefile/terminal-ui/internal/bridge"
	"github.com/3xecutablefile/terminal-ui/internal/bridge/bridgetest"
	"github.com/3xecutablefile/terminal-ui/internal/db"
	"github.com/3xecutablefile/terminal-ui/internal/model"
	"github.com/3xecutablefile/terminal-ui/internal/pty"
	"github.com/3xecutablefile/terminal-ui/internal/recorder"
	"github.com/3xecutablefile/terminal-ui/internal/repository"
)

const testTimeout = 5 * time.Second

type testEnv struct {
	manager *Manager
	repo    *repository.SessionRepository
	spawned chan *bridgetest.EchoSession
	logDir  string
}

func setupTestManager(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	repo := repository.NewSessionRepository(database)

	env := &testEnv{
		repo:    repo,
		spawned: make(chan *bridgetest.EchoSession, 16),
		logDir:  t.TempDir(),
	}
	config := Config{
		LogDir:       env.logDir,
		Record:       true,
		MaxSessions:  5,
		Shell:        pty.ShellPrefs{Shell: "/bin/sh"},
		DrainTimeout: 200 * time.Millisecond,
		Spawner: func(opts pty.StartOptions) (bridge.Session, error) {
			s := bridgetest.NewEchoSession(opts.Cols, opts.Rows)
			env.spawned <- s
			return s, nil
		},
	}
	if mutate != nil {
		mutate(&config)
	}

	env.manager, err = NewManager(repo, config)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() {
		env.manager.Close()
		database.Close()
	})
	return env
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(testTimeout):
		t.Fatal("session did not finish")
	}
}

// TestManager_StartJournalsAndRelays tests the full lifecycle of one session
func TestManager_StartJournalsAndRelays(t *testing.T) {
	env := setupTestManager(t, nil)
	ctx := context.Background()
	transport := bridgetest.NewTransport()

	h, err := env.manager.Start(ctx, transport, 100, 30)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.Session.ID == "" || h.Session.Shell != "/bin/sh" || h.Session.PID == nil {
		t.Errorf("Unexpected record %+v", h.Session)
	}

	got, err := env.manager.Get(ctx, h.Session.ID)
	if err != nil || got.Status != model.SessionStatusRunning || got.Cols != 100 || got.Rows != 30 {
		t.Fatalf("Expected running 100x30 record, got %+v, %v", got, err)
	}
	if env.manager.Active() != 1 {
		t.Errorf("Expected 1 active session, got %d", env.manager.Active())
	}

	transport.Send(`{"t":"i","data":"aGVsbG8="}`)
	transport.Send(`{"t":"r","cols":120,"rows":40}`)
	transport.EndInput()

	exit, output, err := transport.NextExit(testTimeout)
	if err != nil {
		t.Fatalf("NextExit: %v", err)
	}
	if string(output) != "hello" || !exit.Status.Success() {
		t.Errorf("Expected hello and a clean exit, got %q %+v", output, exit.Status)
	}

	waitDone(t, h)
	if status, err := h.Result(); err != nil || status.Code != 0 {
		t.Errorf("Expected clean result, got %+v, %v", status, err)
	}

	got, _ = env.manager.Get(ctx, h.Session.ID)
	if got.Status != model.SessionStatusExited || got.ExitCode == nil || *got.ExitCode != 0 {
		t.Errorf("Expected exited with code 0, got %+v", got)
	}
	if got.Cols != 120 || got.Rows != 40 {
		t.Errorf("Expected journaled resize 120x40, got %dx%d", got.Cols, got.Rows)
	}
	if env.manager.Active() != 0 {
		t.Errorf("Expected no active sessions, got %d", env.manager.Active())
	}
	select {
	case <-transport.Closed():
	default:
		t.Error("Expected transport to be closed")
	}
}

// TestManager_Recording tests that traffic lands in the session's cast file
func TestManager_Recording(t *testing.T) {
	env := setupTestManager(t, nil)
	transport := bridgetest.NewTransport()

	h, err := env.manager.Start(context.Background(), transport, 80, 24)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	transport.Send(`{"t":"i","data":"cGluZw=="}`)
	transport.EndInput()
	waitDone(t, h)

	data, err := os.ReadFile(h.Session.LogFilePath)
	if err != nil {
		t.Fatalf("Expected recording at %s: %v", h.Session.LogFilePath, err)
	}
	header, events, err := recorder.Read(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("recorder.Read: %v", err)
	}
	if header.Width != 80 || header.Height != 24 {
		t.Errorf("Expected 80x24 header, got %dx%d", header.Width, header.Height)
	}

	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.Code+":"+ev.Data)
	}
	joined := strings.Join(kinds, ",")
	if !strings.Contains(joined, "i:ping") || !strings.Contains(joined, "o:ping") {
		t.Errorf("Expected input and output events, got %s", joined)
	}
}

// TestManager_ConcurrencyLimit tests max_sessions
func TestManager_ConcurrencyLimit(t *testing.T) {
	env := setupTestManager(t, func(c *Config) { c.MaxSessions = 2 })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := env.manager.Start(ctx, bridgetest.NewTransport(), 80, 24); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
	}
	if _, err := env.manager.Start(ctx, bridgetest.NewTransport(), 80, 24); !errors.Is(err, model.ErrConcurrencyLimit) {
		t.Errorf("Expected ErrConcurrencyLimit, got %v", err)
	}
	if len(env.spawned) != 2 {
		t.Errorf("Expected no spawn past the limit, got %d", len(env.spawned))
	}
}

// TestManager_InvalidSize tests zero dimensions
func TestManager_InvalidSize(t *testing.T) {
	env := setupTestManager(t, nil)
	if _, err := env.manager.Start(context.Background(), bridgetest.NewTransport(), 0, 24); !errors.Is(err, model.ErrInvalidSize) {
		t.Errorf("Expected ErrInvalidSize, got %v", err)
	}
}

// TestManager_SpawnFailure tests that a failed spawn leaves no record
func TestManager_SpawnFailure(t *testing.T) {
	spawnErr := &pty.SpawnError{Op: "start process", Command: "/bin/sh", Err: os.ErrNotExist}
	env := setupTestManager(t, func(c *Config) {
		c.Spawner = func(pty.StartOptions) (bridge.Session, error) { return nil, spawnErr }
	})
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, bridgetest.NewTransport(), 80, 24); !errors.Is(err, spawnErr) {
		t.Errorf("Expected spawn error, got %v", err)
	}
	sessions, _ := env.manager.List(ctx, "")
	if len(sessions) != 0 {
		t.Errorf("Expected empty journal, got %d records", len(sessions))
	}
}

// TestManager_Terminate tests that termination signals the child
func TestManager_Terminate(t *testing.T) {
	env := setupTestManager(t, nil)
	ctx := context.Background()

	h, err := env.manager.Start(ctx, bridgetest.NewTransport(), 80, 24)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	child := <-env.spawned

	tctx, cancel := context.WithTimeout(ctx, testTimeout)
	defer cancel()
	if err := env.manager.Terminate(tctx, h.Session.ID); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	if sigs := child.Signals(); len(sigs) != 1 || sigs[0] != "TERM" {
		t.Errorf("Expected TERM, got %v", sigs)
	}
	got, _ := env.manager.Get(ctx, h.Session.ID)
	if got.Signal != "SIGTERM" || got.ExitCode == nil || *got.ExitCode != 1 {
		t.Errorf("Expected SIGTERM exit journaled, got %+v", got)
	}

	if err := env.manager.Terminate(tctx, h.Session.ID); !errors.Is(err, model.ErrSessionNotRunning) {
		t.Errorf("Expected ErrSessionNotRunning, got %v", err)
	}
}

// TestManager_ProtocolErrorFails tests that a malformed request fails the session
func TestManager_ProtocolErrorFails(t *testing.T) {
	env := setupTestManager(t, nil)
	transport := bridgetest.NewTransport()

	h, err := env.manager.Start(context.Background(), transport, 80, 24)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	child := <-env.spawned
	transport.Send(`{"t":"z"}`)
	waitDone(t, h)

	_, runErr := h.Result()
	var perr *bridge.ProtocolError
	if !errors.As(runErr, &perr) {
		t.Errorf("Expected ProtocolError, got %v", runErr)
	}
	if !child.Released() {
		t.Error("Expected child to be released")
	}
	got, _ := env.manager.Get(context.Background(), h.Session.ID)
	if got.Status != model.SessionStatusFailed {
		t.Errorf("Expected failed, got %s", got.Status)
	}
}

// TestManager_Delete tests removal of live and finished sessions
func TestManager_Delete(t *testing.T) {
	env := setupTestManager(t, nil)
	ctx := context.Background()

	h, err := env.manager.Start(ctx, bridgetest.NewTransport(), 80, 24)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	dctx, cancel := context.WithTimeout(ctx, testTimeout)
	defer cancel()
	if err := env.manager.Delete(dctx, h.Session.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	waitDone(t, h)

	if _, err := env.manager.Get(ctx, h.Session.ID); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if _, err := os.Stat(h.Session.LogFilePath); !os.IsNotExist(err) {
		t.Errorf("Expected recording removed, got %v", err)
	}
	if err := env.manager.Delete(dctx, h.Session.ID); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound on second delete, got %v", err)
	}
}

// TestManager_Close tests that Close ends every session
func TestManager_Close(t *testing.T) {
	env := setupTestManager(t, nil)
	ctx := context.Background()

	var handles []*Handle
	for i := 0; i < 3; i++ {
		h, err := env.manager.Start(ctx, bridgetest.NewTransport(), 80, 24)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		handles = append(handles, h)
	}

	env.manager.Close()
	for _, h := range handles {
		waitDone(t, h)
	}
	if _, err := env.manager.Start(ctx, bridgetest.NewTransport(), 80, 24); err == nil {
		t.Error("Expected Start to fail after Close")
	}

	running, _ := env.manager.List(ctx, model.SessionStatusRunning)
	if len(running) != 0 {
		t.Errorf("Expected no running records, got %d", len(running))
	}
}
