package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/3xecutablefile/terminal-ui/internal/db"
	"github.com/3xecutablefile/terminal-ui/internal/model"
	"github.com/3xecutablefile/terminal-ui/internal/pty"
	"github.com/3xecutablefile/terminal-ui/internal/repository"
)

// journal records this daemon's session in a SQLite database. A nil
// journal ignores every call.
type journal struct {
	repo *repository.SessionRepository
	id   string
	log  logrus.FieldLogger
}

func openJournal(path string, opts pty.StartOptions, pid int, log logrus.FieldLogger) (*journal, error) {
	database, err := db.InitDB(path)
	if err != nil {
		return nil, err
	}

	j := &journal{
		repo: repository.NewSessionRepository(database),
		id:   uuid.New().String(),
	}
	j.log = log.WithField("session", j.id)

	err = j.repo.Create(context.Background(), &model.Session{
		ID:     j.id,
		Shell:  opts.Command,
		Args:   opts.Args,
		Cols:   int(opts.Cols),
		Rows:   int(opts.Rows),
		PID:    &pid,
		Status: model.SessionStatusRunning,
	})
	if err != nil {
		db.CloseDB()
		return nil, err
	}
	return j, nil
}

func (j *journal) resized(cols, rows uint16) {
	if j == nil {
		return
	}
	if err := j.repo.UpdateSize(context.Background(), j.id, int(cols), int(rows)); err != nil {
		j.log.WithError(err).Warn("failed to journal resize")
	}
}

func (j *journal) exited(status pty.ExitStatus) {
	j.finish(model.SessionStatusExited, status)
}

func (j *journal) failed() {
	j.finish(model.SessionStatusFailed, pty.ExitStatus{Code: 1})
}

func (j *journal) finish(state model.SessionStatus, status pty.ExitStatus) {
	if j == nil {
		return
	}
	code := int(status.Code)
	if err := j.repo.UpdateStatus(context.Background(), j.id, state, &code, status.Signal); err != nil {
		j.log.WithError(err).Warn("failed to journal exit")
	}
}

func (j *journal) close() {
	if j != nil {
		db.CloseDB()
	}
}
