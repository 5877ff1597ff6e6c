// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedsql

import (
	"context"
	"database/sql"
	"fmt"
)

// SessionState is the lifecycle state of a [Session].
type SessionState int

const (
	// SessionUnopened sessions have not acquired a connection yet.
	SessionUnopened SessionState = iota
	// SessionOpen sessions hold a connection, and a transaction if they
	// are transactional.
	SessionOpen
	// SessionClosed sessions have released their connection. They cannot
	// be used again.
	SessionClosed
)

func (st SessionState) String() string {
	switch st {
	case SessionUnopened:
		return "unopened"
	case SessionOpen:
		return "open"
	case SessionClosed:
		return "closed"
	}
	return fmt.Sprintf("SessionState(%d)", int(st))
}

// TXOptions holds the transaction options to be used in [InTransaction].
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}

// Session is a scope of work on a datastore. Every statement run in the
// scope of a session uses the same connection, which is acquired when the
// first statement runs and released when the outermost scope ends. A
// session is carried by the context passed to the scope body and must not
// be used by more than one goroutine at a time.
type Session struct {
	id int64
	ds *Datastore
	// ctx is the context of the outermost scope. The connection and the
	// transaction are bound to it.
	ctx   context.Context
	depth int
	state SessionState

	transactional bool
	txOpts        *TXOptions

	conn *sql.Conn
	tx   *sql.Tx

	stmts *stmtCache
	// results are the results of the session that are not closed yet.
	results map[*Result]struct{}
}

type sessionKey struct {
	ds *Datastore
}

// SessionFromContext returns the active session of ds carried by ctx.
func SessionFromContext(ctx context.Context, ds *Datastore) (*Session, bool) {
	s := sessionFromContext(ctx, ds)
	if s == nil || s.state == SessionClosed {
		return nil, false
	}
	return s, true
}

func sessionFromContext(ctx context.Context, ds *Datastore) *Session {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(sessionKey{ds: ds}).(*Session)
	return s
}

// activeSession returns the session of ds a statement must run in.
func activeSession(ctx context.Context, ds *Datastore) (*Session, error) {
	s := sessionFromContext(ctx, ds)
	if s == nil {
		return nil, ErrNoSession
	}
	if s.state == SessionClosed {
		return nil, ErrSessionClosed
	}
	return s, nil
}

// Depth returns the number of nested scopes currently using the session.
func (s *Session) Depth() int {
	return s.depth
}

// State returns the lifecycle state of the session.
func (s *Session) State() SessionState {
	return s.state
}

// Transactional reports whether the work of the session runs in a
// transaction.
func (s *Session) Transactional() bool {
	return s.transactional
}

// InSession runs body in a session of ds and returns its result. If ctx
// already carries an active session of ds, body runs in that session;
// otherwise a new session is started and ended when body returns. Ending a
// session closes its results and prepared statements and releases its
// connection, whether body succeeds, fails or panics.
func InSession[T any](ctx context.Context, ds *Datastore, body func(context.Context) (T, error)) (T, error) {
	var out T
	err := ds.run(ctx, false, nil, func(ctx context.Context) error {
		var err error
		out, err = body(ctx)
		return err
	})
	return out, err
}

// InTransaction is the same as [InSession] except that a new session runs
// its work in a transaction. The transaction is committed when body
// succeeds and rolled back when it fails or panics; the error of body is
// returned unchanged. If ctx already carries an active session of ds, body
// joins it as is and no new transaction is started.
func InTransaction[T any](ctx context.Context, ds *Datastore, opts *TXOptions, body func(context.Context) (T, error)) (T, error) {
	var out T
	err := ds.run(ctx, true, opts, func(ctx context.Context) error {
		var err error
		out, err = body(ctx)
		return err
	})
	return out, err
}

// Run is the same as [InSession] for a body without result.
func (ds *Datastore) Run(ctx context.Context, body func(context.Context) error) error {
	return ds.run(ctx, false, nil, body)
}

// RunTx is the same as [InTransaction] for a body without result.
func (ds *Datastore) RunTx(ctx context.Context, opts *TXOptions, body func(context.Context) error) error {
	return ds.run(ctx, true, opts, body)
}

func (ds *Datastore) run(ctx context.Context, transactional bool, opts *TXOptions, body func(context.Context) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if body == nil {
		return fmt.Errorf("%w: nil session body", ErrSession)
	}
	if s, ok := SessionFromContext(ctx, ds); ok {
		s.depth++
		defer func() { s.depth-- }()
		return body(ctx)
	}

	ds.Init()
	s := &Session{
		id:            ds.nextSessionID(),
		ds:            ds,
		ctx:           ctx,
		depth:         1,
		transactional: transactional,
		txOpts:        opts,
		stmts:         newStmtCache(),
		results:       map[*Result]struct{}{},
	}
	defer func() {
		r := recover()
		endErr := s.end(err != nil || r != nil)
		if r != nil {
			panic(r)
		}
		if err == nil {
			err = endErr
		}
	}()
	return body(context.WithValue(ctx, sessionKey{ds: ds}, s))
}

// substrate returns the object statements are prepared on, opening the
// session first if needed.
func (s *Session) substrate() (prepareSubstrate, error) {
	if err := s.open(); err != nil {
		return nil, err
	}
	if s.tx != nil {
		return s.tx, nil
	}
	return s.conn, nil
}

// open acquires the connection of the session, and begins its transaction
// if it is transactional.
func (s *Session) open() error {
	switch s.state {
	case SessionOpen:
		return nil
	case SessionClosed:
		return ErrSessionClosed
	}
	conn, err := s.ds.db.Conn(s.ctx)
	if err != nil {
		return err
	}
	if s.transactional {
		tx, err := conn.BeginTx(s.ctx, s.txOpts.plainTXOptions())
		if err != nil {
			conn.Close()
			return err
		}
		s.tx = tx
	}
	s.conn = conn
	s.state = SessionOpen
	s.ds.logger.Debug("session: opened", "session", s.id, "transactional", s.transactional)
	return nil
}

// end releases everything held by the session. The transaction, if any, is
// rolled back when failed is true and committed otherwise. The returned
// error is the commit error, or else the first cleanup error.
func (s *Session) end(failed bool) error {
	if s.state != SessionOpen {
		s.state = SessionClosed
		return nil
	}
	logger := s.ds.logger

	var cleanupErr error
	for r := range s.results {
		if err := r.release(); err != nil && cleanupErr == nil {
			cleanupErr = err
		}
	}
	if err := s.stmts.closeAll(); err != nil {
		logger.Warn("session: cannot close statements", "session", s.id, "err", err)
		if cleanupErr == nil {
			cleanupErr = err
		}
	}

	var txErr error
	if s.tx != nil {
		if failed {
			if err := s.tx.Rollback(); err != nil {
				logger.Warn("session: cannot roll back", "session", s.id, "err", err)
			} else {
				logger.Debug("session: rolled back", "session", s.id)
			}
		} else {
			txErr = s.tx.Commit()
			if txErr != nil {
				logger.Debug("session: commit failed", "session", s.id, "err", txErr)
			} else {
				logger.Debug("session: committed", "session", s.id)
			}
		}
		s.tx = nil
	}

	if err := s.conn.Close(); err != nil {
		logger.Warn("session: cannot close connection", "session", s.id, "err", err)
		if cleanupErr == nil {
			cleanupErr = err
		}
	}
	s.conn = nil
	s.state = SessionClosed
	logger.Debug("session: closed", "session", s.id)

	if txErr != nil {
		return txErr
	}
	return cleanupErr
}
