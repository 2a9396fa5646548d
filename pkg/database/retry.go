package database

import (
	"context"
	"database/sql/driver"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	retryBaseDelay = 10 * time.Millisecond
	retryMaxDelay  = 1 * time.Second
)

// isBusyError reports whether the error is a transient SQLite lock error
// worth retrying.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// retryWithBackoff runs fn until it succeeds, fails with a non-busy error, or
// the attempts are exhausted. Delay doubles between attempts.
func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var err error
	delay := retryBaseDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn()
		if err == nil || !isBusyError(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}

	return err
}

// retryConnector wraps a driver.Connector so that every connection it hands
// out retries busy errors transparently.
type retryConnector struct {
	inner      driver.Connector
	maxRetries int
}

func newRetryConnector(inner driver.Connector, maxRetries int) *retryConnector {
	return &retryConnector{inner: inner, maxRetries: maxRetries}
}

func (c *retryConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.inner.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &retryConn{inner: conn, maxRetries: c.maxRetries}, nil
}

func (c *retryConnector) Driver() driver.Driver {
	return c.inner.Driver()
}

// retryConn wraps a driver.Conn and retries Exec and Query calls on busy
// errors. Prepared statements go through retryStmt.
type retryConn struct {
	inner      driver.Conn
	maxRetries int
}

func (c *retryConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.inner.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &retryStmt{inner: stmt, maxRetries: c.maxRetries}, nil
}

func (c *retryConn) Close() error {
	return c.inner.Close()
}

func (c *retryConn) Begin() (driver.Tx, error) {
	return c.inner.Begin() //nolint:staticcheck
}

func (c *retryConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if tc, ok := c.inner.(driver.ConnBeginTx); ok {
		var tx driver.Tx
		err := retryWithBackoff(ctx, c.maxRetries, func() error {
			var err error
			tx, err = tc.BeginTx(ctx, opts)
			return err
		})
		return tx, err
	}
	return c.inner.Begin() //nolint:staticcheck
}

func (c *retryConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if pc, ok := c.inner.(driver.ConnPrepareContext); ok {
		stmt, err := pc.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		return &retryStmt{inner: stmt, maxRetries: c.maxRetries}, nil
	}
	return c.Prepare(query)
}

func (c *retryConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	ec, ok := c.inner.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	var result driver.Result
	err := retryWithBackoff(ctx, c.maxRetries, func() error {
		var err error
		result, err = ec.ExecContext(ctx, query, args)
		return err
	})
	return result, err
}

func (c *retryConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	qc, ok := c.inner.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	var rows driver.Rows
	err := retryWithBackoff(ctx, c.maxRetries, func() error {
		var err error
		rows, err = qc.QueryContext(ctx, query, args)
		return err
	})
	return rows, err
}

// retryStmt wraps a driver.Stmt and retries execution on busy errors.
type retryStmt struct {
	inner      driver.Stmt
	maxRetries int
}

func (s *retryStmt) Close() error {
	return s.inner.Close()
}

func (s *retryStmt) NumInput() int {
	return s.inner.NumInput()
}

func (s *retryStmt) Exec(args []driver.Value) (driver.Result, error) {
	var result driver.Result
	err := retryWithBackoff(context.Background(), s.maxRetries, func() error {
		var err error
		result, err = s.inner.Exec(args) //nolint:staticcheck
		return err
	})
	return result, err
}

func (s *retryStmt) Query(args []driver.Value) (driver.Rows, error) {
	var rows driver.Rows
	err := retryWithBackoff(context.Background(), s.maxRetries, func() error {
		var err error
		rows, err = s.inner.Query(args) //nolint:staticcheck
		return err
	})
	return rows, err
}

func (s *retryStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if ec, ok := s.inner.(driver.StmtExecContext); ok {
		var result driver.Result
		err := retryWithBackoff(ctx, s.maxRetries, func() error {
			var err error
			result, err = ec.ExecContext(ctx, args)
			return err
		})
		return result, err
	}
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg.Value
	}
	return s.Exec(values)
}

func (s *retryStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if qc, ok := s.inner.(driver.StmtQueryContext); ok {
		var rows driver.Rows
		err := retryWithBackoff(ctx, s.maxRetries, func() error {
			var err error
			rows, err = qc.QueryContext(ctx, args)
			return err
		})
		return rows, err
	}
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg.Value
	}
	return s.Query(values)
}
