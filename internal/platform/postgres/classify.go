package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"dropin/pkg/platform/sentinel"
)

// Classify maps driver errors onto store sentinels. Context errors pass
// through unchanged so the caller can tell abandonment from failure.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	if code := sqlState(err); code != "" {
		switch {
		case code == "40001" || code == "40P01":
			return fmt.Errorf("%s: %w: %w", op, sentinel.ErrConflict, err)
		case code == "23505":
			return fmt.Errorf("%s: %w: %w", op, sentinel.ErrAlreadyUsed, err)
		case code == "23503":
			return fmt.Errorf("%s: %w: %w", op, sentinel.ErrNotFound, err)
		case strings.HasPrefix(code, "08"), code == "57P01", code == "57P03":
			return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	var connectErr *pgconn.ConnectError
	if errors.As(err, &netErr) || errors.As(err, &connectErr) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// sqlState extracts the SQLSTATE from either registered driver.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
