package geostore

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors
var (
	ErrNotFound         = errors.New("record not found")
	ErrStoreUnavailable = errors.New("geometry store unavailable")
)

// classify maps driver failures that mean "the database cannot be reached"
// onto ErrStoreUnavailable. Every other error is returned unchanged.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) ||
		pgconn.Timeout(err) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}
