package ygggo_geopool

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrConfig is the root of every construction-time configuration error.
	ErrConfig = errors.New("ygggo_geopool: invalid configuration")
	// ErrNoRegions is returned when the region list is empty.
	ErrNoRegions = fmt.Errorf("%w: at least one region required", ErrConfig)
	// ErrDuplicateRegion is returned when two regions share a name.
	ErrDuplicateRegion = fmt.Errorf("%w: duplicate region name", ErrConfig)

	ErrPoolNotFound = errors.New("ygggo_geopool: no pool for region")

	// ErrAllPoolsUnavailable is returned by Acquire when every regional pool failed.
	// It wraps the first underlying acquisition error when there is one.
	ErrAllPoolsUnavailable = errors.New("ygggo_geopool: all pools unavailable")
	// ErrRetriesExhausted is returned by WithRetry once the attempt budget is spent.
	ErrRetriesExhausted = errors.New("ygggo_geopool: retries exhausted")

	ErrClosed = errors.New("ygggo_geopool: manager closed")
)

// ErrorClass classifies database errors for retry decisions.
type ErrorClass int

const (
	ErrClassUnknown ErrorClass = iota
	ErrClassRetryable
	ErrClassConflict
	ErrClassReadonly
	ErrClassConstraint
)

func (c ErrorClass) String() string {
	switch c {
	case ErrClassRetryable:
		return "retryable"
	case ErrClassConflict:
		return "conflict"
	case ErrClassReadonly:
		return "readonly"
	case ErrClassConstraint:
		return "constraint"
	default:
		return "unknown"
	}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient flags err as recoverable so WithRetry retries it.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Classify maps driver errors from pgx (CockroachDB/PostgreSQL) and MySQL
// onto an ErrorClass. Context cancellation is never retryable.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrClassUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrClassUnknown
	}

	var te *transientError
	if errors.As(err, &te) {
		return ErrClassRetryable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return classifyMySQL(myErr.Number)
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrClassRetryable
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return ErrClassRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrClassRetryable
	}
	return ErrClassUnknown
}

// IsTransient reports whether retrying the same operation may succeed.
func IsTransient(err error) bool {
	switch Classify(err) {
	case ErrClassRetryable, ErrClassConflict, ErrClassReadonly:
		return true
	default:
		return false
	}
}

func classifySQLState(code string) ErrorClass {
	switch code {
	case "40001", "40P01":
		return ErrClassConflict
	case "25006":
		return ErrClassReadonly
	// 57014 is raised by statement_timeout; re-running the statement hits it again.
	case "57P01", "57P02", "57P03", "53300":
		return ErrClassRetryable
	}
	switch {
	case strings.HasPrefix(code, "08"):
		return ErrClassRetryable
	case strings.HasPrefix(code, "23"):
		return ErrClassConstraint
	}
	return ErrClassUnknown
}

func classifyMySQL(number uint16) ErrorClass {
	switch number {
	case 1213: // ER_LOCK_DEADLOCK
		return ErrClassConflict
	case 1205: // ER_LOCK_WAIT_TIMEOUT
		return ErrClassRetryable
	case 1290, 1792, 1836:
		return ErrClassReadonly
	case 1062, 1451, 1452:
		return ErrClassConstraint
	}
	return ErrClassUnknown
}
