package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
)

var (
	// ErrAlreadyExists is returned when a create hits an existing record id.
	// Page ids derive from conversation ids and done ids from event ids, so
	// duplicates surface here.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrTransactionConflict is returned when concurrent writers touched the
	// same records. The write may be retried.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// queryErrorKinds maps SurrealDB query error text to sentinels.
var queryErrorKinds = []struct {
	fragment string
	sentinel error
}{
	{"already exists", ErrAlreadyExists},
	{"Transaction conflict", ErrTransactionConflict},
	{"transaction conflict", ErrTransactionConflict},
}

// wrapQueryError tags known SurrealDB query errors with a sentinel so
// callers can use errors.Is. Anything else is returned as is.
func wrapQueryError(err error) error {
	var qe *surrealdb.QueryError
	if !errors.As(err, &qe) {
		return err
	}
	for _, k := range queryErrorKinds {
		if strings.Contains(qe.Message, k.fragment) {
			return fmt.Errorf("%w: %s", k.sentinel, qe.Message)
		}
	}
	return err
}

// conflictAttempts bounds how often a write that lost a transaction
// conflict is re-executed. An aborted transaction wrote nothing.
const conflictAttempts = 3

var conflictBackoff = 50 * time.Millisecond

// retryOnConflict runs write until it returns something other than
// ErrTransactionConflict or the attempts are used up.
func retryOnConflict(ctx context.Context, write func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = write()
		if !errors.Is(err, ErrTransactionConflict) || attempt == conflictAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * conflictBackoff):
		}
	}
}

// queryWithRetry runs a write query, re-running it on transaction
// conflicts. Errors are already mapped through wrapQueryError.
func queryWithRetry[T any](ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) (*[]surrealdb.QueryResult[T], error) {
	var results *[]surrealdb.QueryResult[T]
	err := retryOnConflict(ctx, func() error {
		var err error
		results, err = surrealdb.Query[T](ctx, db, sql, vars)
		return wrapQueryError(err)
	})
	return results, err
}
