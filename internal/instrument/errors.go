package instrument

import (
	"errors"
	"fmt"
)

var (
	// ErrCatalogLoad is wrapped by every *LoadError.
	ErrCatalogLoad = errors.New("catalog load failed")
	// ErrNotFound is returned when no catalog row matches a query.
	ErrNotFound = errors.New("instrument not found")
	// ErrAmbiguousMatch is returned when more than one row matches a query
	// that must identify exactly one instrument.
	ErrAmbiguousMatch = errors.New("ambiguous instrument match")
	// ErrInvalidQuery is returned for queries that can never match, such as an
	// option lookup with a futures instrument type.
	ErrInvalidQuery = errors.New("invalid instrument query")
)

// LoadError describes why the master could not be turned into a catalog.
// Row is the zero-based record index, or -1 when the failure is not tied to a row.
type LoadError struct {
	Row    int
	Field  string
	Reason string
}

func (e *LoadError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("catalog load: %s", e.Reason)
	}
	return fmt.Sprintf("catalog load: row %d: %s: %s", e.Row, e.Field, e.Reason)
}

func (e *LoadError) Unwrap() error { return ErrCatalogLoad }

// ResolveError carries the failed query alongside the cause.
type ResolveError struct {
	Op      string
	Query   Query
	Matches int
	Err     error
}

func (e *ResolveError) Error() string {
	if errors.Is(e.Err, ErrAmbiguousMatch) {
		return fmt.Sprintf("%s %s: %v (%d rows)", e.Op, e.Query, e.Err, e.Matches)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Query, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }
