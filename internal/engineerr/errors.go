// Package engineerr defines the error taxonomy shared across the query engine's
// core components. Kinds mirror the original Pythia exception hierarchy
// (MissingParameterException, IllegalSchemaDeclarationException,
// UnknownComparisonException, UnknownHashException, AffinitizationException,
// PageFullException, QueryExecutionError) translated into sentinel errors and
// small wrapping types, per Go convention, rather than panics -- except where
// the design explicitly calls a condition a fatal assertion.
package engineerr

import "fmt"

var (
	// ErrMissingParameter is returned by factories when a required
	// configuration field is absent.
	ErrMissingParameter = fmt.Errorf("missing required parameter")

	// ErrIllegalSchema is returned when a hash or comparator factory is
	// asked to operate over a schema it cannot support (e.g. a composite
	// key for a numeric-only hasher).
	ErrIllegalSchema = fmt.Errorf("illegal schema declaration")

	// ErrUnknownComparison is returned when a comparator factory is asked
	// to dispatch an unknown (type, type, operator) triple.
	ErrUnknownComparison = fmt.Errorf("unknown comparison")

	// ErrUnknownHash is returned when a hash factory is asked to build a
	// hasher by an unrecognized name.
	ErrUnknownHash = fmt.Errorf("unknown hash function")

	// ErrUnknownAlgorithm covers factory dispatch failures outside the
	// hash/comparator families (e.g. an unrecognized operator kind).
	ErrUnknownAlgorithm = fmt.Errorf("unknown algorithm")

	// ErrIllegalStateTransition is returned (and is also the payload of a
	// panic on the fatal-assertion path) when the operator checker
	// observes a transition that violates the thread or object state
	// machine.
	ErrIllegalStateTransition = fmt.Errorf("illegal state transition")

	// ErrEmptyChainRequired is returned by HashTable.Serialize when the
	// table being serialized still has pending overflow chains.
	ErrEmptyChainRequired = fmt.Errorf("serialize requires empty overflow chains")

	// ErrAllocationFailed is the fatal-assertion payload raised when the
	// OS-level allocation path itself fails (mmap/mbind failure). Spec
	// treats this as unrecoverable, so callers panic with it rather than
	// attempt to continue.
	ErrAllocationFailed = fmt.Errorf("numa allocation failed")
)

// AffinitizationError reports an out-of-range or unbound affinity request,
// carrying the offending thread id for diagnostics, mirroring the original's
// AffinitizationException(desc string).
type AffinitizationError struct {
	ThreadID uint16
	Reason   string
}

func (e *AffinitizationError) Error() string {
	return fmt.Sprintf("affinitization failed for thread %d: %s", e.ThreadID, e.Reason)
}

// PageFullError reports that a page could not accommodate a requested
// allocation of the given size, mirroring PageFullException(int value).
type PageFullError struct {
	Requested int
}

func (e *PageFullError) Error() string {
	return fmt.Sprintf("page full: requested %d bytes", e.Requested)
}

// InvalidConfigError wraps a setup-time configuration problem with the field
// that caused it.
type InvalidConfigError struct {
	Field string
	Err   error
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %q: %v", e.Field, e.Err)
}

func (e *InvalidConfigError) Unwrap() error { return e.Err }
