// Package operator defines the seven-call lifecycle protocol every node in
// the execution tree honors, its result codes, and the object/thread state
// machines the checker wrapper (see internal/operator/checker) enforces.
//
// Grounded on original_source/operators/checker_callstate.cpp for the exact
// state machine and on the teacher's internal/acceleration/manager.go for
// the Go lifecycle-method surface shape (NewX/Initialize/GetStats).
package operator

import (
	"context"

	"github.com/sblanas/pythia-sub001/engine/page"
	"github.com/sblanas/pythia-sub001/engine/schema"
)

// ResultCode is returned by Operator lifecycle calls.
type ResultCode int

const (
	// Ready indicates a page was produced and contains at least one
	// tuple; the caller may consume it and call GetNext again.
	Ready ResultCode = iota
	// Finished indicates no more data; the page may be empty. Subsequent
	// calls on the same scan must continue to return Finished with an
	// empty page (an idempotent terminal state).
	Finished
	// Error indicates an unrecoverable failure; the page may be nil.
	Error
)

func (c ResultCode) String() string {
	switch c {
	case Ready:
		return "Ready"
	case Finished:
		return "Finished"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// ObjectState is the per-operator-instance state variable.
type ObjectState int

const (
	ObjectUninitialized ObjectState = iota
	ObjectInitialized
)

// ThreadState is the per-worker state variable an operator instance tracks.
type ThreadState int

const (
	ThreadUninitialized ThreadState = iota
	ThreadInitialized
	ThreadScanStarted
	ThreadGetNextReturnedFinished
)

func (s ThreadState) String() string {
	switch s {
	case ThreadUninitialized:
		return "ThreadUninitialized"
	case ThreadInitialized:
		return "ThreadInitialized"
	case ThreadScanStarted:
		return "ThreadScanStarted"
	case ThreadGetNextReturnedFinished:
		return "ThreadGetNextReturnedFinished"
	default:
		return "Unknown"
	}
}

// Operator is the interface every node in the execution tree implements:
// the seven-call lifecycle protocol plus the schema it outputs.
type Operator interface {
	// Init is called once per operator; it must construct the output
	// schema and allocate object-level resources.
	Init(ctx context.Context) error

	// ThreadInit is called once per worker, allocating per-worker
	// scratch (pages, iterator state).
	ThreadInit(threadID uint16) error

	// ScanStart begins a scan. indexPage/indexSchema are an optional
	// driving set of keys for indexed scans; a nil indexPage means "no
	// key pushdown."
	ScanStart(threadID uint16, indexPage *page.Page, indexSchema *schema.Schema) (ResultCode, error)

	// GetNext produces one output page.
	GetNext(threadID uint16) (ResultCode, *page.Page)

	// ScanStop ends the scan, releasing per-scan resources.
	ScanStop(threadID uint16) error

	// ThreadClose releases per-worker scratch.
	ThreadClose(threadID uint16) error

	// Destroy releases object-level resources. All threads must have
	// returned to ThreadUninitialized first.
	Destroy() error

	// OutSchema returns this operator's output schema. Valid only after
	// Init has succeeded.
	OutSchema() *schema.Schema
}
