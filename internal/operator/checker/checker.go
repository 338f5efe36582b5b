// Package checker wraps an operator.Operator with the object/thread state
// machine enforcement from original_source/operators/checker_callstate.cpp:
// every lifecycle call is only legal from specific prior states, and an
// illegal transition is a fatal assertion (the original's "this must never
// happen in correct code" contract), not a recoverable error -- matching
// the original's FATAL macro, which aborts the process.
package checker

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sblanas/pythia-sub001/engine/page"
	"github.com/sblanas/pythia-sub001/engine/schema"
	"github.com/sblanas/pythia-sub001/internal/observability"
	"github.com/sblanas/pythia-sub001/internal/operator"
)

// maxConsecutiveFinished is how many GetNext calls after the first Finished
// the checker verifies: each of them must again return Finished with an
// empty page, or the checker fails. Calls beyond that count are not checked.
const maxConsecutiveFinished = 10

// Checker wraps an operator.Operator, enforcing that lifecycle calls arrive
// in the legal sequence: object state Uninitialized -> Initialized ->
// Uninitialized, and per-thread state Uninitialized -> Initialized ->
// ScanStarted -> GetNextReturnedFinished -> Initialized -> Uninitialized.
type Checker struct {
	inner   operator.Operator
	logger  *logrus.Logger
	name    string
	metrics *observability.Metrics

	objMu    sync.Mutex
	objState operator.ObjectState

	threadMu sync.Mutex
	threads  map[uint16]*threadRecord
}

type threadRecord struct {
	state              operator.ThreadState
	consecutiveFinish  int
}

// Wrap returns a Checker guarding inner. name identifies the wrapped
// operator in panic messages and log fields.
func Wrap(name string, inner operator.Operator, logger *logrus.Logger) *Checker {
	return WrapWithMetrics(name, inner, logger, nil)
}

// WrapWithMetrics is Wrap plus a *observability.Metrics to record
// per-(operator,call) lifecycle counters and state-machine-violation
// counts; pass nil to skip metrics, exactly as Wrap does.
func WrapWithMetrics(name string, inner operator.Operator, logger *logrus.Logger, metrics *observability.Metrics) *Checker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Checker{
		inner:   inner,
		logger:  logger,
		name:    name,
		metrics: metrics,
		threads: make(map[uint16]*threadRecord),
	}
}

func (c *Checker) fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.logger.WithFields(logrus.Fields{"operator": c.name}).Error(msg)
	if c.metrics != nil {
		c.metrics.OperatorPanics.WithLabelValues(c.name).Inc()
	}
	panic(fmt.Sprintf("checker: %s: %s", c.name, msg))
}

func (c *Checker) countCall(call string) {
	if c.metrics != nil {
		c.metrics.OperatorCalls.WithLabelValues(c.name, call).Inc()
	}
}

func (c *Checker) transitionObject(from, to operator.ObjectState) {
	c.objMu.Lock()
	defer c.objMu.Unlock()
	if c.objState != from {
		c.fatal("illegal object state transition: have %v, want from %v to %v", c.objState, from, to)
	}
	c.objState = to
}

func (c *Checker) record(threadID uint16) *threadRecord {
	c.threadMu.Lock()
	defer c.threadMu.Unlock()
	r, ok := c.threads[threadID]
	if !ok {
		r = &threadRecord{state: operator.ThreadUninitialized}
		c.threads[threadID] = r
	}
	return r
}

func (c *Checker) transitionThread(threadID uint16, from, to operator.ThreadState) *threadRecord {
	r := c.record(threadID)
	c.threadMu.Lock()
	defer c.threadMu.Unlock()
	if r.state != from {
		c.fatal("thread %d: illegal state transition: have %v, want from %v to %v", threadID, r.state, from, to)
	}
	r.state = to
	return r
}

func (c *Checker) Init(ctx context.Context) error {
	c.countCall("Init")
	c.transitionObject(operator.ObjectUninitialized, operator.ObjectInitialized)
	return c.inner.Init(ctx)
}

func (c *Checker) ThreadInit(threadID uint16) error {
	c.countCall("ThreadInit")
	c.transitionThread(threadID, operator.ThreadUninitialized, operator.ThreadInitialized)
	return c.inner.ThreadInit(threadID)
}

func (c *Checker) ScanStart(threadID uint16, indexPage *page.Page, indexSchema *schema.Schema) (operator.ResultCode, error) {
	c.countCall("ScanStart")
	c.transitionThread(threadID, operator.ThreadInitialized, operator.ThreadScanStarted)
	return c.inner.ScanStart(threadID, indexPage, indexSchema)
}

// GetNext is legal from ThreadScanStarted (every call while results remain)
// and remains legal, idempotently, once the thread has settled into
// ThreadGetNextReturnedFinished -- mirroring the original's requirement
// that repeated getNext calls after exhaustion keep returning Finished
// rather than becoming an error.
func (c *Checker) GetNext(threadID uint16) (operator.ResultCode, *page.Page) {
	c.countCall("GetNext")
	r := c.record(threadID)

	c.threadMu.Lock()
	switch r.state {
	case operator.ThreadScanStarted:
		// legal, first or subsequent in-progress call
	case operator.ThreadGetNextReturnedFinished:
		// legal: idempotent terminal polling
	default:
		c.threadMu.Unlock()
		c.fatal("thread %d: GetNext called from illegal state %v", threadID, r.state)
		return operator.Error, nil
	}
	c.threadMu.Unlock()

	rc, p := c.inner.GetNext(threadID)

	c.threadMu.Lock()
	defer c.threadMu.Unlock()
	switch rc {
	case operator.Finished:
		if r.state == operator.ThreadGetNextReturnedFinished {
			r.consecutiveFinish++
			if r.consecutiveFinish <= maxConsecutiveFinished && p != nil && p.GetNumTuples() != 0 {
				c.fatal("thread %d: GetNext returned Finished with a non-empty page after settling", threadID)
			}
		} else {
			r.state = operator.ThreadGetNextReturnedFinished
			r.consecutiveFinish = 0
		}
	case operator.Ready:
		if r.state != operator.ThreadScanStarted {
			c.fatal("thread %d: GetNext returned Ready after already settling into Finished", threadID)
		}
		r.consecutiveFinish = 0
	case operator.Error:
		// errors don't move the state machine; caller decides whether to
		// retry or tear down the scan.
	}
	return rc, p
}

func (c *Checker) ScanStop(threadID uint16) error {
	c.countCall("ScanStop")
	r := c.record(threadID)
	c.threadMu.Lock()
	from := r.state
	if from != operator.ThreadScanStarted && from != operator.ThreadGetNextReturnedFinished {
		c.threadMu.Unlock()
		c.fatal("thread %d: ScanStop called from illegal state %v", threadID, from)
	}
	r.state = operator.ThreadInitialized
	r.consecutiveFinish = 0
	c.threadMu.Unlock()
	return c.inner.ScanStop(threadID)
}

func (c *Checker) ThreadClose(threadID uint16) error {
	c.countCall("ThreadClose")
	c.transitionThread(threadID, operator.ThreadInitialized, operator.ThreadUninitialized)
	c.threadMu.Lock()
	delete(c.threads, threadID)
	c.threadMu.Unlock()
	return c.inner.ThreadClose(threadID)
}

func (c *Checker) Destroy() error {
	c.countCall("Destroy")
	c.threadMu.Lock()
	remaining := len(c.threads)
	c.threadMu.Unlock()
	if remaining != 0 {
		c.fatal("Destroy called with %d thread(s) not yet closed", remaining)
	}
	c.transitionObject(operator.ObjectInitialized, operator.ObjectUninitialized)
	return c.inner.Destroy()
}

func (c *Checker) OutSchema() *schema.Schema {
	return c.inner.OutSchema()
}

var _ operator.Operator = (*Checker)(nil)
