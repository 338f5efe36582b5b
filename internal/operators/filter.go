package operators

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sblanas/pythia-sub001/engine/page"
	"github.com/sblanas/pythia-sub001/engine/schema"
	"github.com/sblanas/pythia-sub001/internal/comparator"
	"github.com/sblanas/pythia-sub001/internal/operator"
)

// Filter passes through tuples from a single input whose field at fieldSpec
// compares true against a fixed constant under op. Each GetNext pulls input
// pages until one of them yields at least one matching tuple (or until the
// input settles into Finished); the output page is not filled further before
// it is returned. This matches FastBitScanOp's pattern of returning Finished together
// with a final, non-empty page rather than requiring a separate empty
// trailing call.
type Filter struct {
	logger *logrus.Logger
	input  operator.Operator
	sch    *schema.Schema
	bound  comparator.Bound
	rhs    []byte

	mu    sync.Mutex
	state map[uint16]*filterState
}

type filterState struct {
	out        *page.Page
	pendingIn  *page.Page
	pendingIdx int
	pendingRC  operator.ResultCode
}

// NewFilter builds a Filter over input, comparing the field described by
// fieldSpec at byte offset fieldOffset against the constant rhs (which must
// be at least fieldSpec's width) using op.
func NewFilter(logger *logrus.Logger, input operator.Operator, fieldSpec schema.ColumnSpec, fieldOffset int, op comparator.Op, rhs []byte) (*Filter, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	bound, err := comparator.Init(fieldSpec, fieldOffset, fieldSpec, 0, op)
	if err != nil {
		return nil, err
	}
	return &Filter{
		logger: logger,
		input:  input,
		bound:  bound,
		rhs:    rhs,
		state:  make(map[uint16]*filterState),
	}, nil
}

func (f *Filter) Init(ctx context.Context) error {
	f.sch = f.input.OutSchema()
	return f.input.Init(ctx)
}

func (f *Filter) ThreadInit(threadID uint16) error {
	f.mu.Lock()
	f.state[threadID] = &filterState{out: page.New(f.sch, 64)}
	f.mu.Unlock()
	return f.input.ThreadInit(threadID)
}

func (f *Filter) ScanStart(threadID uint16, indexPage *page.Page, indexSchema *schema.Schema) (operator.ResultCode, error) {
	return f.input.ScanStart(threadID, indexPage, indexSchema)
}

func (f *Filter) GetNext(threadID uint16) (operator.ResultCode, *page.Page) {
	f.mu.Lock()
	st := f.state[threadID]
	f.mu.Unlock()

	out := st.out
	out.Clear()
	width := f.sch.TupleSize()

	for {
		if st.pendingIn == nil {
			rc, in := f.input.GetNext(threadID)
			if in == nil {
				return rc, out
			}
			st.pendingRC = rc
			st.pendingIn = in
			st.pendingIdx = 0
		}

		in := st.pendingIn
		full := false
		for st.pendingIdx < in.GetNumTuples() {
			off := in.GetTupleOffset(st.pendingIdx)
			tuple := in.Bytes()[off : off+width]
			if f.bound.Compare(tuple, f.rhs) {
				dst, err := out.Allocate()
				if err != nil {
					full = true
					break
				}
				copy(out.Bytes()[dst:dst+width], tuple)
			}
			st.pendingIdx++
		}

		if full {
			return operator.Ready, out
		}

		doneRC := st.pendingRC
		st.pendingIn = nil

		if doneRC == operator.Finished {
			return operator.Finished, out
		}
		if out.GetNumTuples() > 0 {
			return operator.Ready, out
		}
		// out still empty and input has more to give; pull another page.
	}
}

func (f *Filter) ScanStop(threadID uint16) error {
	f.mu.Lock()
	st := f.state[threadID]
	st.pendingIn = nil
	f.mu.Unlock()
	return f.input.ScanStop(threadID)
}

func (f *Filter) ThreadClose(threadID uint16) error {
	f.mu.Lock()
	delete(f.state, threadID)
	f.mu.Unlock()
	return f.input.ThreadClose(threadID)
}

func (f *Filter) Destroy() error { return f.input.Destroy() }

func (f *Filter) OutSchema() *schema.Schema { return f.sch }

var _ operator.Operator = (*Filter)(nil)
