// Package operators provides demonstration operators exercising the
// seven-call lifecycle protocol end to end: a zero-input tuple scan, a
// single-input filter, and three hash-based operators (partition, join,
// aggregate) built directly on internal/hashtable and internal/hashfn.
//
// The scan-operator shape (per-worker scratch output page, produce-then-
// settle-into-Finished in getNext) is grounded on
// _examples/original_source/operators/fastbitscan.cpp. TupleScan allocates
// its scratch page in ThreadInit, fills it in GetNext and frees it in
// ThreadClose. Unlike FastBitScan,
// which drives a single FastBit query per worker, TupleScan splits one
// shared in-memory tuple buffer across workers via an atomic cursor, since
// this engine has no index-scan dependency to demonstrate against.
package operators

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/sblanas/pythia-sub001/engine/page"
	"github.com/sblanas/pythia-sub001/engine/schema"
	"github.com/sblanas/pythia-sub001/internal/operator"
)

// TupleScan is a zero-input operator that partitions a fixed, in-memory
// buffer of densely packed tuples across however many workers call
// GetNext, via a single shared atomic byte cursor.
type TupleScan struct {
	logger *logrus.Logger
	sch    *schema.Schema
	data   []byte

	pageTuples int
	cursor     uint64

	mu      sync.Mutex
	scratch map[uint16]*page.Page
}

// NewTupleScan constructs a scan over data, which must hold a whole number
// of tuples under sch. pageTuples is the number of tuples each output page
// can hold.
func NewTupleScan(logger *logrus.Logger, sch *schema.Schema, data []byte, pageTuples int) (*TupleScan, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	width := sch.TupleSize()
	if width == 0 || len(data)%width != 0 {
		return nil, fmt.Errorf("operators: TupleScan: data length %d is not a multiple of tuple width %d", len(data), width)
	}
	if pageTuples <= 0 {
		return nil, fmt.Errorf("operators: TupleScan: pageTuples must be positive, got %d", pageTuples)
	}
	return &TupleScan{
		logger:     logger,
		sch:        sch,
		data:       data,
		pageTuples: pageTuples,
		scratch:    make(map[uint16]*page.Page),
	}, nil
}

func (s *TupleScan) Init(ctx context.Context) error {
	atomic.StoreUint64(&s.cursor, 0)
	s.logger.WithFields(logrus.Fields{
		"tuples": len(s.data) / s.sch.TupleSize(),
	}).Debug("operators: TupleScan initialized")
	return nil
}

func (s *TupleScan) ThreadInit(threadID uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scratch[threadID] = page.New(s.sch, s.pageTuples)
	return nil
}

func (s *TupleScan) ScanStart(threadID uint16, indexPage *page.Page, indexSchema *schema.Schema) (operator.ResultCode, error) {
	return operator.Ready, nil
}

func (s *TupleScan) GetNext(threadID uint16) (operator.ResultCode, *page.Page) {
	s.mu.Lock()
	out := s.scratch[threadID]
	s.mu.Unlock()
	out.Clear()

	width := uint64(s.sch.TupleSize())
	chunk := width * uint64(s.pageTuples)

	start := atomic.AddUint64(&s.cursor, chunk) - chunk
	total := uint64(len(s.data))
	if start >= total {
		return operator.Finished, out
	}

	end := start + chunk
	if end > total {
		end = total
	}

	for off := start; off+width <= end; off += width {
		dst, err := out.Allocate()
		if err != nil {
			break
		}
		copy(out.Bytes()[dst:dst+int(width)], s.data[off:off+width])
	}
	return operator.Ready, out
}

func (s *TupleScan) ScanStop(threadID uint16) error { return nil }

func (s *TupleScan) ThreadClose(threadID uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scratch, threadID)
	return nil
}

func (s *TupleScan) Destroy() error { return nil }

func (s *TupleScan) OutSchema() *schema.Schema { return s.sch }

var _ operator.Operator = (*TupleScan)(nil)
