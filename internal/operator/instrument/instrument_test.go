package instrument

import (
	"context"
	"testing"

	"github.com/sblanas/pythia-sub001/engine/page"
	"github.com/sblanas/pythia-sub001/engine/schema"
	"github.com/sblanas/pythia-sub001/internal/observability"
	"github.com/sblanas/pythia-sub001/internal/operator"
)

type fakeOperator struct {
	sch    *schema.Schema
	remain int
}

func newFakeOperator(n int) *fakeOperator {
	s, err := schema.New([]schema.ColumnSpec{{Type: schema.Int64}})
	if err != nil {
		panic(err)
	}
	return &fakeOperator{sch: s, remain: n}
}

func (f *fakeOperator) Init(ctx context.Context) error    { return nil }
func (f *fakeOperator) ThreadInit(threadID uint16) error  { return nil }
func (f *fakeOperator) ScanStop(threadID uint16) error    { return nil }
func (f *fakeOperator) ThreadClose(threadID uint16) error { return nil }
func (f *fakeOperator) Destroy() error                    { return nil }
func (f *fakeOperator) OutSchema() *schema.Schema         { return f.sch }

func (f *fakeOperator) ScanStart(threadID uint16, ip *page.Page, is *schema.Schema) (operator.ResultCode, error) {
	return operator.Ready, nil
}

func (f *fakeOperator) GetNext(threadID uint16) (operator.ResultCode, *page.Page) {
	if f.remain <= 0 {
		p := page.New(f.sch, 1)
		return operator.Finished, p
	}
	f.remain--
	p := page.New(f.sch, 1)
	p.Allocate()
	return operator.Ready, p
}

func TestStatsAccumulateAcrossCalls(t *testing.T) {
	in := Wrap("fake", newFakeOperator(3))

	for i := 0; i < 4; i++ {
		in.GetNext(0)
	}

	s := in.Stats(0)
	if s.GetNextCalls != 4 {
		t.Fatalf("GetNextCalls = %d, want 4", s.GetNextCalls)
	}
	if s.ReadyCalls != 3 {
		t.Fatalf("ReadyCalls = %d, want 3", s.ReadyCalls)
	}
	if s.FinishedCalls != 1 {
		t.Fatalf("FinishedCalls = %d, want 1", s.FinishedCalls)
	}
	if s.BytesProduced == 0 {
		t.Fatal("expected nonzero bytes produced across 3 Ready pages")
	}
}

func TestStatsAreKeptPerThread(t *testing.T) {
	in := Wrap("fake", newFakeOperator(10))

	in.GetNext(0)
	in.GetNext(0)
	in.GetNext(1)

	if got := in.Stats(0).GetNextCalls; got != 2 {
		t.Fatalf("thread 0 GetNextCalls = %d, want 2", got)
	}
	if got := in.Stats(1).GetNextCalls; got != 1 {
		t.Fatalf("thread 1 GetNextCalls = %d, want 1", got)
	}
	if got := in.Stats(2).GetNextCalls; got != 0 {
		t.Fatalf("unseen thread 2 GetNextCalls = %d, want 0", got)
	}
}

func TestWrapWithMetricsRecordsLatencyAndFinishedCount(t *testing.T) {
	m := observability.NewMetrics("instrument_test_metrics")
	in := WrapWithMetrics("fake", newFakeOperator(1), m)

	in.GetNext(0)
	in.GetNext(0)

	s := in.Stats(0)
	if s.FinishedCalls != 1 {
		t.Fatalf("FinishedCalls = %d, want 1", s.FinishedCalls)
	}
}
