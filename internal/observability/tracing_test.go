package observability

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewTracerInitializesWithoutError(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(testWriter{t})

	tr, err := NewTracer("queryengine-test", "", 1.0, logger)
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	defer tr.Shutdown(context.Background())

	if tr.GetTracer() == nil {
		t.Fatal("GetTracer returned nil")
	}
}

func TestTraceScanAndGetNextProduceSpans(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(testWriter{t})

	tr, err := NewTracer("queryengine-test", "", 1.0, logger)
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	defer tr.Shutdown(context.Background())

	ctx, scanSpan := tr.TraceScan(context.Background(), "plan-a", 0)
	if scanSpan == nil {
		t.Fatal("TraceScan returned nil span")
	}
	defer scanSpan.End()

	_, getNextSpan := tr.TraceGetNext(ctx, "HashJoin")
	if getNextSpan == nil {
		t.Fatal("TraceGetNext returned nil span")
	}
	getNextSpan.End()
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}
