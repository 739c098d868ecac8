package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCountsOperationsAndTransfers(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg)

	rec.RecordOp("mkdir", "alpha", 10*time.Millisecond, "")
	rec.RecordOp("mkdir", "alpha", 5*time.Millisecond, "try-again")
	rec.RecordBytes("read", "in", 128)
	rec.RecordTransfer("upload", 3, 1024, 20*time.Millisecond, true)
	rec.SetMountedChannels(2)

	if got := testutil.ToFloat64(rec.(*recorder).opsTotal.WithLabelValues("mkdir", "alpha", "")); got != 1 {
		t.Fatalf("opsTotal success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.(*recorder).opsTotal.WithLabelValues("mkdir", "alpha", "try-again")); got != 1 {
		t.Fatalf("opsTotal try-again = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.(*recorder).bytesTotal.WithLabelValues("read", "in")); got != 128 {
		t.Fatalf("bytesTotal = %v, want 128", got)
	}
	if got := testutil.ToFloat64(rec.(*recorder).transfersTotal.WithLabelValues("upload", "ok")); got != 1 {
		t.Fatalf("transfersTotal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.(*recorder).mountedChannels); got != 2 {
		t.Fatalf("mountedChannels = %v, want 2", got)
	}
}
