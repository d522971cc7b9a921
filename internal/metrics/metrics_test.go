package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rickgao/rpcpool/internal/event"
)

func TestSinkRecordsLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewSink(reg)

	sink.ConnectSucceeded(event.ConnectEvent{Slot: 0, Duration: 20 * time.Millisecond})
	sink.ConnectSucceeded(event.ConnectEvent{Slot: 1, Duration: 25 * time.Millisecond})
	sink.ConnectFailed(event.ConnectFailureEvent{Slot: 2, Duration: time.Second, Err: errors.New("refused")})
	sink.Disconnected(event.DisconnectEvent{Slot: 1, Uptime: time.Minute})

	if got := testutil.ToFloat64(sink.attempts.WithLabelValues("0", "ok")); got != 1 {
		t.Errorf("attempts{slot=0,result=ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sink.attempts.WithLabelValues("2", "error")); got != 1 {
		t.Errorf("attempts{slot=2,result=error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sink.disconnects.WithLabelValues("1")); got != 1 {
		t.Errorf("disconnects{slot=1} = %v, want 1", got)
	}
}

func TestSinkRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewSink(reg)

	sink.PoolStatus(event.StatusEvent{Expected: 3, Current: 2})

	if got := testutil.ToFloat64(sink.expected); got != 3 {
		t.Errorf("pool_channels_expected = %v, want 3", got)
	}
	if got := testutil.ToFloat64(sink.live); got != 2 {
		t.Errorf("pool_channels_live = %v, want 2", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewSink(reg)

	sink.PoolGet(event.PoolGetEvent{Latency: time.Microsecond, Live: 2, Slot: 0, Connected: true})
	sink.PoolGet(event.PoolGetEvent{Latency: time.Microsecond, Slot: -1})
	sink.ChannelGet(event.GetEvent{Slot: 0, Latency: time.Microsecond, Connected: true})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`rpcpool_pool_get_duration_seconds_count{result="hit"} 1`,
		`rpcpool_pool_get_duration_seconds_count{result="miss"} 1`,
		"rpcpool_channel_get_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}
