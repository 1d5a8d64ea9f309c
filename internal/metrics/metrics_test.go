package metrics

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyu3390/netty-game-server/internal/dispatch"
)

func TestDispatchObserver(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)
	o := NewDispatchObserver(m, func(cmd int32) string { return "cmd_" + strconv.Itoa(int(cmd)) })

	o.ObserveDispatch(100, dispatch.OutcomeOK, time.Millisecond)
	o.ObserveDispatch(100, dispatch.OutcomeOK, time.Millisecond)
	o.ObserveDispatch(100, dispatch.OutcomeResolved, time.Millisecond)
	o.ObserveDispatch(404, dispatch.OutcomeUnknown, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DispatchTotal.WithLabelValues("cmd_100", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchTotal.WithLabelValues("cmd_100", "resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchTotal.WithLabelValues(UnknownCmdLabel, "unknown")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.DispatchDuration))
}

func TestDispatchObserver_UnknownCommandsShareOneSeries(t *testing.T) {
	m := NewAppMetrics(NewRegistry())
	o := NewDispatchObserver(m, func(cmd int32) string { return "cmd_" + strconv.Itoa(int(cmd)) })

	for cmd := int32(10000); cmd < 11000; cmd++ {
		o.ObserveDispatch(cmd, dispatch.OutcomeUnknown, time.Millisecond)
	}
	o.ObserveDispatch(1, dispatch.OutcomeOK, time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.DispatchTotal))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.DispatchTotal.WithLabelValues(UnknownCmdLabel, "unknown")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.DispatchDuration))
}

func TestHandler_ExposesAppMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)
	m.TCPAccepted.Inc()
	m.TCPRejected.WithLabelValues("limit").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "tcp_accept_total 1"))
	assert.True(t, strings.Contains(body, `tcp_rejected_total{reason="limit"} 1`))
}
