package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRPC = errors.New("rpc down")

func TestMetrics_RecordRPC(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())

	m.RecordRPC("1", "eth_getTransactionCount", 100*time.Millisecond, nil)
	m.RecordRPC("1", "eth_getTransactionCount", 50*time.Millisecond, errRPC)
	m.RecordRPC("1", "eth_getTransactionCount", 10*time.Millisecond, nil)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.RPCCalls.WithLabelValues("1", "eth_getTransactionCount", ResultOK)), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.RPCCalls.WithLabelValues("1", "eth_getTransactionCount", ResultError)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RPCLatency))
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())

	m.RecordBroadcast("8453", "approve")
	m.RecordBroadcast("8453", "primary")
	m.RecordSubmission("swap", nil)
	m.RecordSubmission("swap", errRPC)
	m.RecordTask("swap", "success")
	m.RecordFinalized("success")
	m.RecordFinalized("success")

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Broadcasts.WithLabelValues("8453", "approve")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues("swap", ResultError)), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Tasks.WithLabelValues("swap", "success")), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.Finalized.WithLabelValues("success")), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordRPC("1", "x", time.Second, nil)
		m.RecordBroadcast("1", "primary")
		m.RecordSubmission("send", nil)
		m.RecordTask("send", "failure")
		m.RecordFinalized("failed")
	})
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
