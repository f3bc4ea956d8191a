package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAttempt(t *testing.T) {
	before := testutil.ToFloat64(ProviderAttemptsTotal.WithLabelValues("gemini", "transient"))

	ObserveAttempt("gemini", "transient", time.Now().Add(-time.Second))
	ObserveAttempt("gemini", "transient", time.Now())

	assert.Equal(t, before+2, testutil.ToFloat64(ProviderAttemptsTotal.WithLabelValues("gemini", "transient")))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(ProviderAttemptLatency), 1)
}

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("canceled"))

	ObserveRequest("auto", "canceled", time.Now())

	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("canceled")))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(RequestLatency), 1)
}
