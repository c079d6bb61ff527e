package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_ReturnsSameInstanceEveryCall(t *testing.T) {
	m1 := New()
	m2 := New()
	assert.Same(t, m1, m2)
}

func TestNew_CollectorsAreUsable(t *testing.T) {
	m := New()
	assert.NotPanics(t, func() {
		m.SagaExecutions.WithLabelValues("create_project", "success").Inc()
		m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/health", "200").Inc()
		m.ProxyCacheHits.Inc()
	})
}
