package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Records(t *testing.T) {
	c := New("recall")

	c.ObserveJob("INGEST_GRAPH", "done", 20*time.Millisecond)
	c.Ingested("graph", "entity", nil)
	c.Ingested("graph", "entity", errors.New("boom"))
	c.ModelCall("extract", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.JobsProcessed.WithLabelValues("INGEST_GRAPH", "done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.IngestedItems.WithLabelValues("graph", "entity", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.IngestedItems.WithLabelValues("graph", "entity", "error")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "recall_model_calls_total"))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveJob("x", "done", time.Second)
		c.Ingested("vector", "chunk", nil)
		c.ModelCall("chat", nil)
	})
}
