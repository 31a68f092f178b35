package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObservePaymentCountsOutcomes(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObservePayment("registered")
	metrics.ObservePayment("registered")
	metrics.ObservePayment("AmountExceedsBalance")

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.paymentsTotal.WithLabelValues("registered")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.paymentsTotal.WithLabelValues("AmountExceedsBalance")))

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `agency_order_payments_total{outcome="registered"} 2`)
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	metrics := NewMetrics()
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/supplier-orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/supplier-orders/"+id, nil))
	}

	require.Equal(t, 3.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("/supplier-orders/{id}", "404")))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.requestDuration))
}

func TestMiddlewareWithoutRouteContext(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/raw", nil).WithContext(context.Background())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusTeapot, rr.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("unknown", "418")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObservePayment("registered")
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NotNil(t, metrics.Registerer())
}
