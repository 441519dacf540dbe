package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPWrapCountsByCode(t *testing.T) {
	reg := NewRegistry()
	m := NewHTTP(reg, "smiledesk")

	h := m.Wrap("slots", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/slots", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/slots?fail=1", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues("slots", "GET", "200")); got != 1 {
		t.Fatalf("expected one 200, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("slots", "GET", "422")); got != 1 {
		t.Fatalf("expected one 422, got %v", got)
	}

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "smiledesk_http_requests_total") {
		t.Fatal("expected exported request counter")
	}
}
