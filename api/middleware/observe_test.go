package middleware

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/metrics"
	"github.com/autocare/autocare-backend/pkg/types"
)

func TestRequestIDKeepsWellFormedHeader(t *testing.T) {
	var seen string
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(requestIDHeader)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "android-1.4.2_abc")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, "android-1.4.2_abc", seen)
	require.Equal(t, "android-1.4.2_abc", resp.Header().Get(requestIDHeader))
}

func TestRequestIDReplacesMalformedHeader(t *testing.T) {
	handler := RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	for _, bad := range []string{"", "has space", "<script>", strings.Repeat("a", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, bad)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		got := resp.Header().Get(requestIDHeader)
		require.NotEqual(t, bad, got)
		require.Len(t, got, 36)
	}
}

func TestRecovererAnswersInternalWithRequestID(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTPMetrics(reg)
	handler := RequestID(nil)(Logging(nil, m)(Recoverer(nil, m)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	}))))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	require.Equal(t, "req-42", body.Error.RequestID)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var sawPanic, saw5xx bool
	for _, mf := range mfs {
		switch mf.GetName() {
		case "http_panics_recovered_total":
			sawPanic = mf.GetMetric()[0].GetCounter().GetValue() == 1
		case "http_requests_total":
			for _, lp := range mf.GetMetric()[0].GetLabel() {
				if lp.GetName() == "status" && lp.GetValue() == "5xx" {
					saw5xx = true
				}
			}
		}
	}
	require.True(t, sawPanic)
	require.True(t, saw5xx)
}

func TestLoggingLabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := chi.NewRouter()
	r.Use(Logging(nil, metrics.NewHTTPMetrics(reg)))
	r.Get("/api/v1/bookings/{bookingId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/bookings/abc", nil))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var route string
	for _, mf := range mfs {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			if lp.GetName() == "route" {
				route = lp.GetValue()
			}
		}
	}
	require.Equal(t, "/api/v1/bookings/{bookingId}", route)
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestStatusRecorderPassesHijack(t *testing.T) {
	under := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rec := &statusRecorder{ResponseWriter: under}

	_, _, err := rec.Hijack()
	require.NoError(t, err)
	require.True(t, under.hijacked)
	require.Equal(t, http.StatusSwitchingProtocols, rec.status)

	plain := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _, err = plain.Hijack()
	require.Error(t, err)
}
