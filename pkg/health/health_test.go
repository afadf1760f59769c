package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func serveReady(t *testing.T, h *Handler) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestLivenessHandler_AlwaysUp(t *testing.T) {
	h := NewHandler(time.Second)
	h.RegisterCritical("postgres", down)

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name        string
		critical    map[string]Checker
		nonCritical map[string]Checker
		wantCode    int
		wantStatus  Status
	}{
		{"no checks", nil, nil, http.StatusOK, StatusUp},
		{"all up", map[string]Checker{"postgres": up, "redis": up}, map[string]Checker{"kafka": up}, http.StatusOK, StatusUp},
		{"critical down", map[string]Checker{"postgres": up, "redis": down}, nil, http.StatusServiceUnavailable, StatusDown},
		{"non-critical down", map[string]Checker{"postgres": up}, map[string]Checker{"kafka": down}, http.StatusOK, StatusDegraded},
		{"both down", map[string]Checker{"redis": down}, map[string]Checker{"kafka": down}, http.StatusServiceUnavailable, StatusDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(time.Second)
			for name, fn := range tt.critical {
				h.RegisterCritical(name, fn)
			}
			for name, fn := range tt.nonCritical {
				h.RegisterNonCritical(name, fn)
			}

			code, resp := serveReady(t, h)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.critical)+len(tt.nonCritical))
		})
	}
}

func TestReadiness_ReportsErrorAndCriticality(t *testing.T) {
	h := NewHandler(time.Second)
	h.RegisterCritical("redis", down)
	h.RegisterNonCritical("kafka", up)

	_, resp := serveReady(t, h)

	assert.Equal(t, CheckResult{Status: StatusDown, Critical: true, Error: "connection refused"}, resp.Checks["redis"])
	assert.Equal(t, CheckResult{Status: StatusUp, Critical: false}, resp.Checks["kafka"])
}

func TestReadiness_ChecksShareTimeout(t *testing.T) {
	h := NewHandler(20 * time.Millisecond)
	h.RegisterCritical("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	code, resp := serveReady(t, h)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, resp.Checks["slow"].Error, "deadline exceeded")
}

func TestRegister_Overwrites(t *testing.T) {
	h := NewHandler(time.Second)
	h.RegisterCritical("postgres", down)
	h.RegisterCritical("postgres", up)

	code, _ := serveReady(t, h)
	assert.Equal(t, http.StatusOK, code)
}
