package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"opsportal/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances by step on every call.
type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func newTestInstrumenter(t *testing.T) (*Instrumenter, *recordingReporter, *bytes.Buffer) {
	t.Helper()
	reporter := &recordingReporter{}
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	in := NewInstrumenter(newTestRegistry(t), reporter, WithLogger(logger))
	return in, reporter, &logs
}

func logRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		records = append(records, rec)
	}
	return records
}

func TestInstrumenterSuccess(t *testing.T) {
	in, reporter, logs := newTestInstrumenter(t)
	clock := &stepClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), step: 25 * time.Millisecond}
	in.now = clock.now

	var seenID string
	h := in.Wrap("test", func(w http.ResponseWriter, r *http.Request) error {
		seenID = RequestIDFromContext(r.Context())
		info, ok := RequestInfoFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "test", info.Route)
		writeJSON(w, http.StatusCreated, map[string]string{"ok": "yes"})
		return nil
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/x", nil))

	assert.Equal(t, http.StatusCreated, rr.Code)
	id := rr.Header().Get(HeaderRequestID)
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "a fresh uuid is assigned")
	assert.Equal(t, id, seenID)

	snap := in.registry.Snapshot()
	assert.Equal(t, int64(1), snap.RequestsTotal)
	assert.Equal(t, int64(0), snap.ErrorsTotal)
	assert.Equal(t, 0, reporter.count())

	records := logRecords(t, logs)
	require.Len(t, records, 2)
	assert.Equal(t, "Request started", records[0]["msg"])
	assert.Equal(t, "Request completed", records[1]["msg"])
	assert.Equal(t, float64(http.StatusCreated), records[1]["status"])
	assert.Equal(t, float64(25), records[1]["duration_ms"])
	assert.Equal(t, id, records[1]["request_id"])
}

func TestInstrumenterImplicitOK(t *testing.T) {
	in, _, logs := newTestInstrumenter(t)

	h := in.Wrap("empty", func(w http.ResponseWriter, r *http.Request) error {
		return nil
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	records := logRecords(t, logs)
	assert.Equal(t, float64(http.StatusOK), records[len(records)-1]["status"])
}

func TestInstrumenterRequestID(t *testing.T) {
	in, _, _ := newTestInstrumenter(t)
	h := in.Wrap("id", func(w http.ResponseWriter, r *http.Request) error { return nil })

	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{"valid inbound id is echoed", "req-abc-123", true},
		{"empty is replaced", "", false},
		{"spaces are rejected", "has space", false},
		{"too long is rejected", strings.Repeat("a", maxRequestIDLen+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.inbound != "" {
				req.Header.Set(HeaderRequestID, tt.inbound)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			got := rr.Header().Get(HeaderRequestID)
			if tt.keep {
				assert.Equal(t, tt.inbound, got)
				return
			}
			assert.NotEqual(t, tt.inbound, got)
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
		})
	}
}

func TestInstrumenterError(t *testing.T) {
	in, reporter, logs := newTestInstrumenter(t)

	h := in.Wrap("boom", func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("database exploded")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	resp := decodeBody[models.ErrorResponse](t, rr)
	assert.Equal(t, "Internal server error", resp.Message)
	assert.Equal(t, models.ErrorCodeInternalError, resp.Code)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.NotContains(t, rr.Body.String(), "database exploded", "internal detail is not leaked")

	require.Equal(t, 1, reporter.count())
	assert.Equal(t, "req-1", reporter.scopes[0].RequestID)
	assert.Equal(t, "boom", reporter.scopes[0].Route)
	assert.Equal(t, http.MethodGet, reporter.scopes[0].Method)

	snap := in.registry.Snapshot()
	assert.Equal(t, int64(1), snap.RequestsTotal)
	assert.Equal(t, int64(1), snap.ErrorsTotal)

	records := logRecords(t, logs)
	assert.Equal(t, float64(http.StatusInternalServerError), records[len(records)-1]["status"])
}

func TestInstrumenterErrorAfterWrite(t *testing.T) {
	in, reporter, _ := newTestInstrumenter(t)

	h := in.Wrap("partial", func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		return errors.New("stream broke")
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code, "the committed status cannot change")
	assert.Equal(t, "partial", rr.Body.String(), "no second body is written")
	assert.Equal(t, 1, reporter.count())
	assert.Equal(t, int64(1), in.registry.Snapshot().ErrorsTotal, "the failure still counts")
}

func TestInstrumenterPanic(t *testing.T) {
	in, reporter, _ := newTestInstrumenter(t)

	h := in.Wrap("panics", func(w http.ResponseWriter, r *http.Request) error {
		panic("nil map write")
	})

	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, 1, reporter.count())
	assert.Contains(t, reporter.errs[0].Error(), "nil map write")
	assert.Equal(t, int64(1), in.registry.Snapshot().ErrorsTotal)
}

func TestInstrumenterAbortHandler(t *testing.T) {
	in, _, _ := newTestInstrumenter(t)

	h := in.Wrap("abort", func(w http.ResponseWriter, r *http.Request) error {
		panic(http.ErrAbortHandler)
	})

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestInstrumenterCountsEveryOutcome(t *testing.T) {
	in, _, _ := newTestInstrumenter(t)

	statuses := []int{http.StatusOK, http.StatusNotFound, http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError}
	for _, status := range statuses {
		code := status
		h := in.Wrap("status", func(w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(code)
			return nil
		})
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}

	snap := in.registry.Snapshot()
	assert.Equal(t, int64(len(statuses)), snap.RequestsTotal)
	assert.Equal(t, int64(2), snap.ErrorsTotal, "only 5xx responses count as errors")
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) error {
				order = append(order, name)
				return next(w, r)
			}
		}
	}

	h := Chain(func(w http.ResponseWriter, r *http.Request) error {
		order = append(order, "handler")
		return nil
	}, mark("first"), mark("second"))

	require.NoError(t, h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestFromHTTP(t *testing.T) {
	header := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Seen", "1")
			next.ServeHTTP(w, r)
		})
	}
	block := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
	}
	failing := func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("inner failure")
	}

	t.Run("errors propagate through", func(t *testing.T) {
		rr := httptest.NewRecorder()
		err := Chain(failing, FromHTTP(header))(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.EqualError(t, err, "inner failure")
		assert.Equal(t, "1", rr.Header().Get("X-Seen"))
	})

	t.Run("short circuit returns nil", func(t *testing.T) {
		rr := httptest.NewRecorder()
		err := Chain(failing, FromHTTP(block))(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusTeapot, rr.Code)
	})
}
