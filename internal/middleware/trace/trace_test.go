package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"committee/internal/log"
)

func newTestLogger(buf *bytes.Buffer) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Format = "json"
	cfg.Output = buf
	return log.New(cfg)
}

func TestMiddleware_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	m := NewMiddleware(newTestLogger(&buf), func(*http.Request) string { return "203.0.113.7" })

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		log.FromContext(r.Context()).InfoContext(r.Context(), "inside handler")
		w.WriteHeader(http.StatusAccepted)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/members", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("request id %q is not a uuid", seen)
	}
	if rr.Header().Get(HeaderRequestID) != seen {
		t.Errorf("response header = %q, want %q", rr.Header().Get(HeaderRequestID), seen)
	}
	out := buf.String()
	for _, want := range []string{`"msg":"inside handler"`, `"status_code":202`, `"client_ip":"203.0.113.7"`, seen} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestMiddleware_KeepsValidIncomingID(t *testing.T) {
	var buf bytes.Buffer
	m := NewMiddleware(newTestLogger(&buf), nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	incoming := uuid.NewString()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderRequestID, incoming)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	if rr.Header().Get(HeaderRequestID) != incoming {
		t.Errorf("incoming id replaced")
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderRequestID, "<script>")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	if rr.Header().Get(HeaderRequestID) == "<script>" {
		t.Errorf("malformed id accepted")
	}
}

func TestRequestID_Empty(t *testing.T) {
	if id := RequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); id != "" {
		t.Errorf("RequestID = %q, want empty", id)
	}
}
