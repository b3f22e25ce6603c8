package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"committee/internal/core"
	"committee/internal/directory"
)

type recorded struct {
	method, path, contentType string
	body                      map[string]any
}

func newTestServer(t *testing.T, status int, response string, seen *[]recorded) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, contentType: r.Header.Get("Content-Type")}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			if err := json.Unmarshal(data, &rec.body); err != nil {
				t.Errorf("request body is not JSON: %s", data)
			}
		}
		*seen = append(*seen, rec)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestListMembers(t *testing.T) {
	var seen []recorded
	body := `[{"_id":"a1","name":"Ada","bankName":"B","bankAccountNo":"9","userType":"Admin",` +
		`"contributions":[100,50],"receivableMonths":["May","June"],"paymentStatus":{"May_a1":true}}]`
	srv := newTestServer(t, http.StatusOK, body, &seen)

	c, err := New(srv.URL + "/")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	members, err := c.ListMembers(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(seen) != 1 || seen[0].method != http.MethodGet || seen[0].path != "/members" {
		t.Fatalf("unexpected request: %+v", seen)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}
	m := members[0]
	if m.ID != "a1" || m.Role != core.RoleAdmin || m.ContributionAt(1) != 50 || !m.HasPaid("May", "a1") {
		t.Fatalf("unexpected member: %+v", m)
	}
}

func TestCreateAndUpdateMember(t *testing.T) {
	var seen []recorded
	srv := newTestServer(t, http.StatusCreated, "", &seen)
	c, _ := New(srv.URL)

	m := core.Member{
		ID:               "x/1",
		Name:             "Ada",
		BankName:         "B",
		BankAccountNo:    "9",
		Role:             core.RoleUser,
		Contribution:     10,
		ReceivableMonths: []core.Month{"May"},
	}.ExpandContribution()

	if err := c.CreateMember(context.Background(), m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.UpdateMember(context.Background(), m); err != nil {
		t.Fatalf("update: %v", err)
	}

	if seen[0].method != http.MethodPost || seen[0].path != "/members/create" {
		t.Fatalf("unexpected create request: %+v", seen[0])
	}
	if _, hasID := seen[0].body["_id"]; hasID {
		t.Fatalf("create payload must not carry the id: %v", seen[0].body)
	}
	if seen[0].body["userType"] != "User" || seen[0].body["contribution"] != float64(10) {
		t.Fatalf("unexpected create payload: %v", seen[0].body)
	}
	if seen[1].method != http.MethodPatch || seen[1].path != "/members/x/1" {
		t.Fatalf("unexpected update request: %+v", seen[1])
	}
	if seen[1].contentType != "application/json" {
		t.Fatalf("expected JSON content type, got %q", seen[1].contentType)
	}
}

func TestUpdateMemberWithoutID(t *testing.T) {
	c, _ := New("http://localhost:1")
	if err := c.UpdateMember(context.Background(), core.Member{}); !errors.Is(err, directory.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestSetPaymentStatus(t *testing.T) {
	var seen []recorded
	srv := newTestServer(t, http.StatusOK, `{"ok":true}`, &seen)
	c, _ := New(srv.URL)

	if err := c.SetPaymentStatus(context.Background(), "p1", "Aug", "r9", true); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got := seen[0]
	if got.method != http.MethodPatch || got.path != "/members/p1/payment-status" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.body["month"] != "Aug" || got.body["receiverId"] != "r9" || got.body["paid"] != true {
		t.Fatalf("unexpected payload: %v", got.body)
	}
}

func TestNon2xxIsUniformFailure(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError} {
		var seen []recorded
		srv := newTestServer(t, status, `{"message":"ignored"}`, &seen)
		c, _ := New(srv.URL)

		_, err := c.ListMembers(context.Background())
		if !errors.Is(err, directory.ErrUnexpectedStatus) {
			t.Fatalf("status %d: expected ErrUnexpectedStatus, got %v", status, err)
		}
		if strings.Contains(err.Error(), "ignored") {
			t.Fatalf("error bodies must not be parsed: %v", err)
		}
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.org", "://bad"} {
		if _, err := New(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := New(url)
	if _, err := c.ListMembers(context.Background()); err == nil {
		t.Fatalf("expected error for closed server")
	}
}

func TestTimeoutSurvivesOptionOrder(t *testing.T) {
	custom := &http.Client{}
	for _, opts := range [][]Option{
		{WithTimeout(3 * time.Second), WithHTTPClient(custom)},
		{WithHTTPClient(custom), WithTimeout(3 * time.Second)},
	} {
		c, err := New("http://directory.test", opts...)
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if c.http.Timeout != 3*time.Second {
			t.Errorf("timeout = %v", c.http.Timeout)
		}
	}
	if custom.Timeout != 0 {
		t.Errorf("caller's client was modified: %v", custom.Timeout)
	}
}
