package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"committee/internal/core"
	"committee/internal/directory/memory"
	"committee/internal/ledger"
	"committee/internal/matrix"
	"committee/internal/middleware/ratelimit"
	"committee/internal/session"
)

// flakyDirectory wraps the memory directory with switchable failures.
type flakyDirectory struct {
	*memory.Store
	mu       sync.Mutex
	failList bool
	failSet  bool
	failSave bool
}

var errDown = errors.New("directory down")

func (d *flakyDirectory) set(f func(d *flakyDirectory)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f(d)
}

func (d *flakyDirectory) ListMembers(ctx context.Context) ([]core.Member, error) {
	d.mu.Lock()
	fail := d.failList
	d.mu.Unlock()
	if fail {
		return nil, errDown
	}
	return d.Store.ListMembers(ctx)
}

func (d *flakyDirectory) CreateMember(ctx context.Context, m core.Member) error {
	d.mu.Lock()
	fail := d.failSave
	d.mu.Unlock()
	if fail {
		return errDown
	}
	return d.Store.CreateMember(ctx, m)
}

func (d *flakyDirectory) UpdateMember(ctx context.Context, m core.Member) error {
	d.mu.Lock()
	fail := d.failSave
	d.mu.Unlock()
	if fail {
		return errDown
	}
	return d.Store.UpdateMember(ctx, m)
}

func (d *flakyDirectory) SetPaymentStatus(ctx context.Context, payerID string, month core.Month, receiverID string, paid bool) error {
	d.mu.Lock()
	fail := d.failSet
	d.mu.Unlock()
	if fail {
		return errDown
	}
	return d.Store.SetPaymentStatus(ctx, payerID, month, receiverID, paid)
}

type fakeHistory struct {
	entries []ledger.Entry
	err     error
}

func (f fakeHistory) Recent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	return f.entries, f.err
}

func (f fakeHistory) ForMonth(ctx context.Context, month core.Month) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range f.entries {
		if e.Month == month {
			out = append(out, e)
		}
	}
	return out, f.err
}

func roster() []core.Member {
	members := []core.Member{
		{ID: "a", Name: "Alice", BankName: "First", BankAccountNo: "001", Role: core.RoleAdmin, Contribution: 100, ReceivableMonths: []core.Month{"May"}},
		{ID: "b", Name: "Bob", BankName: "Second", BankAccountNo: "002", Role: core.RoleUser, Contribution: 50, ReceivableMonths: []core.Month{"June"}},
		{ID: "c", Name: "Carol", BankName: "Third", BankAccountNo: "003", Role: core.RoleUser, Contribution: 50, ReceivableMonths: []core.Month{"June"}},
	}
	for i := range members {
		members[i] = members[i].ExpandContribution()
	}
	return members
}

func newTestServer(t *testing.T, history PaymentHistory) (*Server, *flakyDirectory) {
	t.Helper()
	dir := &flakyDirectory{Store: memory.New(roster())}
	sessions := session.NewStore(100, time.Hour)
	limit := ratelimit.Config{Requests: 1000, Window: time.Minute}
	srv := NewServer(":0", Deps{
		Directory: dir,
		Engine:    matrix.NewEngine(dir, matrix.DefaultConfig()),
		Sessions:  sessions,
		Ledger:    history,
		RateLimit: &limit,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, dir
}

// client keeps the session cookie between requests.
type client struct {
	t      *testing.T
	srv    *Server
	cookie *http.Cookie
}

func (c *client) do(method, target string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	c.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rr := httptest.NewRecorder()
	c.srv.Handler.ServeHTTP(rr, req)
	for _, ck := range rr.Result().Cookies() {
		if ck.Name == session.CookieName {
			c.cookie = ck
		}
	}
	return rr
}

func hasPaid(t *testing.T, dir *flakyDirectory, payerID string, month core.Month, receiverID string) bool {
	t.Helper()
	members, err := dir.Store.ListMembers(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	m, ok := core.FindMember(members, payerID)
	if !ok {
		t.Fatalf("member %s not found", payerID)
	}
	return m.HasPaid(month, receiverID)
}

func TestIndexAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	c := &client{t: t, srv: srv}

	rr := c.do(http.MethodGet, "/", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Welcome to the Committee System") {
		t.Fatalf("index body missing heading")
	}
	for _, h := range []string{"Content-Security-Policy", "X-Frame-Options", "X-Request-ID"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("header %s missing", h)
		}
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/static/app.css"} {
		if rr := c.do(http.MethodGet, path, nil, false); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
	if rr := c.do(http.MethodGet, "/nope", nil, false); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", rr.Code)
	}
}

func TestListMembers(t *testing.T) {
	srv, dir := newTestServer(t, nil)
	c := &client{t: t, srv: srv}

	rr := c.do(http.MethodGet, "/members", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Alice", "Bob", "$100", "/members/a/edit"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}

	dir.set(func(d *flakyDirectory) { d.failList = true })
	rr = c.do(http.MethodGet, "/members", nil, false)
	if rr.Code != http.StatusBadGateway || !strings.Contains(rr.Body.String(), "Failed to load users") {
		t.Fatalf("failure not reported: status=%d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), errDown.Error()) {
		t.Error("cause leaked to the page")
	}
}

func TestCreateMember(t *testing.T) {
	srv, dir := newTestServer(t, nil)
	c := &client{t: t, srv: srv}

	form := url.Values{
		"name":             {"Dave"},
		"contribution":     {"75"},
		"bankName":         {"Fourth"},
		"bankAccountNo":    {"004"},
		"userType":         {"User"},
		"receivableMonths": {"July"},
	}
	rr := c.do(http.MethodPost, "/members", form, false)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/members" {
		t.Fatalf("create: status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	members, _ := dir.Store.ListMembers(context.Background())
	if len(members) != 4 || members[3].Name != "Dave" || members[3].ContributionAt(0) != 75 {
		t.Fatalf("member not created: %+v", members)
	}

	form.Set("name", "")
	rr = c.do(http.MethodPost, "/members", form, false)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "Failed to add user") {
		t.Fatalf("invalid form: status=%d", rr.Code)
	}

	form.Set("name", "Eve")
	dir.set(func(d *flakyDirectory) { d.failSave = true })
	rr = c.do(http.MethodPost, "/members", form, true)
	if rr.Code != http.StatusBadGateway || !strings.Contains(rr.Body.String(), "Failed to add user") {
		t.Fatalf("directory failure: status=%d", rr.Code)
	}
}

func TestEditAndUpdateMember(t *testing.T) {
	srv, dir := newTestServer(t, nil)
	c := &client{t: t, srv: srv}

	rr := c.do(http.MethodGet, "/members/b/edit", nil, false)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `value="Bob"`) {
		t.Fatalf("edit form: status=%d", rr.Code)
	}
	if rr := c.do(http.MethodGet, "/members/zzz/edit", nil, false); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown member status=%d", rr.Code)
	}

	form := url.Values{
		"name":             {"Robert"},
		"contribution":     {"60"},
		"bankName":         {"Second"},
		"bankAccountNo":    {"002"},
		"userType":         {"User"},
		"receivableMonths": {"June", "July"},
	}
	rr = c.do(http.MethodPost, "/members/b", form, true)
	if rr.Header().Get("HX-Redirect") != "/members" {
		t.Fatalf("update: status=%d hx-redirect=%q", rr.Code, rr.Header().Get("HX-Redirect"))
	}
	members, _ := dir.Store.ListMembers(context.Background())
	bob, _ := core.FindMember(members, "b")
	if bob.Name != "Robert" || len(bob.Contributions) != 2 || bob.Contributions[1] != 60 {
		t.Fatalf("member not updated: %+v", bob)
	}

	dir.set(func(d *flakyDirectory) { d.failSave = true })
	rr = c.do(http.MethodPost, "/members/b", form, false)
	if !strings.Contains(rr.Body.String(), "Failed to update user") {
		t.Fatalf("update failure not reported: status=%d", rr.Code)
	}
}

func TestContributions_LoadReconciles(t *testing.T) {
	srv, dir := newTestServer(t, nil)
	c := &client{t: t, srv: srv}

	rr := c.do(http.MethodGet, "/contributions?month=June", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Bob", "Carol", "$350", "payments marked automatically"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	// Bob and Carol both receive in June, so each is auto-marked as paying the other.
	if !hasPaid(t, dir, "b", "June", "c") || !hasPaid(t, dir, "c", "June", "b") {
		t.Fatal("co-receivers not reconciled")
	}
	if hasPaid(t, dir, "a", "June", "b") {
		t.Fatal("non-receiver auto-marked")
	}
}

func TestContributions_InvalidMonthFallsBack(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	c := &client{t: t, srv: srv}

	rr := c.do(http.MethodGet, "/contributions?month=Jan", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `<option value="May" selected>`) {
		t.Fatal("invalid month did not fall back to May")
	}
}

func TestContributions_MonthSurvivesReload(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	c := &client{t: t, srv: srv}

	c.do(http.MethodGet, "/contributions?month=Aug", nil, false)
	rr := c.do(http.MethodGet, "/contributions", nil, true)
	if !strings.Contains(rr.Body.String(), `<option value="Aug" selected>`) {
		t.Fatal("session month lost")
	}
	if strings.Contains(rr.Body.String(), "<html") {
		t.Error("htmx request got the full page")
	}
}

func TestContributions_LoadFailure(t *testing.T) {
	srv, dir := newTestServer(t, nil)
	c := &client{t: t, srv: srv}
	dir.set(func(d *flakyDirectory) { d.failList = true })

	rr := c.do(http.MethodGet, "/contributions", nil, false)
	if rr.Code != http.StatusBadGateway || !strings.Contains(rr.Body.String(), "Failed to load users") {
		t.Fatalf("status=%d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "Nobody receives") {
		t.Error("empty schedule shown next to the error")
	}
}

func TestContributions_LoadFailureAfterSnapshot(t *testing.T) {
	srv, dir := newTestServer(t, nil)
	c := &client{t: t, srv: srv}
	if rr := c.do(http.MethodGet, "/contributions?month=June", nil, false); !strings.Contains(rr.Body.String(), "Bob") {
		t.Fatalf("first load: status=%d", rr.Code)
	}

	dir.set(func(d *flakyDirectory) { d.failList = true })
	for _, htmx := range []bool{false, true} {
		rr := c.do(http.MethodGet, "/contributions?month=June", nil, htmx)
		body := rr.Body.String()
		if rr.Code != http.StatusBadGateway || !strings.Contains(body, "Failed to load users") {
			t.Fatalf("htmx=%v: status=%d", htmx, rr.Code)
		}
		if strings.Contains(body, "Bob") || strings.Contains(body, "/contributions/toggle") {
			t.Errorf("htmx=%v: stale roster rendered", htmx)
		}
		if !strings.Contains(rr.Header().Get("HX-Trigger"), "show-notification") {
			t.Errorf("htmx=%v: HX-Trigger = %q", htmx, rr.Header().Get("HX-Trigger"))
		}
	}
}

func TestTogglePayment(t *testing.T) {
	srv, dir := newTestServer(t, nil)
	c := &client{t: t, srv: srv}
	c.do(http.MethodGet, "/contributions?month=May", nil, false)

	rr := c.do(http.MethodPost, "/contributions/toggle", url.Values{"payer": {"b"}, "receiver": {"a"}, "month": {"May"}, "paid": {"true"}}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "payment:updated") {
		t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
	}
	if !hasPaid(t, dir, "b", "May", "a") {
		t.Fatal("directory not updated")
	}
	if !strings.Contains(rr.Body.String(), `id="schedule"`) {
		t.Fatal("partial not rendered")
	}
	if !strings.Contains(rr.Body.String(), `name="month" value="May"`) {
		t.Error("toggle form does not carry the page month")
	}

	// plain form post redirects back to the schedule
	rr = c.do(http.MethodPost, "/contributions/toggle", url.Values{"payer": {"b"}, "receiver": {"a"}, "month": {"May"}, "paid": {"false"}}, false)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/contributions?month=May" {
		t.Fatalf("redirect: status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	if hasPaid(t, dir, "b", "May", "a") {
		t.Fatal("unpaid not applied")
	}
}

func TestTogglePayment_UsesPageMonth(t *testing.T) {
	srv, dir := newTestServer(t, nil)
	c := &client{t: t, srv: srv}
	c.do(http.MethodGet, "/contributions?month=June", nil, false)
	// another tab on the same cookie moves the session to May
	c.do(http.MethodGet, "/contributions?month=May", nil, false)

	rr := c.do(http.MethodPost, "/contributions/toggle", url.Values{"payer": {"a"}, "receiver": {"b"}, "month": {"June"}, "paid": {"true"}}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !hasPaid(t, dir, "a", "June", "b") || hasPaid(t, dir, "a", "May", "b") {
		t.Fatal("flag written under the session month instead of the page month")
	}
	if !strings.Contains(rr.Body.String(), `<option value="June" selected>`) {
		t.Error("response does not render the toggled month")
	}

	// a client whose session expired still toggles the month it was shown
	fresh := &client{t: t, srv: srv}
	rr = fresh.do(http.MethodPost, "/contributions/toggle", url.Values{"payer": {"a"}, "receiver": {"c"}, "month": {"June"}, "paid": {"true"}}, false)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/contributions?month=June" {
		t.Fatalf("expired session: status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	if !hasPaid(t, dir, "a", "June", "c") || hasPaid(t, dir, "a", "May", "c") {
		t.Fatal("expired session wrote the wrong month")
	}

	for _, month := range []string{"", "Jan"} {
		form := url.Values{"payer": {"a"}, "receiver": {"b"}, "month": {month}, "paid": {"false"}}
		if rr := c.do(http.MethodPost, "/contributions/toggle", form, true); rr.Code != http.StatusBadRequest {
			t.Errorf("month %q: status=%d", month, rr.Code)
		}
	}
	if !hasPaid(t, dir, "a", "June", "b") {
		t.Error("rejected toggle changed the directory")
	}
}

func TestTogglePayment_Failures(t *testing.T) {
	srv, dir := newTestServer(t, nil)
	c := &client{t: t, srv: srv}
	c.do(http.MethodGet, "/contributions?month=May", nil, false)

	rr := c.do(http.MethodPost, "/contributions/toggle", url.Values{"payer": {"ghost"}, "receiver": {"a"}, "month": {"May"}, "paid": {"true"}}, true)
	if !strings.Contains(rr.Body.String(), "Failed to update payment status") {
		t.Fatalf("unknown payer not rejected: status=%d", rr.Code)
	}

	dir.set(func(d *flakyDirectory) { d.failSet = true })
	rr = c.do(http.MethodPost, "/contributions/toggle", url.Values{"payer": {"b"}, "receiver": {"a"}, "month": {"May"}, "paid": {"true"}}, false)
	if rr.Code != http.StatusBadGateway || !strings.Contains(rr.Body.String(), "Failed to update payment status") {
		t.Fatalf("directory failure: status=%d", rr.Code)
	}
	dir.set(func(d *flakyDirectory) { d.failSet = false })
	if hasPaid(t, dir, "b", "May", "a") {
		t.Fatal("failed toggle changed the directory")
	}

	if rr := c.do(http.MethodPost, "/contributions/toggle", url.Values{"payer": {"b"}}, true); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing fields status=%d", rr.Code)
	}
}

func TestLedgerPage(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	c := &client{t: t, srv: srv}
	rr := c.do(http.MethodGet, "/ledger", nil, false)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "not enabled") {
		t.Fatalf("disabled ledger: status=%d", rr.Code)
	}

	at := time.Date(2026, time.June, 2, 10, 0, 0, 0, time.UTC)
	history := fakeHistory{entries: []ledger.Entry{
		{ID: 1, EventID: "e1", PaymentChange: core.PaymentChange{PayerID: "b", ReceiverID: "c", Month: "June", Paid: true, Source: core.SourceAuto, At: at}},
		{ID: 2, EventID: "e2", PaymentChange: core.PaymentChange{PayerID: "a", ReceiverID: "zzz", Month: "May", Paid: false, Source: core.SourceManual, At: at}},
	}}
	srv, _ = newTestServer(t, history)
	c = &client{t: t, srv: srv}

	rr = c.do(http.MethodGet, "/ledger", nil, false)
	body := rr.Body.String()
	for _, want := range []string{"Bob", "Carol", "zzz", "auto", "manual", "pending"} {
		if !strings.Contains(body, want) {
			t.Errorf("ledger missing %q", want)
		}
	}

	rr = c.do(http.MethodGet, "/ledger?month=May", nil, false)
	if strings.Contains(rr.Body.String(), "Carol") {
		t.Error("month filter ignored")
	}
	if rr := c.do(http.MethodGet, "/ledger?month=Smarch", nil, false); rr.Code != http.StatusBadRequest {
		t.Errorf("bad month status=%d", rr.Code)
	}

	srv, _ = newTestServer(t, fakeHistory{err: errors.New("disk full")})
	c = &client{t: t, srv: srv}
	rr = c.do(http.MethodGet, "/ledger", nil, false)
	if rr.Code != http.StatusInternalServerError || !strings.Contains(rr.Body.String(), "Failed to load payment history") {
		t.Errorf("ledger failure: status=%d", rr.Code)
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	dir := &flakyDirectory{Store: memory.New(roster())}
	limit := ratelimit.Config{Requests: 1, Window: time.Minute, Methods: []string{http.MethodPost}}
	srv := NewServer(":0", Deps{
		Directory: dir,
		Engine:    matrix.NewEngine(dir, matrix.DefaultConfig()),
		Sessions:  session.NewStore(10, time.Hour),
		RateLimit: &limit,
	})
	defer srv.Shutdown(context.Background())
	c := &client{t: t, srv: srv}

	form := url.Values{"payer": {"b"}, "receiver": {"a"}, "month": {"May"}, "paid": {"true"}}
	c.do(http.MethodPost, "/contributions/toggle", form, true)
	if rr := c.do(http.MethodPost, "/contributions/toggle", form, true); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second write status=%d", rr.Code)
	}
	if rr := c.do(http.MethodGet, "/contributions", nil, true); rr.Code != http.StatusOK {
		t.Fatalf("reads must not be limited: %d", rr.Code)
	}
}
