// Package remote talks to the Member Directory Service over plain JSON/HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"committee/internal/core"
	"committee/internal/directory"
	"committee/internal/log"
	"committee/internal/metrics"
)

var _ directory.Directory = (*Client)(nil)

type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	logger  *log.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout bounds each request. Zero means no timeout. It applies to
// the client given by WithHTTPClient whatever the option order.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

func WithLogger(l *log.Logger) Option {
	return func(cl *Client) { cl.logger = l.WithComponent(log.ComponentDirectory) }
}

// New creates a client for the service rooted at baseURL, e.g. "https://api.example.org".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse directory url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("directory url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:  log.Default(log.ComponentDirectory),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c, nil
}

// ListMembers implements directory.MemberLister (GET /members).
func (c *Client) ListMembers(ctx context.Context) ([]core.Member, error) {
	var members []core.Member
	if err := c.do(ctx, log.OpList, http.MethodGet, "/members", nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// memberPayload carries the editable fields; the id travels in the path.
type memberPayload struct {
	Name             string       `json:"name"`
	Contribution     float64      `json:"contribution"`
	Contributions    []float64    `json:"contributions"`
	BankName         string       `json:"bankName"`
	BankAccountNo    string       `json:"bankAccountNo"`
	Role             core.Role    `json:"userType"`
	ReceivableMonths []core.Month `json:"receivableMonths"`
}

func payloadOf(m core.Member) memberPayload {
	months := m.ReceivableMonths
	if months == nil {
		months = []core.Month{}
	}
	contributions := m.Contributions
	if contributions == nil {
		contributions = []float64{}
	}
	return memberPayload{
		Name:             m.Name,
		Contribution:     m.Contribution,
		Contributions:    contributions,
		BankName:         m.BankName,
		BankAccountNo:    m.BankAccountNo,
		Role:             m.Role,
		ReceivableMonths: months,
	}
}

// CreateMember implements directory.MemberWriter (POST /members/create).
func (c *Client) CreateMember(ctx context.Context, m core.Member) error {
	return c.do(ctx, log.OpCreate, http.MethodPost, "/members/create", payloadOf(m), nil)
}

// UpdateMember implements directory.MemberWriter (PATCH /members/{id}).
func (c *Client) UpdateMember(ctx context.Context, m core.Member) error {
	if m.ID == "" {
		return fmt.Errorf("update member: %w", directory.ErrMemberNotFound)
	}
	return c.do(ctx, log.OpUpdate, http.MethodPatch, "/members/"+url.PathEscape(m.ID), payloadOf(m), nil)
}

type paymentStatusPayload struct {
	Month      core.Month `json:"month"`
	ReceiverID string     `json:"receiverId"`
	Paid       bool       `json:"paid"`
}

// SetPaymentStatus implements directory.PaymentStatusWriter
// (PATCH /members/{id}/payment-status).
func (c *Client) SetPaymentStatus(ctx context.Context, payerID string, month core.Month, receiverID string, paid bool) error {
	path := "/members/" + url.PathEscape(payerID) + "/payment-status"
	body := paymentStatusPayload{Month: month, ReceiverID: receiverID, Paid: paid}
	return c.do(ctx, log.OpSetStatus, http.MethodPatch, path, body, nil)
}

// Ping checks that the service answers GET /members.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListMembers(ctx)
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.DirectoryRequests.WithLabelValues(op, metrics.Outcome(err)).Inc()
		c.logger.DebugContext(ctx, "Directory request",
			log.FieldOperation, op,
			log.FieldMethod, method,
			log.FieldPath, path,
			log.FieldDuration, time.Since(start).Milliseconds(),
			"ok", err == nil)
	}()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, directory.ErrUnexpectedStatus)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
