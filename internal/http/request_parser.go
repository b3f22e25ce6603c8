// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// It reduces code duplication by providing reusable functions for the member
// form, the month selector and the payment toggle.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"committee/internal/core"
)

// maxBodyBytes bounds form and JSON bodies.
const maxBodyBytes = 64 << 10

// MonthParam is the outcome of reading the ?month= selector.
type MonthParam struct {
	Month core.Month
	// Present is false when no month was requested.
	Present bool
	// Invalid is set when a month was requested but is not on the schedule.
	Invalid bool
	Raw     string
}

// ParseMonthParam reads the schedule month from query. Unknown months fall
// back to the default schedule month.
func ParseMonthParam(query url.Values) MonthParam {
	raw := strings.TrimSpace(query.Get("month"))
	if raw == "" {
		return MonthParam{Month: core.DefaultScheduleMonth}
	}
	m, err := core.ScheduleMonths.Parse(raw)
	if err != nil {
		return MonthParam{Month: core.DefaultScheduleMonth, Present: true, Invalid: true, Raw: raw}
	}
	return MonthParam{Month: m, Present: true, Raw: raw}
}

// ToggleParams is a manual payment flag change.
type ToggleParams struct {
	PayerID    string
	ReceiverID string
	// Month is the month of the page the flag was clicked on.
	Month core.Month
	Paid  bool
}

var errMissingField = errors.New("missing required field")

// ParseToggleParams reads payer, receiver, month and the requested paid value.
func ParseToggleParams(p *RequestBodyParser) (ToggleParams, error) {
	params := ToggleParams{
		PayerID:    p.Get("payer"),
		ReceiverID: p.Get("receiver"),
	}
	raw := p.Get("month")
	if params.PayerID == "" || params.ReceiverID == "" || raw == "" {
		return params, errMissingField
	}
	month, err := core.ScheduleMonths.Parse(raw)
	if err != nil {
		return params, err
	}
	params.Month = month
	paid, err := strconv.ParseBool(p.Get("paid"))
	if err != nil {
		return params, err
	}
	params.Paid = paid
	return params, nil
}

// ParseMemberForm builds a member from the add/edit form. The single
// contribution amount is expanded over the receivable months.
func ParseMemberForm(p *RequestBodyParser) (core.Member, error) {
	m := core.Member{
		Name:          p.Get("name"),
		BankName:      p.Get("bankName"),
		BankAccountNo: p.Get("bankAccountNo"),
		Role:          core.RoleUser,
	}

	if v := p.Get("userType"); v != "" {
		role, err := core.ParseRole(v)
		if err != nil {
			return m, err
		}
		m.Role = role
	}

	if v := p.Get("contribution"); v != "" {
		amount, err := core.ParseAmount(v)
		if err != nil {
			return m, err
		}
		m.Contribution = amount
	}

	seen := make(map[core.Month]bool)
	for _, raw := range p.GetAll("receivableMonths") {
		month, err := core.EntryMonths.Parse(raw)
		if err != nil {
			return m, err
		}
		if !seen[month] {
			seen[month] = true
			m.ReceivableMonths = append(m.ReceivableMonths, month)
		}
	}

	m = m.ExpandContribution()
	return m, m.Validate()
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body of r once, up to maxBodyBytes.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// GetAll returns every value of a repeated form field or a JSON array.
func (p *RequestBodyParser) GetAll(key string) []string {
	var raw []string
	switch {
	case p.jsonData != nil:
		switch v := p.jsonData[key].(type) {
		case []interface{}:
			for _, item := range v {
				raw = append(raw, stringValue(item))
			}
		case string:
			raw = []string{v}
		}
	case p.formData != nil:
		raw = p.formData[key]
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if v = sanitizeInput(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput trims whitespace and drops control characters other than
// tab and newlines.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
