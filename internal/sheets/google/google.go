// Package google exports payment status changes to a Google Sheets
// spreadsheet, one row per change, in a tab per year.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"committee/internal/core"
	"committee/internal/log"
)

// Header is the first row of every export tab.
var Header = []any{"Timestamp", "Month", "Payer", "Receiver", "Paid", "Source", "Event"}

// Options selects the spreadsheet and the credentials.
type Options struct {
	SpreadsheetID string
	// SheetName is the tab base name; the year of each change is prefixed.
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger

	mu      sync.Mutex
	headers map[string]bool // tabs whose header row is in place
}

// New creates an exporter. Extra client options are appended after the
// credentials, so tests can point the client at a local endpoint.
func New(ctx context.Context, opts Options, extra ...goption.ClientOption) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = "Payments"
	}

	clientOpts, err := credentialOptions(opts)
	if err != nil {
		return nil, err
	}
	clientOpts = append(clientOpts, extra...)

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
		logger:        log.Default(log.ComponentSheets),
		headers:       make(map[string]bool),
	}, nil
}

// credentialOptions uses service account credentials, inline JSON first.
func credentialOptions(opts Options) ([]goption.ClientOption, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		credentialsJSON = []byte(opts.CredentialsJSON)
	case strings.TrimSpace(opts.CredentialsFile) != "":
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		// Tests and local endpoints supply their own auth options.
		return nil, nil
	}
	return []goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, nil
}

// ExportPayment appends change as a row and returns the updated range.
func (c *Client) ExportPayment(ctx context.Context, eventID string, change core.PaymentChange) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if change.PayerID == "" || change.ReceiverID == "" {
		return "", errors.New("export payment: missing payer or receiver")
	}

	at := change.At
	if at.IsZero() {
		at = time.Now()
	}
	sheet := yearPrefixedName(c.sheetBase, at.Year())
	if err := c.ensureHeader(ctx, sheet); err != nil {
		return "", err
	}

	row := []any{
		at.UTC().Format(time.RFC3339),
		string(change.Month),
		change.PayerID,
		change.ReceiverID,
		change.Paid,
		string(change.Source),
		eventID,
	}
	rng := fmt.Sprintf("%s!A:G", sheet)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Payment exported",
		append(log.NewFields().WithPayment(change.PayerID, string(change.Month), change.ReceiverID).
			WithOperation(log.OpExport).ToSlice(), "range", ref)...)
	return ref, nil
}

// ensureHeader writes the header row once per tab.
func (c *Client) ensureHeader(ctx context.Context, sheet string) error {
	c.mu.Lock()
	done := c.headers[sheet]
	c.mu.Unlock()
	if done {
		return nil
	}

	rng := fmt.Sprintf("%s!A1:G1", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", sheet, err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{Header}}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("write header of %s: %w", sheet, err)
		}
		c.logger.InfoContext(ctx, "Header row written", "sheet", sheet)
	}

	c.mu.Lock()
	c.headers[sheet] = true
	c.mu.Unlock()
	return nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
