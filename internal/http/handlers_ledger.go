package http

import (
	"net/http"
	"strings"

	"committee/internal/core"
	"committee/internal/ledger"
	"committee/internal/log"
)

const ledgerPageSize = 100

type ledgerPage struct {
	pageData
	Enabled bool
	Month   core.Month
	Months  core.Months
	Entries []ledger.Entry
	names   map[string]string
}

// Name resolves a member id for display, falling back to the id.
func (p ledgerPage) Name(id string) string {
	if n, ok := p.names[id]; ok {
		return n
	}
	return id
}

// handleLedger lists recorded payment status changes, newest first.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page := ledgerPage{
		pageData: pageData{Title: "Payment History", Nav: "ledger"},
		Enabled:  s.ledger != nil,
		Months:   core.ScheduleMonths,
	}
	b := NewHTMXResponse()

	if s.ledger == nil {
		page.Notice = "The payment ledger is not enabled."
		s.render(w, r, b, "ledger.html", page)
		return
	}

	var (
		entries []ledger.Entry
		err     error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("month")); raw != "" {
		month, perr := core.ScheduleMonths.Parse(raw)
		if perr != nil {
			BadRequestError("Invalid month").Write(w)
			return
		}
		page.Month = month
		entries, err = s.ledger.ForMonth(ctx, month)
	} else {
		entries, err = s.ledger.Recent(ctx, ledgerPageSize)
	}
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Ledger query failed", log.FieldMonth, string(page.Month), log.FieldError, err)
		page.Error = msgLoadLedger
		b.Status(http.StatusInternalServerError)
	}
	page.Entries = entries

	// Names are cosmetic; the history still renders with raw ids.
	if members, err := s.dir.ListMembers(ctx); err == nil {
		page.names = make(map[string]string, len(members))
		for _, m := range members {
			page.names[m.ID] = m.Name
		}
	}
	s.render(w, r, b, "ledger.html", page)
}
