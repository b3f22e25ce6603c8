package http

import (
	"fmt"
	"net/http"
	"net/url"

	"committee/internal/core"
	"committee/internal/log"
	"committee/internal/matrix"
)

// scheduleData feeds the schedule partial.
type scheduleData struct {
	View   matrix.View
	Months core.Months
	Error  string
	Notice string

	// LoadFailed hides the table; the roster could not be fetched.
	LoadFailed bool
}

type contributionsPage struct {
	pageData
	Schedule scheduleData
}

// handleContributions selects the requested month, refetches the roster
// and renders the schedule. Loading also runs automatic reconciliation.
func (s *Server) handleContributions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)
	sessionID, sess := s.sessions.FromRequest(w, r)

	param := ParseMonthParam(r.URL.Query())
	month := sess.Month()
	if param.Present {
		month = param.Month
	}
	if param.Invalid {
		logger.WarnContext(ctx, "Invalid month parameter",
			log.FieldMonth, param.Raw,
			"corrected_to", string(month))
	}
	if err := sess.SelectMonth(month); err != nil {
		month = core.DefaultScheduleMonth
		_ = sess.SelectMonth(month)
	}

	b := NewHTMXResponse()
	data := scheduleData{Months: core.ScheduleMonths}

	res, err := s.engine.Load(ctx, sess)
	if err != nil {
		// No rows from an older snapshot are shown next to a failed fetch.
		logger.ErrorContext(ctx, "Schedule load failed", log.FieldSessionID, sessionID, log.FieldError, err)
		data.Error = msgLoadUsers
		data.LoadFailed = true
		data.View = matrix.View{Month: month}
		b.Status(http.StatusBadGateway).TriggerErrorNotification(msgLoadUsers)
		s.renderSchedule(w, r, b, data)
		return
	}
	data.Notice = reconcileNotice(res)
	data.View = sess.View()

	s.renderSchedule(w, r, b, data)
}

// handleTogglePayment flips one payment flag through the directory and
// re-renders the schedule.
func (s *Server) handleTogglePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)
	sessionID, sess := s.sessions.FromRequest(w, r)

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	params, err := ParseToggleParams(p)
	if err != nil {
		BadRequestError(msgUpdatePayment).Write(w)
		return
	}

	// The flag belongs to the month on the page that was clicked, which may
	// differ from the session's month after another tab or an expiry.
	month := params.Month
	if err := sess.SelectMonth(month); err != nil {
		BadRequestError(msgUpdatePayment).Write(w)
		return
	}

	// A fresh or expired session has no roster to check the payer against.
	if !sess.Loaded() {
		if _, err := s.engine.Load(ctx, sess); err != nil {
			logger.ErrorContext(ctx, "Schedule load failed", log.FieldSessionID, sessionID, log.FieldError, err)
		}
	}

	b := NewHTMXResponse()
	data := scheduleData{Months: core.ScheduleMonths}

	res, err := s.engine.Toggle(ctx, sess, params.PayerID, params.ReceiverID, month, params.Paid)
	if err != nil {
		data.Error = msgUpdatePayment
		b.TriggerErrorNotification(msgUpdatePayment)
		if !isHTMX(r) {
			b.Status(http.StatusBadGateway)
		}
	} else {
		if !isHTMX(r) {
			NewHTMXResponse().Redirect(r, "/contributions?month="+url.QueryEscape(string(month))).Write(w)
			return
		}
		data.Notice = reconcileNotice(res)
		b.TriggerPaymentUpdated(month, params.PayerID, params.ReceiverID, params.Paid).
			TriggerSuccessNotification(toggleMessage(params.Paid))
		if res.Stale {
			// Another tab moved the session to a different month meanwhile.
			b.TriggerMatrixRefresh(sess.Month())
		}
	}
	data.View = sess.View()

	s.renderSchedule(w, r, b, data)
}

// renderSchedule sends only the partial to htmx and the full page otherwise.
func (s *Server) renderSchedule(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, data scheduleData) {
	if isHTMX(r) {
		s.render(w, r, b, "schedule", data)
		return
	}
	s.render(w, r, b, "contributions.html", contributionsPage{
		pageData: pageData{Title: "Contribution Schedule", Nav: "contributions"},
		Schedule: data,
	})
}

func toggleMessage(paid bool) string {
	if paid {
		return "Payment marked as paid"
	}
	return "Payment marked as unpaid"
}

func reconcileNotice(res matrix.ReconcileResult) string {
	switch {
	case res.Applied == 0 && res.Deferred == 0:
		return ""
	case res.Deferred > 0:
		return fmt.Sprintf("%d payments marked automatically, %d more on the next refresh", res.Applied, res.Deferred)
	case res.Applied == 1:
		return "1 payment marked automatically"
	default:
		return fmt.Sprintf("%d payments marked automatically", res.Applied)
	}
}
