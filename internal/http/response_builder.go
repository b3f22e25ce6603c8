package http

import (
	"encoding/json"
	"html/template"
	"net/http"

	"committee/internal/core"
)

// Client-side events carried in HX-Trigger.
const (
	eventPaymentUpdated   = "payment:updated"
	eventMatrixRefresh    = "matrix:refresh"
	eventShowNotification = "show-notification"
)

// HTMXResponseBuilder collects status, headers, HX-Trigger events and a
// body, and sends them in one Write.
type HTMXResponseBuilder struct {
	status   int
	header   http.Header
	triggers map[string]any
	body     []byte
}

func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		status:   http.StatusOK,
		header:   make(http.Header),
		triggers: make(map[string]any),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.status = code
	return b
}

// Trigger queues a client event. A later trigger with the same name wins.
func (b *HTMXResponseBuilder) Trigger(name string, detail any) *HTMXResponseBuilder {
	b.triggers[name] = detail
	return b
}

// TriggerPaymentUpdated reports the pair whose flag was just written.
func (b *HTMXResponseBuilder) TriggerPaymentUpdated(month core.Month, payerID, receiverID string, paid bool) *HTMXResponseBuilder {
	return b.Trigger(eventPaymentUpdated, map[string]any{
		"month":    string(month),
		"payer":    payerID,
		"receiver": receiverID,
		"paid":     paid,
	})
}

// TriggerMatrixRefresh makes the page fetch the schedule for month again.
func (b *HTMXResponseBuilder) TriggerMatrixRefresh(month core.Month) *HTMXResponseBuilder {
	return b.Trigger(eventMatrixRefresh, map[string]string{"month": string(month)})
}

// Redirect navigates htmx requests through HX-Redirect and answers plain
// form posts with 303 See Other.
func (b *HTMXResponseBuilder) Redirect(r *http.Request, url string) *HTMXResponseBuilder {
	if isHTMX(r) {
		b.header.Set("HX-Redirect", url)
		return b
	}
	b.header.Set("Location", url)
	b.status = http.StatusSeeOther
	return b
}

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationInfo    NotificationType = "info"
)

// TriggerNotification shows a toast for durationMs milliseconds.
func (b *HTMXResponseBuilder) TriggerNotification(kind NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger(eventShowNotification, map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": durationMs,
	})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 5000)
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.header.Set(name, value)
	return b
}

func (b *HTMXResponseBuilder) Body(content []byte) *HTMXResponseBuilder {
	b.body = content
	return b
}

// BodyHTML sets an HTML fragment as the body.
func (b *HTMXResponseBuilder) BodyHTML(fragment string) *HTMXResponseBuilder {
	b.header.Set("Content-Type", "text/html; charset=utf-8")
	b.body = []byte(fragment)
	return b
}

// Write sends the response. Triggers that fail to encode are dropped.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	h := w.Header()
	for name, values := range b.header {
		h[name] = values
	}
	if len(b.triggers) > 0 {
		if encoded, err := json.Marshal(b.triggers); err == nil {
			h.Set("HX-Trigger", string(encoded))
		}
	}
	w.WriteHeader(b.status)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse renders message, escaped, in an error box.
func ErrorResponse(status int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(status).
		BodyHTML(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}

func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}
