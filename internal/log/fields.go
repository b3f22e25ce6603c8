package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldMonth      = "month"
	FieldMemberID   = "member_id"
	FieldPayerID    = "payer_id"
	FieldReceiverID = "receiver_id"
	FieldPaid       = "paid"
	FieldSource     = "source"
	FieldCount      = "count"
	FieldSessionID  = "session_id"
	FieldGeneration = "generation"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentDirectory = "directory"
	ComponentMatrix    = "matrix"
	ComponentSession   = "session"
	ComponentLedger    = "ledger"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentTemplate  = "template"
)

// Operations defines standard operation names
const (
	OpList      = "list"
	OpCreate    = "create"
	OpUpdate    = "update"
	OpSetStatus = "set_payment_status"
	OpReconcile = "reconcile"
	OpToggle    = "toggle"
	OpPublish   = "publish"
	OpConsume   = "consume"
	OpRecord    = "record"
	OpExport    = "export"
	OpRender    = "render"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithPayment adds the payer/month/receiver triple
func (f LogFields) WithPayment(payerID, month, receiverID string) LogFields {
	f[FieldPayerID] = payerID
	f[FieldMonth] = month
	f[FieldReceiverID] = receiverID
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
