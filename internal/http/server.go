package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"committee/internal/core"
	"committee/internal/directory"
	"committee/internal/ledger"
	"committee/internal/log"
	"committee/internal/matrix"
	"committee/internal/metrics"
	"committee/internal/middleware/ratelimit"
	"committee/internal/middleware/security"
	"committee/internal/middleware/trace"
	"committee/internal/session"
	appweb "committee/web"
)

// User-facing error messages. Causes are logged, never shown.
const (
	msgLoadUsers     = "Failed to load users"
	msgAddUser       = "Failed to add user"
	msgUpdateUser    = "Failed to update user"
	msgUpdatePayment = "Failed to update payment status"
	msgLoadLedger    = "Failed to load payment history"
)

// PaymentHistory is the read side of the payment ledger.
type PaymentHistory interface {
	Recent(ctx context.Context, limit int) ([]ledger.Entry, error)
	ForMonth(ctx context.Context, month core.Month) ([]ledger.Entry, error)
}

// Pinger is implemented by dependencies that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the server. Ledger may be nil.
type Deps struct {
	Directory directory.Directory
	Engine    *matrix.Engine
	Sessions  *session.Store
	Ledger    PaymentHistory
	Logger    *log.Logger
	// RateLimit overrides the default write limit.
	RateLimit *ratelimit.Config
}

type Server struct {
	http.Server
	templates *template.Template
	dir       directory.Directory
	engine    *matrix.Engine
	sessions  *session.Store
	ledger    PaymentHistory
	logger    *log.Logger
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	started   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	limitCfg := ratelimit.DefaultConfig()
	if deps.RateLimit != nil {
		limitCfg = *deps.RateLimit
	}

	s := &Server{
		dir:      deps.Directory,
		engine:   deps.Engine,
		sessions: deps.Sessions,
		ledger:   deps.Ledger,
		logger:   logger.WithComponent(log.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(limitCfg),
		detector: security.NewDetector(),
		started:  time.Now(),
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Error("Failed parsing templates", log.FieldComponent, log.ComponentTemplate, log.FieldError, err)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssets(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /members", s.handleListMembers)
	mux.HandleFunc("GET /members/new", s.handleNewMember)
	mux.HandleFunc("GET /members/{id}/edit", s.handleEditMember)
	mux.HandleFunc("POST /members", s.handleCreateMember)
	mux.HandleFunc("POST /members/{id}", s.handleUpdateMember)

	mux.HandleFunc("GET /contributions", s.handleContributions)
	mux.HandleFunc("POST /contributions/toggle", s.handleTogglePayment)

	mux.HandleFunc("GET /ledger", s.handleLedger)

	// Outermost first: every request gets an id before anything can reject it.
	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ClientIP, s.onRateLimit)(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = s.detector.Middleware(handler)
	handler = trace.NewMiddleware(s.logger, s.detector.ClientIP).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops background routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please try again later.").
		TriggerErrorNotification("Too many requests").
		Write(w)
}

// render executes the named template and writes it through b, so the
// status and HX-Trigger headers are sent together with the body.
func (s *Server) render(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	ctx := r.Context()
	if s.templates == nil {
		log.FromContext(ctx).ErrorContext(ctx, "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldComponent, log.ComponentTemplate)
		InternalServerError("templates not loaded").Write(w)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Template execution failed",
			log.FieldOperation, log.OpRender,
			"template", name,
			log.FieldError, err)
		InternalServerError("Failed to render page").Write(w)
		return
	}
	b.Header("Content-Type", "text/html; charset=utf-8").Body(buf.Bytes()).Write(w)
}

var templateFuncs = template.FuncMap{
	"amount":     core.FormatAmount,
	"monthLabel": func(m core.Month) string { return m.Label() },
	"joinMonths": func(ms []core.Month) string {
		parts := make([]string, len(ms))
		for i, m := range ms {
			parts[i] = string(m)
		}
		return strings.Join(parts, ", ")
	},
	"hasMonth": func(ms []core.Month, m core.Month) bool {
		for _, v := range ms {
			if v == m {
				return true
			}
		}
		return false
	},
	"formContribution": formContribution,
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04:05")
	},
}

// formContribution is the single amount shown on the list and the form.
func formContribution(m core.Member) float64 {
	if m.Contribution != 0 || len(m.Contributions) == 0 {
		return m.Contribution
	}
	return m.Contributions[0]
}
