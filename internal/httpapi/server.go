// Package httpapi serves the gateway's REST surface: status pages, the QR
// login page and the authenticated send endpoints.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"wagate/internal/domain"
	"wagate/internal/metrics"
	"wagate/internal/status"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Messenger is the part of the transport the API sends through.
type Messenger interface {
	SendText(ctx context.Context, to, text string) (string, error)
	Lookup(ctx context.Context, number string) (jid string, registered bool, err error)
	Groups(ctx context.Context) ([]domain.Group, error)
}

// StatusReader is the read side of the session status record.
type StatusReader interface {
	Ready() bool
	QR() string
	BotNumber() string
	State() status.State
	Snapshot() status.Snapshot
}

type Config struct {
	Addr      string
	APIKey    string
	BotName   string
	Transport Messenger
	Status    StatusReader
	Provider  domain.Provider // nil disables prompt generation
	MaxTokens int
	Metrics   *metrics.Metrics
	// MetricsPath mounts the Prometheus handler when non-empty.
	MetricsPath string
	BulkDelay   time.Duration
	BulkMax     int
	QRRefresh   time.Duration
	Location    *time.Location
	Logger      *slog.Logger
}

type Server struct {
	cfg    Config
	router chi.Router
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

func New(cfg Config) *Server {
	if cfg.BotName == "" {
		cfg.BotName = "WhatsApp Bot"
	}
	if cfg.BulkMax <= 0 {
		cfg.BulkMax = 100
	}
	if cfg.QRRefresh <= 0 {
		cfg.QRRefresh = 3 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = saoPaulo()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		sleep:  sleepCtx,
		now:    time.Now,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(limitBody(maxBodyBytes))

	r.Get("/", s.handleIndex)
	r.Get("/qrcode", s.handleQRCode)
	r.Get("/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	if s.cfg.MetricsPath != "" && s.cfg.Metrics != nil {
		r.Method(http.MethodGet, s.cfg.MetricsPath, s.cfg.Metrics.Handler())
	}

	r.Group(func(pr chi.Router) {
		pr.Use(s.auth)
		pr.Post("/enviar", s.handleEnviar)
		pr.Post("/send-message", s.handleSendMessage)
		pr.Post("/enviar-grupo", s.handleEnviarGrupo)
		pr.Get("/grupos", s.handleGrupos)
		pr.Post("/check-number", s.handleCheckNumber)
		pr.Post("/send-bulk", s.handleSendBulk)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Rota não encontrada")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Método não permitido")
	})
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down with a 10s grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

func saoPaulo() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
