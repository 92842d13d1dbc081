// Package server exposes the vault over HTTP.
package server

import (
	"context"
	"crypto/ed25519"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"medvault/core/auth"
	"medvault/core/logging"
	"medvault/core/oracle"
	"medvault/core/vault"
)

// Options configures a Server.
type Options struct {
	ListenAddr     string
	RateLimitRPS   float64
	RateLimitBurst int
	TLSCertPath    string
	TLSKeyPath     string
	// NodeKey signs journal checkpoints. Checkpoints are served unsigned
	// without it.
	NodeKey ed25519.PrivateKey
	// Receipts checks the gateway receipts that back native payments. The
	// native upload and deposit routes are disabled without it.
	Receipts *oracle.ReceiptVerifier
}

type Server struct {
	vault   *vault.Machine
	auth    *auth.Authenticator
	limiter *RateLimiter
	log     zerolog.Logger
	opts    Options
	started time.Time
	mux     *http.ServeMux
}

func NewServer(m *vault.Machine, a *auth.Authenticator, opts Options, log zerolog.Logger) *Server {
	s := &Server{
		vault:   m,
		auth:    a,
		log:     logging.Component(log, "api"),
		opts:    opts,
		started: time.Now(),
		mux:     http.NewServeMux(),
	}
	if opts.RateLimitRPS > 0 {
		s.limiter = NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// health
	s.mux.HandleFunc("GET /health/liveness", s.HandleLiveness)
	s.mux.HandleFunc("GET /health/readiness", s.HandleReadiness)
	s.mux.HandleFunc("GET /nodehealth", s.HandleNodeHealth)

	// access control
	s.mux.HandleFunc("POST /v1/patients/{pid}/guardian", s.handleSetGuardian)
	s.mux.HandleFunc("POST /v1/patients/{pid}/insurer", s.handleSetInsurer)
	s.mux.HandleFunc("POST /v1/patients/{pid}/self-upload", s.handleSelfUpload)
	s.mux.HandleFunc("POST /v1/patients/{pid}/grants", s.handleGrants)

	// documents
	s.mux.HandleFunc("POST /v1/patients/{pid}/records/{kind}", s.handleUpload)
	s.mux.HandleFunc("POST /v1/patients/{pid}/records/{kind}/native", s.handleUploadNative)
	s.mux.HandleFunc("POST /v1/patients/{pid}/records/{kind}/xrpl", s.handleUploadXRPL)
	s.mux.HandleFunc("POST /v1/patients/{pid}/records/{kind}/read", s.handleRead)
	s.mux.HandleFunc("GET /v1/patients/{pid}/records/{kind}/meta", s.handleRecordMeta)
	s.mux.HandleFunc("GET /v1/patients/{pid}/meta", s.handlePatientMeta)

	// billing
	s.mux.HandleFunc("POST /v1/patients/{pid}/deposit", s.handleDeposit)
	s.mux.HandleFunc("GET /v1/insurers/{addr}/balance", s.handleInsurerBalance)

	// admin
	s.mux.HandleFunc("POST /v1/admin/fees/access", s.handleSetAccessFee)
	s.mux.HandleFunc("POST /v1/admin/fees/upload", s.handleSetUploadFees)
	s.mux.HandleFunc("POST /v1/admin/staleness", s.handleSetStaleness)
	s.mux.HandleFunc("POST /v1/admin/oracles/fdc", s.handleSetFDC)
	s.mux.HandleFunc("POST /v1/admin/oracles/ftso", s.handleSetFTSO)
	s.mux.HandleFunc("POST /v1/admin/withdraw", s.handleWithdraw)
	s.mux.HandleFunc("POST /v1/admin/owner", s.handleTransferOwnership)

	// queries
	s.mux.HandleFunc("GET /v1/quote", s.handleQuote)
	s.mux.HandleFunc("GET /v1/fees", s.handleFees)
	s.mux.HandleFunc("GET /v1/events", s.handleEvents)
	s.mux.HandleFunc("GET /v1/checkpoint", s.handleCheckpoint)
	s.mux.HandleFunc("GET /v1/status", s.HandleStatus)
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	return s.logRequests(h)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		if s.opts.TLSCertPath != "" {
			s.log.Info().Str("addr", s.opts.ListenAddr).Str("cert", s.opts.TLSCertPath).Msg("[HTTPS] serving")
			errc <- srv.ListenAndServeTLS(s.opts.TLSCertPath, s.opts.TLSKeyPath)
			return
		}
		s.log.Info().Str("addr", s.opts.ListenAddr).Msg("[HTTPS] disabled, serving HTTP")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
