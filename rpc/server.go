package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"labledger/core"
	"labledger/rpc/middleware"
)

const shutdownTimeout = 10 * time.Second

// ServerConfig bundles the HTTP surface settings.
type ServerConfig struct {
	ServiceName  string
	Auth         middleware.AuthConfig
	RateLimit    middleware.RateLimit
	Tracing      bool
	LogRequests  bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server exposes the ledger over HTTP/JSON and streams committed events over
// websockets.
type Server struct {
	node    *core.Node
	cfg     ServerConfig
	logger  *slog.Logger
	handler http.Handler
}

func NewServer(node *core.Node, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, errors.New("rpc: node required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "labledgerd"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	s := &Server{node: node, cfg: cfg, logger: logger.With("component", "rpc")}
	s.handler = s.routes()
	if cfg.Tracing {
		s.handler = otelhttp.NewHandler(s.handler, cfg.ServiceName)
	}
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	auth := middleware.NewAuthenticator(s.cfg.Auth, s.logger)
	limiter := middleware.NewRateLimiter(s.cfg.RateLimit, s.logger)
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: s.cfg.ServiceName,
		LogRequests: s.cfg.LogRequests,
	}, s.logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(middleware.CORSConfig{}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v chi.Router) {
		v.Use(limiter.Middleware)

		v.Route("/requests", func(rr chi.Router) {
			rr.Use(obs.Middleware("requests"))
			rr.Get("/", s.handleListRequests)
			rr.Get("/count", s.handleRequestCount)
			rr.Get("/country/{country}", s.handleRequestsByCountry)
			rr.Get("/country/{country}/city/{city}", s.handleRequestsByCountryCity)
			rr.Get("/requester/{address}", s.handleRequestsByRequester)
			rr.Get("/{hash}", s.handleGetRequest)
			rr.Get("/{hash}/offer", s.handleGetOffer)
			rr.Group(func(wr chi.Router) {
				wr.Use(auth.Middleware)
				wr.Post("/", s.handleCreateRequest)
				wr.Post("/{hash}/claim", s.handleClaimRequest)
				wr.Post("/{hash}/process", s.handleProcessRequest)
				wr.Post("/{hash}/unstake", s.handleUnstake)
				wr.Post("/{hash}/retrieve", s.handleRetrieve)
			})
		})

		v.Route("/curation", func(cr chi.Router) {
			cr.Use(obs.Middleware("curation"))
			cr.Get("/{address}", s.handleIsCurated)
			cr.Group(func(wr chi.Router) {
				wr.Use(auth.Middleware)
				wr.Post("/{address}", s.handleCurateLab)
				wr.Delete("/{address}", s.handleUncurateLab)
			})
		})

		v.Route("/orders", func(or chi.Router) {
			or.Use(obs.Middleware("escrow"))
			or.Get("/{orderId}", s.handleGetOrder)
			or.Group(func(wr chi.Router) {
				wr.Use(auth.Middleware)
				wr.Post("/{orderId}/pay", s.handlePayOrder)
				wr.Post("/{orderId}/fulfill", s.handleFulfillOrder)
				wr.Post("/{orderId}/refund", s.handleRefundOrder)
			})
		})

		v.Route("/token", func(tr chi.Router) {
			tr.Use(obs.Middleware("token"))
			tr.Get("/balance/{address}", s.handleBalance)
			tr.Get("/allowance/{owner}/{spender}", s.handleAllowance)
			tr.Group(func(wr chi.Router) {
				wr.Use(auth.Middleware)
				wr.Post("/transfer", s.handleTransfer)
				wr.Post("/approve", s.handleApprove)
				wr.Post("/mint", s.handleMint)
			})
		})

		v.Route("/events", func(er chi.Router) {
			er.Use(obs.Middleware("events"))
			er.Get("/", s.handleListEvents)
			er.Get("/ws", s.handleEventsWS)
		})
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "listen", listener.Addr().String())
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func (s *Server) caller(r *http.Request) ([20]byte, bool) {
	return middleware.CallerFromContext(r.Context())
}
