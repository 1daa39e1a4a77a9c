package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lantelyes/curiosity-engine/internal/auth"
	"github.com/lantelyes/curiosity-engine/internal/earnings"
	"github.com/lantelyes/curiosity-engine/internal/openai"
)

// RealtimeVendor is the slice of the vendor API the server uses: minting
// ephemeral session credentials and proxying the SDP exchange.
type RealtimeVendor interface {
	CreateSession(ctx context.Context) (openai.SessionCredential, error)
	ExchangeSDP(ctx context.Context, offerSDP, ephemeralKey string) (string, error)
}

// Config wires the server's dependencies.
type Config struct {
	Auth     *auth.Manager
	Realtime RealtimeVendor
	Ledger   earnings.Ledger
}

// Server exposes the application over HTTP.
type Server struct {
	echo     *echo.Echo
	auth     *auth.Manager
	realtime RealtimeVendor
	ledger   earnings.Ledger
}

// New builds the Echo server with all routes registered.
func New(cfg Config) (*Server, error) {
	if cfg.Auth == nil || cfg.Realtime == nil || cfg.Ledger == nil {
		return nil, errors.New("httpserver: auth, realtime and ledger are required")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(auth.Gate(cfg.Auth))

	s := &Server{
		echo:     e,
		auth:     cfg.Auth,
		realtime: cfg.Realtime,
		ledger:   cfg.Ledger,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/login", s.handleLoginPage)
	e.POST("/login", s.handleLogin)
	e.POST("/logout", s.handleLogout)

	e.GET("/api/topics", s.handleTopics)
	e.POST("/api/realtime/session", s.handleRealtimeSession)
	e.POST("/api/realtime/webrtc", s.handleWebRTCExchange)
	e.POST("/api/earnings", s.handleRecordEarnings)
	e.GET("/api/earnings/stats", s.handleEarningsStats)
}

// Handler returns the root http.Handler for serving or tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins serving on the given address.
func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
