// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the greeting HTTP server.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sebhosting/seb-ultra-stack/internal/config"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// Greeting is the body served on GET /.
	Greeting = "Hello, world!"

	// Version is the server version.
	Version = "1.0.0"
)

// ============================================================================
// SERVER
// ============================================================================

// Server is the greeting HTTP server.
type Server struct {
	cfg     *config.Config
	router  *http.ServeMux
	handler http.Handler
	server  *http.Server

	// out receives the startup confirmation line.
	out io.Writer

	logRequests     atomic.Bool
	securityHeaders atomic.Bool
	clientIPs       atomic.Pointer[ClientIPResolver]

	// boundPort is the port actually listened on, set by Serve.
	boundPort int

	mu sync.RWMutex
}

// New creates a Server from cfg. A nil cfg uses config.Default().
func New(cfg *config.Config) *Server {
	if cfg == nil {
		cfg = config.Default()
	}

	s := &Server{
		cfg:    cfg,
		router: http.NewServeMux(),
		out:    os.Stdout,
	}
	s.logRequests.Store(cfg.Log.Requests)
	s.securityHeaders.Store(cfg.Server.SecurityHeaders)
	s.clientIPs.Store(NewClientIPResolver(cfg.Server.TrustedProxies))

	s.setupRoutes()

	s.handler = Chain(
		RecoveryMiddleware(),
		RequestIDMiddleware(),
		LoggingMiddleware(log.Default(), s.logRequests.Load, s.ClientIP),
		SecurityHeadersMiddleware(s.securityHeaders.Load),
		CORSMiddleware(cfg.CORS),
		JSONBodyMiddleware(cfg.JSON),
	)(s.router)

	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.handler,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  cfg.Server.IdleTimeout(),
	}

	return s
}

// WithOutput sets where the startup confirmation is written.
func (s *Server) WithOutput(w io.Writer) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = w
	return s
}

// Handler returns the root handler with the full middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Server.Addr()
}

// Port returns the bound port once serving, otherwise the configured port.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.boundPort != 0 {
		return s.boundPort
	}
	return s.cfg.Server.Port
}

// ClientIP resolves the client address of r with the current trusted proxies.
func (s *Server) ClientIP(r *http.Request) string {
	return s.clientIPs.Load().ClientIP(r)
}

// ============================================================================
// ROUTES
// ============================================================================

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /{$}", s.handleRoot)

	// Catch-all so that other methods on "/" get 404 rather than the mux's 405.
	s.router.HandleFunc("/", s.handleNotFound)
}

// handleRoot handles GET / (and HEAD /).
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(Greeting)))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, Greeting)
}

// handleNotFound answers every unmatched route.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}

// ============================================================================
// CONFIG RELOAD
// ============================================================================

// ApplyConfig applies the hot-reloadable subset of cfg: request logging,
// security headers and trusted proxies. Listener and CORS changes need a
// restart.
func (s *Server) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	s.logRequests.Store(cfg.Log.Requests)
	s.securityHeaders.Store(cfg.Server.SecurityHeaders)
	s.clientIPs.Store(NewClientIPResolver(cfg.Server.TrustedProxies))

	if cfg.Server.Addr() != s.cfg.Server.Addr() {
		log.Printf("CONFIG_RESTART_REQUIRED | field=server.addr current=%s new=%s", s.cfg.Server.Addr(), cfg.Server.Addr())
	}
	log.Printf("CONFIG_APPLIED | log_requests=%t security_headers=%t trusted_proxies=%d",
		cfg.Log.Requests, cfg.Server.SecurityHeaders, len(cfg.Server.TrustedProxies))
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Listen binds the configured address.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", s.Addr(), err)
	}
	return ln, nil
}

// Serve accepts connections on ln. The startup confirmation is written once,
// after the socket is bound and before the first connection is accepted.
func (s *Server) Serve(ln net.Listener) error {
	port := s.cfg.Server.Port
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	s.mu.Lock()
	s.boundPort = port
	out := s.out
	s.mu.Unlock()

	log.Printf("SERVER_START | addr=%s version=%s", ln.Addr().String(), Version)
	fmt.Fprintf(out, "Server running on port %d\n", port)

	return s.server.Serve(ln)
}

// Start binds the configured address and serves until Shutdown.
// It returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}
