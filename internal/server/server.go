// Package server builds the IssueWiz HTTP application: the gin engine, the
// cross-origin policy, the health endpoints and the mounted feature routers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"issuewiz/config"
	"issuewiz/internal/cors"
	"issuewiz/logging"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrDuplicateMount is returned when a prefix is mounted twice.
var ErrDuplicateMount = errors.New("prefix already mounted")

// Route is one endpoint of a feature router. Path is relative to the
// prefix the router is mounted under.
type Route struct {
	Method  string
	Path    string
	Summary string
	Handler gin.HandlerFunc
}

// Router is a feature router that can be mounted on the server.
type Router interface {
	Routes() []Route
}

// Server is the IssueWiz HTTP application.
type Server struct {
	cfg     *config.Config
	engine  *gin.Engine
	policy  *cors.Policy
	httpSrv *http.Server
	ln      net.Listener

	mu      sync.Mutex
	mounted map[string]struct{}
	catalog []catalogEntry
}

// New builds the server with the cross-origin policy and health endpoints
// installed. Feature routers are added with Mount.
func New(cfg *config.Config) (*Server, error) {
	policy, err := cors.NewPolicy(cfg.CORS)
	if err != nil {
		return nil, fmt.Errorf("building cors policy: %w", err)
	}

	engine := gin.New()
	engine.Use(logging.Middleware(), gin.Recovery())
	engine.Use(policy.Middleware()...)

	s := &Server{
		cfg:     cfg,
		engine:  engine,
		policy:  policy,
		mounted: make(map[string]struct{}),
	}
	s.httpSrv = &http.Server{Handler: engine}

	s.handle(http.MethodGet, "/", "Root", "", s.handleRoot)
	s.handle(http.MethodGet, "/health", "Health Check", "Health", s.handleHealth)
	engine.GET(openAPIRoute, s.handleOpenAPI)

	logrus.Infof("Allowed origins: %v", policy.Origins())
	return s, nil
}

// Mount registers every route of r under prefix and tags them with tag.
// Conflicting registrations are returned as errors instead of panicking.
func (s *Server) Mount(prefix, tag string, r Router) (err error) {
	if prefix == "" || prefix[0] != '/' || path.Clean(prefix) != prefix {
		return fmt.Errorf("invalid mount prefix %q: must be a clean path starting with /", prefix)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.mounted[prefix]; dup {
		return fmt.Errorf("mounting %s: %w", prefix, ErrDuplicateMount)
	}

	routes := r.Routes()
	entries := make([]catalogEntry, 0, len(routes))
	for _, route := range routes {
		entries = append(entries, catalogEntry{
			method:  route.Method,
			path:    joinPath(prefix, route.Path),
			summary: route.Summary,
			tag:     tag,
		})
	}
	if err := s.checkConflicts(entries); err != nil {
		return fmt.Errorf("mounting %s: %w", prefix, err)
	}

	// Checked above; kept for routes gin rejects for reasons of its own.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("mounting %s: %v", prefix, rec)
		}
	}()

	for i, route := range routes {
		s.engine.Handle(route.Method, entries[i].path, route.Handler)
		logrus.Debugf("Mounted %s %s", route.Method, entries[i].path)
	}
	s.catalog = append(s.catalog, entries...)
	s.mounted[prefix] = struct{}{}
	return nil
}

// checkConflicts registers the existing and the new routes on a scratch
// engine so a conflict is found before the live engine is touched.
func (s *Server) checkConflicts(entries []catalogEntry) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("conflicting route: %v", rec)
		}
	}()

	noop := func(*gin.Context) {}
	scratch := gin.New()
	scratch.GET(openAPIRoute, noop)
	for _, e := range s.catalog {
		scratch.Handle(e.method, e.path, noop)
	}
	for _, e := range entries {
		scratch.Handle(e.method, e.path, noop)
	}
	return nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Listen binds the configured address. Call Serve to start handling requests.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.cfg.Server.Addr(), err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Serve handles requests until ctx is cancelled, then shuts down within
// server.shutdown_timeout.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("server is not listening")
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down...")
		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		shutdownErr <- s.httpSrv.Shutdown(sctx)
	}()

	logrus.Infof("%s %s running at http://%s", s.cfg.Server.Title, s.cfg.Server.Version, s.Addr())
	if err := s.httpSrv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}

	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// Run listens and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) handle(method, p, summary, tag string, h gin.HandlerFunc) {
	s.engine.Handle(method, p, h)
	s.catalog = append(s.catalog, catalogEntry{method: method, path: p, summary: summary, tag: tag})
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to IssueWiz API!"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "Server is running!"})
}

// joinPath mirrors how gin joins a group prefix and a relative path,
// including a trailing slash on the relative path.
func joinPath(prefix, p string) string {
	if p == "" {
		return prefix
	}
	joined := path.Join(prefix, p)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}
