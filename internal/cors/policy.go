// Package cors turns the configured cross-origin settings into a validated
// policy and the gin middleware that enforces it.
package cors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"issuewiz/config"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var (
	// ErrEmptyAllowList is returned when no origin is allowed.
	ErrEmptyAllowList = errors.New("cors: origin allow-list is empty")
	// ErrWildcardWithCredentials is returned for "*" combined with credentials,
	// which browsers refuse and which would expose cookies to any site.
	ErrWildcardWithCredentials = errors.New("cors: wildcard origin cannot be combined with credentials")
)

// allMethods is what "*" expands to. Browsers do not treat "*" as a
// wildcard in Access-Control-Allow-Methods on credentialed requests.
var allMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodHead,
	http.MethodOptions,
}

// Policy is an immutable, validated cross-origin policy.
type Policy struct {
	origins      []string
	allowed      map[string]struct{}
	allowAll     bool
	credentials  bool
	methods      []string
	headers      []string
	mirrorHeader bool
	cfg          gincors.Config
}

// NewPolicy validates cfg and builds a policy from it.
func NewPolicy(cfg config.CORSConfig) (*Policy, error) {
	p := &Policy{
		allowed:     make(map[string]struct{}),
		credentials: cfg.AllowCredentials,
	}

	for _, origin := range cfg.AllowOrigins {
		origin = normalizeOrigin(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			if cfg.AllowCredentials {
				return nil, ErrWildcardWithCredentials
			}
			p.allowAll = true
			continue
		}
		if _, dup := p.allowed[origin]; dup {
			continue
		}
		p.allowed[origin] = struct{}{}
		p.origins = append(p.origins, origin)
	}
	if p.allowAll {
		p.origins = nil
		p.allowed = map[string]struct{}{}
	} else if len(p.origins) == 0 {
		return nil, ErrEmptyAllowList
	}

	p.methods = expandMethods(cfg.AllowMethods)
	for _, h := range cfg.AllowHeaders {
		if strings.TrimSpace(h) == "*" {
			p.mirrorHeader = true
			p.headers = nil
			break
		}
		p.headers = append(p.headers, h)
	}

	p.cfg = gincors.Config{
		AllowAllOrigins:  p.allowAll,
		AllowOrigins:     p.origins,
		AllowMethods:     p.methods,
		AllowHeaders:     p.headers,
		AllowCredentials: p.credentials,
		MaxAge:           cfg.MaxAge,
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cors: %w", err)
	}
	return p, nil
}

// Origins returns the normalized allow-list; empty when every origin is allowed.
func (p *Policy) Origins() []string {
	return append([]string(nil), p.origins...)
}

// Methods returns the allowed methods after wildcard expansion.
func (p *Policy) Methods() []string {
	return append([]string(nil), p.methods...)
}

// AllowsOrigin reports whether a request Origin header passes the policy.
// The header is matched exactly, as the middleware matches it: browsers
// send a lowercase origin without a trailing slash.
func (p *Policy) AllowsOrigin(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}

// Middleware returns the handlers enforcing the policy. A request whose
// Origin is not allowed is aborted with 403 before reaching any route.
func (p *Policy) Middleware() []gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, 0, 2)
	if p.mirrorHeader {
		handlers = append(handlers, p.mirrorRequestedHeaders)
	}
	return append(handlers, gincors.New(p.cfg))
}

// mirrorRequestedHeaders answers a preflight from an allowed origin with the
// headers it asked for, which is how "*" is honoured alongside credentials.
func (p *Policy) mirrorRequestedHeaders(c *gin.Context) {
	if c.Request.Method == http.MethodOptions && p.AllowsOrigin(c.GetHeader("Origin")) {
		if requested := c.GetHeader("Access-Control-Request-Headers"); requested != "" {
			c.Header("Access-Control-Allow-Headers", requested)
		}
	}
	c.Next()
}

// normalizeOrigin brings a configured origin to the form browsers send.
func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

func expandMethods(methods []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "*" {
			return append([]string(nil), allMethods...)
		}
		if m != "" && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), allMethods...)
	}
	return out
}
