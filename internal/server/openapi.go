package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const openAPIRoute = "/openapi.json"

type catalogEntry struct {
	method  string
	path    string
	summary string
	tag     string
}

type openAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type openAPIOperation struct {
	Summary string   `json:"summary,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

type openAPIDocument struct {
	OpenAPI string                                 `json:"openapi"`
	Info    openAPIInfo                            `json:"info"`
	Paths   map[string]map[string]openAPIOperation `json:"paths"`
}

func (s *Server) handleOpenAPI(c *gin.Context) {
	c.JSON(http.StatusOK, s.openAPI())
}

// openAPI describes the registered routes. Only paths, summaries and tags
// are listed; request schemas are not.
func (s *Server) openAPI() openAPIDocument {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := openAPIDocument{
		OpenAPI: "3.0.2",
		Info: openAPIInfo{
			Title:       s.cfg.Server.Title,
			Description: s.cfg.Server.Description,
			Version:     s.cfg.Server.Version,
		},
		Paths: make(map[string]map[string]openAPIOperation),
	}
	for _, e := range s.catalog {
		p := openAPIPath(e.path)
		if doc.Paths[p] == nil {
			doc.Paths[p] = make(map[string]openAPIOperation)
		}
		op := openAPIOperation{Summary: e.summary}
		if e.tag != "" {
			op.Tags = []string{e.tag}
		}
		doc.Paths[p][strings.ToLower(e.method)] = op
	}
	return doc
}

// openAPIPath rewrites gin parameters (:id, *rest) to {id}, {rest}.
func openAPIPath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") || strings.HasPrefix(seg, "*") {
			segments[i] = "{" + seg[1:] + "}"
		}
	}
	return strings.Join(segments, "/")
}
