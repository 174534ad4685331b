// Package api exposes discovery and scraping over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocorpus/internal/corpus"
	"github.com/hyperifyio/gocorpus/internal/pipeline"
	"github.com/hyperifyio/gocorpus/internal/store"
)

// DefaultMaxPages applies when a request leaves max_pages unset.
const DefaultMaxPages = 10

// Scraper is what the handlers need from the pipeline.
type Scraper interface {
	Discover(ctx context.Context, startURL string, maxPages int) (map[string][]string, error)
	Run(ctx context.Context, sources []corpus.Source, teamID, userID string, maxPages int) (*pipeline.Batch, error)
}

// FromOrchestrator adapts an orchestrator to Scraper. Each Run uses a copy
// carrying the request's page budget.
func FromOrchestrator(o *pipeline.Orchestrator) Scraper {
	return orchestratorScraper{o: o}
}

type orchestratorScraper struct{ o *pipeline.Orchestrator }

func (s orchestratorScraper) Discover(ctx context.Context, startURL string, maxPages int) (map[string][]string, error) {
	return s.o.Discover(ctx, startURL, maxPages)
}

func (s orchestratorScraper) Run(ctx context.Context, sources []corpus.Source, teamID, userID string, maxPages int) (*pipeline.Batch, error) {
	o := *s.o
	if maxPages > 0 {
		o.MaxPages = maxPages
	}
	return o.Run(ctx, sources, teamID, userID)
}

// CrawlRequest is the body of POST /crawl.
type CrawlRequest struct {
	StartURL string `json:"start_url" binding:"required"`
	MaxPages int    `json:"max_pages"`
}

// CrawlResponse maps link types to URLs.
type CrawlResponse struct {
	Results map[string][]string `json:"results"`
}

// ScrapeRequest is the body of POST /scrape.
type ScrapeRequest struct {
	Sources  []string `json:"sources" binding:"required,min=1"`
	TeamID   string   `json:"team_id" binding:"required"`
	UserID   string   `json:"user_id"`
	MaxPages int      `json:"max_pages"`
}

// ScrapeResponse is the batch envelope plus skip reports.
type ScrapeResponse struct {
	RunID   string          `json:"run_id"`
	TeamID  string          `json:"team_id"`
	Items   []corpus.Item   `json:"items"`
	Skipped []pipeline.Skip `json:"skipped"`
}

// Handler serves the scraping endpoints.
type Handler struct {
	scraper Scraper
	sink    store.Sink
}

// NewHandler creates a handler. sink may be nil.
func NewHandler(scraper Scraper, sink store.Sink) *Handler {
	return &Handler{scraper: scraper, sink: sink}
}

// Crawl handles POST /crawl.
func (h *Handler) Crawl(c *gin.Context) {
	var req CrawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !isHTTPURL(req.StartURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_url must be an http(s) URL"})
		return
	}
	if req.MaxPages <= 0 {
		req.MaxPages = DefaultMaxPages
	}
	results, err := h.scraper.Discover(c.Request.Context(), req.StartURL, req.MaxPages)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if results == nil {
		results = map[string][]string{}
	}
	c.JSON(http.StatusOK, CrawlResponse{Results: results})
}

// Scrape handles POST /scrape.
func (h *Handler) Scrape(c *gin.Context) {
	var req ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sources := make([]corpus.Source, 0, len(req.Sources))
	for _, raw := range req.Sources {
		src := corpus.NewSource(raw, "")
		if !src.IsURL() {
			// Local paths would let callers read the server's filesystem.
			c.JSON(http.StatusBadRequest, gin.H{"error": "only http(s) sources are accepted: " + raw})
			return
		}
		sources = append(sources, src)
	}
	b, err := h.scraper.Run(c.Request.Context(), sources, req.TeamID, req.UserID, req.MaxPages)
	if err != nil {
		_ = c.Error(err)
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if h.sink != nil {
		if err := h.sink.Save(c.Request.Context(), b); err != nil {
			_ = c.Error(err)
			log.Error().Err(err).Str("run_id", b.RunID).Msg("persist batch failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "persist batch: " + err.Error()})
			return
		}
	}
	skipped := b.Skipped
	if skipped == nil {
		skipped = []pipeline.Skip{}
	}
	c.JSON(http.StatusOK, ScrapeResponse{RunID: b.RunID, TeamID: b.Result.TeamID, Items: b.Result.Items, Skipped: skipped})
}

func isHTTPURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
