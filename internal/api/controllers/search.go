package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/cocosjn/warcvec/internal/app"
)

const (
	defaultTopK = 10
	maxTopK     = 100
)

type SearchController struct {
	App *app.Context
}

// Handle runs a semantic query: GET /search?q=...&k=10
func (ctrl *SearchController) Handle(c *echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing query parameter q"})
	}

	k := defaultTopK
	if raw := c.QueryParam("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "k must be a positive integer"})
		}
		k = parsed
	}
	if k > maxTopK {
		k = maxTopK
	}

	hits, err := ctrl.App.Searcher.Search(c.Request().Context(), query, k)
	if err != nil {
		ctrl.App.Logger.Error("Search for %q failed: %v", query, err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "search failed"})
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, SearchResult{URL: h.URL, H1: h.H1, Score: h.Score})
	}

	return c.JSON(http.StatusOK, SearchResponse{Query: query, K: k, Results: results})
}

// Health is the liveness probe.
func (ctrl *SearchController) Health(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
