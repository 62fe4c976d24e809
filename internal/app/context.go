package app

import (
	"context"

	"github.com/cocosjn/warcvec/internal/config"
	"github.com/cocosjn/warcvec/internal/esindex"
	"github.com/cocosjn/warcvec/internal/logger"
)

type Searcher interface {
	// This allows the API controllers to run queries without importing the
	// search package
	Search(ctx context.Context, query string, k int) ([]esindex.Hit, error)
}

// Context holds the shared resources of the HTTP API.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Searcher Searcher
}

func NewContext(cfg *config.Config, log *logger.Logger, searcher Searcher) *Context {
	return &Context{
		Config:   cfg,
		Logger:   log,
		Searcher: searcher,
	}
}
