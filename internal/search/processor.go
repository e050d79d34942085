package search

import (
	"errors"
	"strings"

	"github.com/hyperjump/somnia/internal/config"
)

// ErrEmptyQuery is returned for a blank search query.
var ErrEmptyQuery = errors.New("query must not be empty")

// ProcessQuery trims the query and resolves limit against the configured bounds:
// non-positive becomes the default, anything above the maximum is capped.
func ProcessQuery(query string, limit int, cfg *config.SearchConfig) (string, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", 0, ErrEmptyQuery
	}
	return query, resolveLimit(limit, cfg.DefaultLimit, cfg.MaxLimit), nil
}

func resolveLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}
