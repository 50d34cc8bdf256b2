// Package pagination parses limit/offset query parameters and shapes
// paged list responses.
package pagination

import (
	"fmt"
	"strconv"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Params holds validated paging parameters.
type Params struct {
	Limit  int
	Offset int
}

// Parse validates limit and offset query strings. Empty strings fall back
// to the defaults.
func Parse(limitStr, offsetStr string) (*Params, error) {
	limit := DefaultLimit
	if limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid limit: %q", limitStr)
		}
		if n > MaxLimit {
			n = MaxLimit
		}
		limit = n
	}

	offset := 0
	if offsetStr != "" {
		n, err := strconv.Atoi(offsetStr)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid offset: %q", offsetStr)
		}
		offset = n
	}

	return &Params{Limit: limit, Offset: offset}, nil
}

// Page wraps one page of results with the totals a client needs to page
// further.
type Page struct {
	Items  any   `json:"items"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

// NewPage builds a page envelope.
func NewPage(items any, params *Params, total int64) *Page {
	return &Page{
		Items:  items,
		Limit:  params.Limit,
		Offset: params.Offset,
		Total:  total,
	}
}
