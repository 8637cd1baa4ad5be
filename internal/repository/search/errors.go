package search

import "errors"

var ErrCacheMiss = errors.New("search results not cached")
