package search

import "time"

type SetResultsParams struct {
	Query      string
	MaxResults int
	Videos     []Video
	TTL        time.Duration
}

type GetResultsParams struct {
	Query      string
	MaxResults int
}
