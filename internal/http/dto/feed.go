package dto

import (
	"strconv"

	"github.com/sappyoak/sappyoak-site-functions/internal/service"
)

// FeedQueryParams are kept as strings so malformed values can be treated
// as absent instead of failing the bind.
type FeedQueryParams struct {
	Limit             string `form:"limit"`
	ContinuationToken string `form:"continuationToken"`
	All               string `form:"all"`
}

func (p FeedQueryParams) ToQuery() service.FeedQuery {
	limit, err := strconv.Atoi(p.Limit)
	if err != nil || limit <= 0 {
		limit = 0
	}
	all, _ := strconv.ParseBool(p.All)

	return service.FeedQuery{
		Limit:             limit,
		ContinuationToken: p.ContinuationToken,
		All:               all,
	}
}
