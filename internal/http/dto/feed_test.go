package dto_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sappyoak/sappyoak-site-functions/internal/http/dto"
	"github.com/sappyoak/sappyoak-site-functions/internal/service"
)

var _ = DescribeTable("FeedQueryParams.ToQuery",
	func(params dto.FeedQueryParams, expected service.FeedQuery) {
		Expect(params.ToQuery()).To(Equal(expected))
	},
	Entry("empty", dto.FeedQueryParams{}, service.FeedQuery{}),
	Entry("positive limit", dto.FeedQueryParams{Limit: "5"}, service.FeedQuery{Limit: 5}),
	Entry("zero limit is absent", dto.FeedQueryParams{Limit: "0"}, service.FeedQuery{}),
	Entry("negative limit is absent", dto.FeedQueryParams{Limit: "-3"}, service.FeedQuery{}),
	Entry("non-numeric limit is absent", dto.FeedQueryParams{Limit: "ten"}, service.FeedQuery{}),
	Entry("token passes through", dto.FeedQueryParams{ContinuationToken: "abc"}, service.FeedQuery{ContinuationToken: "abc"}),
	Entry("all flag", dto.FeedQueryParams{All: "true"}, service.FeedQuery{All: true}),
	Entry("garbage all flag", dto.FeedQueryParams{All: "sure"}, service.FeedQuery{}),
)
