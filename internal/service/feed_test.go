package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/mock/gomock"

	"news_verifier/internal/domain"
)

func (s *ServiceTestSuite) TestLoad_FreshCacheSkipsFetch() {
	ctx := context.Background()

	s.cache.EXPECT().IsStale(ctx).Return(false, nil)

	err := s.feed.Load(ctx, FeedRequest{})
	s.NoError(err)
}

func (s *ServiceTestSuite) TestLoad_StaleCacheFetches() {
	ctx := context.Background()
	category := int64(3)
	page := []domain.NewsItem{{ID: 1}, {ID: 2}}

	s.cache.EXPECT().IsStale(ctx).Return(true, nil)
	s.news.EXPECT().FetchPage(ctx, domain.PageQuery{CategoryID: &category, Limit: 20, Offset: 40}).Return(page, nil)
	s.cache.EXPECT().UpsertMany(ctx, page).Return(nil)

	err := s.feed.Load(ctx, FeedRequest{CategoryID: &category, Offset: 40})
	s.NoError(err)
}

func (s *ServiceTestSuite) TestLoad_ForcedClearsBeforeInsert() {
	ctx := context.Background()
	page := []domain.NewsItem{{ID: 1}}

	s.news.EXPECT().FetchPage(ctx, domain.PageQuery{Limit: 5}).Return(page, nil)
	gomock.InOrder(
		s.cache.EXPECT().Clear(ctx).Return(nil),
		s.cache.EXPECT().UpsertMany(ctx, page).Return(nil),
	)

	err := s.feed.Load(ctx, FeedRequest{ForceRefresh: true, PageSize: 5})
	s.NoError(err)
}

func (s *ServiceTestSuite) TestLoad_EmptyPageKeepsCache() {
	ctx := context.Background()

	s.news.EXPECT().FetchPage(ctx, gomock.Any()).Return([]domain.NewsItem{}, nil)

	err := s.feed.Load(ctx, FeedRequest{ForceRefresh: true})
	s.NoError(err)
}

func (s *ServiceTestSuite) TestLoad_FetchErrorKeepsCache() {
	ctx := context.Background()

	s.cache.EXPECT().IsStale(ctx).Return(true, nil)
	s.news.EXPECT().FetchPage(ctx, gomock.Any()).Return(nil, errors.New("connection refused"))

	err := s.feed.Load(ctx, FeedRequest{})
	s.ErrorContains(err, "connection refused")
}

func (s *ServiceTestSuite) TestLoad_StalenessCheckFails() {
	ctx := context.Background()

	s.cache.EXPECT().IsStale(ctx).Return(false, &domain.StorageError{Op: "is stale", Err: errors.New("locked")})

	err := s.feed.Load(ctx, FeedRequest{})
	s.True(domain.IsStorageError(err))
}

func (s *ServiceTestSuite) TestRefresh_UsesDefaultPage() {
	ctx := context.Background()

	s.news.EXPECT().FetchPage(ctx, domain.PageQuery{Limit: 20}).Return([]domain.NewsItem{{ID: 9}}, nil)
	s.cache.EXPECT().Clear(ctx).Return(nil)
	s.cache.EXPECT().UpsertMany(ctx, gomock.Any()).Return(nil)

	s.NoError(s.feed.Refresh(ctx, nil))
}

func (s *ServiceTestSuite) TestEvictExpired_UsesWindow() {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.feed.now = func() time.Time { return now }

	s.cache.EXPECT().EvictExpired(ctx, now.Add(-30*time.Minute)).Return(int64(3), nil)

	n, err := s.feed.EvictExpired(ctx)
	s.NoError(err)
	s.Equal(int64(3), n)
}

func (s *ServiceTestSuite) TestItem_CacheHit() {
	ctx := context.Background()

	s.cache.EXPECT().Get(ctx, int64(5)).Return(&domain.CachedNewsItem{NewsItem: domain.NewsItem{ID: 5, Title: "cached"}}, nil)

	item, err := s.feed.Item(ctx, 5)
	s.NoError(err)
	s.Equal("cached", item.Title)
}

func (s *ServiceTestSuite) TestItem_CacheMissFetchesAndCaches() {
	ctx := context.Background()
	remote := &domain.NewsItem{ID: 5, Title: "remote"}

	s.cache.EXPECT().Get(ctx, int64(5)).Return(nil, domain.ErrNewsItemNotFound)
	s.news.EXPECT().GetByID(ctx, int64(5)).Return(remote, nil)
	s.cache.EXPECT().UpsertMany(ctx, []domain.NewsItem{*remote}).Return(nil)

	item, err := s.feed.Item(ctx, 5)
	s.NoError(err)
	s.Equal("remote", item.Title)
}

func (s *ServiceTestSuite) TestItem_NotFound() {
	ctx := context.Background()

	s.cache.EXPECT().Get(ctx, int64(5)).Return(nil, domain.ErrNewsItemNotFound)
	s.news.EXPECT().GetByID(ctx, int64(5)).Return(nil, domain.ErrNewsItemNotFound)

	_, err := s.feed.Item(ctx, 5)
	s.ErrorIs(err, domain.ErrNewsItemNotFound)
}

func (s *ServiceTestSuite) TestReadThroughQueries() {
	ctx := context.Background()

	s.categories.EXPECT().List(ctx).Return([]domain.Category{{ID: 1, Name: "Health"}}, nil)
	s.ratings.EXPECT().ListByNewsItem(ctx, int64(42)).Return([]domain.RatingItem{{ID: 1}}, nil)
	s.ratings.EXPECT().StatsByCategory(ctx).Return(nil, errors.New("timeout"))

	categories, err := s.feed.Categories(ctx)
	s.NoError(err)
	s.Len(categories, 1)

	ratings, err := s.feed.Ratings(ctx, 42)
	s.NoError(err)
	s.Len(ratings, 1)

	_, err = s.feed.Stats(ctx)
	s.ErrorContains(err, "rating stats")
}
