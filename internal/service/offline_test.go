package service

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/mock/gomock"

	"news_verifier/internal/auth"
	"news_verifier/internal/domain"
	"news_verifier/internal/network"
	"news_verifier/internal/storage/local"
)

// TestOfflineSubmitDeliveredAfterReconnect drives the whole path with the
// real device stores: rate while offline, come back online, drain.
func (s *ServiceTestSuite) TestOfflineSubmitDeliveredAfterReconnect() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := local.Open(filepath.Join(s.T().TempDir(), "device.db"))
	s.Require().NoError(err)
	defer db.Close()

	queue := local.NewQueue(db)
	cache := local.NewCache(db, 30*time.Minute, s.logger)
	s.Require().NoError(cache.UpsertMany(ctx, []domain.NewsItem{{ID: 42, Title: "cached", PublishedAt: time.Now()}}))

	monitor := network.NewMonitor(nil, network.Config{}, s.logger)
	monitor.Set(false)

	aggregator := NewAggregator(s.news, cache, s.logger)
	svc := NewRatingService(s.ratings, s.profiles, auth.NewSession("auth-1"), queue, aggregator, monitor, nil, s.logger)
	driver := NewSyncDriver(svc, queue, cache, monitor, s.logger)

	outcome, err := svc.Submit(ctx, domain.RatingSubmission{NewsItemID: 42, Value: 0.75})
	s.Require().NoError(err)
	s.Equal(domain.OutcomeQueued, outcome)

	pending, err := queue.ListAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(int64(42), pending[0].NewsItemID)
	s.Equal(0.75, pending[0].Value)

	s.profiles.EXPECT().FindByAuthID(gomock.Any(), "auth-1").Return(&domain.UserProfile{ID: 7, AuthID: "auth-1"}, nil)
	s.ratings.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, r *domain.RatingItem) error {
			s.Equal(int64(42), r.NewsItemID)
			s.Equal(int64(7), r.UserProfileID)
			s.Equal(0.75, r.AssignedReliabilityScore)
			r.ID = 1
			return nil
		},
	)
	s.news.EXPECT().GetByID(gomock.Any(), int64(42)).Return(&domain.NewsItem{ID: 42, TotalRatings: 3, AverageReliabilityScore: 0.5}, nil)
	s.news.EXPECT().UpdateAggregate(gomock.Any(), int64(42), 4, 0.56).Return(nil)

	s.Require().True(driver.Arm(ctx))
	monitor.Set(true)

	s.Eventually(func() bool {
		n, err := queue.Count(ctx)
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)

	s.Eventually(func() bool {
		n, err := cache.Count(ctx)
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)
}
