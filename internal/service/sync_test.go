package service

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"go.uber.org/mock/gomock"

	"news_verifier/internal/auth"
	"news_verifier/internal/domain"
	"news_verifier/internal/network"
	"news_verifier/internal/storage/local"
)

func pendingItems(values ...float64) []domain.PendingRatingSubmission {
	items := make([]domain.PendingRatingSubmission, 0, len(values))
	for i, v := range values {
		items = append(items, domain.PendingRatingSubmission{
			ID:         int64(i + 1),
			NewsItemID: int64(100 + i),
			Value:      v,
		})
	}
	return items
}

func (s *ServiceTestSuite) TestDrain_EmptyQueue() {
	ctx := context.Background()

	s.queue.EXPECT().ListAll(ctx).Return(nil, nil)

	report, err := s.driver.Drain(ctx)

	s.NoError(err)
	s.True(report.Complete())
	s.Empty(report.Delivered)
}

func (s *ServiceTestSuite) TestDrain_ReplaysInOrder() {
	ctx := context.Background()
	items := pendingItems(0.5, 0.567, 0.9)

	s.queue.EXPECT().ListAll(ctx).Return(items, nil)
	s.expectProfile(ctx, 7)
	s.network.EXPECT().Online().Return(true).Times(3)

	var inserted []float64
	calls := make([]any, 0, len(items)*2)
	for _, p := range items {
		calls = append(calls,
			s.ratings.EXPECT().Insert(ctx, gomock.Any()).DoAndReturn(
				func(_ context.Context, r *domain.RatingItem) error {
					s.Equal(int64(7), r.UserProfileID)
					inserted = append(inserted, r.AssignedReliabilityScore)
					return nil
				},
			),
			s.queue.EXPECT().Remove(ctx, p).Return(nil),
		)
		s.news.EXPECT().GetByID(ctx, p.NewsItemID).Return(&domain.NewsItem{ID: p.NewsItemID}, nil)
		s.news.EXPECT().UpdateAggregate(ctx, p.NewsItemID, 1, gomock.Any()).Return(nil)
	}
	gomock.InOrder(calls...)

	s.cache.EXPECT().Clear(gomock.Any()).Return(nil).Times(len(items) + 1)
	s.publisher.EXPECT().PublishRating(ctx, gomock.Any()).Return(nil).Times(len(items))
	s.queue.EXPECT().Count(gomock.Any()).Return(0, nil)

	report, err := s.driver.Drain(ctx)

	s.NoError(err)
	s.True(report.Complete())
	s.Equal([]int64{1, 2, 3}, report.Delivered)
	s.Equal(int64(7), report.ProfileID)
	s.Equal([]float64{0.5, 0.56, 0.9}, inserted)
}

func (s *ServiceTestSuite) TestDrain_StopsAtFirstFailure() {
	ctx := context.Background()
	items := pendingItems(0.5, 0.6, 0.7)

	s.queue.EXPECT().ListAll(ctx).Return(items, nil)
	s.expectProfile(ctx, 7)
	s.network.EXPECT().Online().Return(true).Times(2)

	gomock.InOrder(
		s.ratings.EXPECT().Insert(ctx, gomock.Any()).Return(nil),
		s.ratings.EXPECT().Insert(ctx, gomock.Any()).Return(errors.New("timeout")),
	)
	s.expectRecompute(ctx, 100, domain.NewsItem{ID: 100}, 1, 0.5)
	s.publisher.EXPECT().PublishRating(ctx, gomock.Any()).Return(nil)
	s.queue.EXPECT().Remove(ctx, items[0]).Return(nil)

	s.cache.EXPECT().Clear(gomock.Any()).Return(nil)
	s.queue.EXPECT().Count(gomock.Any()).Return(2, nil)

	report, err := s.driver.Drain(ctx)

	s.NoError(err)
	s.False(report.Complete())
	s.Equal([]int64{1}, report.Delivered)
	s.Equal([]int64{2, 3}, report.Pending)
	s.Equal(domain.StopRemoteFailed, report.StopReason)
}

func (s *ServiceTestSuite) TestDrain_StopsWhenOffline() {
	ctx := context.Background()
	items := pendingItems(0.5, 0.6)

	s.queue.EXPECT().ListAll(ctx).Return(items, nil)
	s.expectProfile(ctx, 7)
	gomock.InOrder(
		s.network.EXPECT().Online().Return(true),
		s.network.EXPECT().Online().Return(false),
	)
	s.ratings.EXPECT().Insert(ctx, gomock.Any()).Return(nil)
	s.expectRecompute(ctx, 100, domain.NewsItem{ID: 100}, 1, 0.5)
	s.publisher.EXPECT().PublishRating(ctx, gomock.Any()).Return(nil)
	s.queue.EXPECT().Remove(ctx, items[0]).Return(nil)

	s.cache.EXPECT().Clear(gomock.Any()).Return(nil)
	s.queue.EXPECT().Count(gomock.Any()).Return(1, nil)

	report, err := s.driver.Drain(ctx)

	s.NoError(err)
	s.Equal([]int64{1}, report.Delivered)
	s.Equal([]int64{2}, report.Pending)
	s.Equal(domain.StopOffline, report.StopReason)
}

func (s *ServiceTestSuite) TestDrain_AggregateFailureKeepsItemForRecompute() {
	ctx := context.Background()
	items := pendingItems(0.5, 0.6)

	s.queue.EXPECT().ListAll(ctx).Return(items, nil)
	s.expectProfile(ctx, 7)
	s.network.EXPECT().Online().Return(true)
	s.ratings.EXPECT().Insert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, r *domain.RatingItem) error {
			r.ID = 900
			return nil
		},
	)
	s.news.EXPECT().GetByID(ctx, int64(100)).Return(nil, errors.New("timeout"))
	s.publisher.EXPECT().PublishRating(ctx, gomock.Any()).Return(nil)
	s.queue.EXPECT().MarkInserted(gomock.Any(), items[0], int64(900)).Return(nil)

	s.cache.EXPECT().Clear(gomock.Any()).Return(nil)
	s.queue.EXPECT().Count(gomock.Any()).Return(2, nil)

	report, err := s.driver.Drain(ctx)

	s.NoError(err)
	s.Empty(report.Delivered)
	s.Equal([]int64{1, 2}, report.Pending)
	s.Equal(1, report.AggregateErrors)
	s.Equal(domain.StopAggregateFailed, report.StopReason)
}

func (s *ServiceTestSuite) TestDrain_StoredRatingOnlyRecomputes() {
	ctx := context.Background()
	items := pendingItems(0.5, 0.6)
	items[0].RatingID = 900

	s.queue.EXPECT().ListAll(ctx).Return(items, nil)
	s.expectProfile(ctx, 7)
	s.network.EXPECT().Online().Return(true).Times(2)

	// Only the second item reaches the rating table and the event stream.
	s.ratings.EXPECT().Insert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, r *domain.RatingItem) error {
			s.Equal(int64(101), r.NewsItemID)
			return nil
		},
	)
	s.publisher.EXPECT().PublishRating(ctx, gomock.Any()).Return(nil)

	s.expectRecompute(ctx, 100, domain.NewsItem{ID: 100, TotalRatings: 1, AverageReliabilityScore: 0.7}, 2, 0.6)
	s.expectRecompute(ctx, 101, domain.NewsItem{ID: 101}, 1, 0.6)
	gomock.InOrder(
		s.queue.EXPECT().Remove(ctx, items[0]).Return(nil),
		s.queue.EXPECT().Remove(ctx, items[1]).Return(nil),
	)

	s.cache.EXPECT().Clear(gomock.Any()).Return(nil)
	s.queue.EXPECT().Count(gomock.Any()).Return(0, nil)

	report, err := s.driver.Drain(ctx)

	s.NoError(err)
	s.True(report.Complete())
	s.Equal([]int64{1, 2}, report.Delivered)
}

func (s *ServiceTestSuite) TestDrain_MarkInsertedFailureIsFatal() {
	ctx := context.Background()
	items := pendingItems(0.5)

	s.queue.EXPECT().ListAll(ctx).Return(items, nil)
	s.expectProfile(ctx, 7)
	s.network.EXPECT().Online().Return(true)
	s.ratings.EXPECT().Insert(ctx, gomock.Any()).Return(nil)
	s.news.EXPECT().GetByID(ctx, int64(100)).Return(nil, errors.New("timeout"))
	s.publisher.EXPECT().PublishRating(ctx, gomock.Any()).Return(nil)
	s.queue.EXPECT().MarkInserted(gomock.Any(), items[0], int64(0)).Return(&domain.StorageError{Op: "mark", Err: errors.New("disk I/O error")})

	s.cache.EXPECT().Clear(gomock.Any()).Return(nil)
	s.queue.EXPECT().Count(gomock.Any()).Return(1, nil)

	report, err := s.driver.Drain(ctx)

	s.True(domain.IsStorageError(err))
	s.Equal([]int64{1}, report.Pending)
}

func (s *ServiceTestSuite) TestDrain_ProfileResolutionFails() {
	ctx := context.Background()
	items := pendingItems(0.5, 0.6)

	s.queue.EXPECT().ListAll(ctx).Return(items, nil)
	s.identity.EXPECT().CurrentIdentity().Return("", false)

	report, err := s.driver.Drain(ctx)

	s.ErrorIs(err, domain.ErrProfileResolution)
	s.Equal([]int64{1, 2}, report.Pending)
	s.Empty(report.Delivered)
}

func (s *ServiceTestSuite) TestDrain_ListFails() {
	ctx := context.Background()

	s.queue.EXPECT().ListAll(ctx).Return(nil, &domain.StorageError{Op: "list pending", Err: errors.New("locked")})

	report, err := s.driver.Drain(ctx)

	s.Nil(report)
	s.True(domain.IsStorageError(err))
}

func (s *ServiceTestSuite) TestDrain_RemoveFailureIsFatal() {
	ctx := context.Background()
	items := pendingItems(0.5, 0.6)

	s.queue.EXPECT().ListAll(ctx).Return(items, nil)
	s.expectProfile(ctx, 7)
	s.network.EXPECT().Online().Return(true)
	s.ratings.EXPECT().Insert(ctx, gomock.Any()).Return(nil)
	s.expectRecompute(ctx, 100, domain.NewsItem{ID: 100}, 1, 0.5)
	s.publisher.EXPECT().PublishRating(ctx, gomock.Any()).Return(nil)
	s.queue.EXPECT().Remove(ctx, items[0]).Return(&domain.StorageError{Op: "remove", Err: errors.New("disk I/O error")})

	s.cache.EXPECT().Clear(gomock.Any()).Return(nil)
	s.queue.EXPECT().Count(gomock.Any()).Return(2, nil)

	report, err := s.driver.Drain(ctx)

	s.True(domain.IsStorageError(err))
	s.Equal([]int64{1}, report.Delivered)
	s.Equal([]int64{2}, report.Pending)
}

func (s *ServiceTestSuite) TestDrain_CanceledStopsBeforeNextItem() {
	ctx, cancel := context.WithCancel(context.Background())
	items := pendingItems(0.5, 0.6)

	s.queue.EXPECT().ListAll(ctx).Return(items, nil)
	s.expectProfile(ctx, 7)
	s.network.EXPECT().Online().Return(true)
	s.ratings.EXPECT().Insert(ctx, gomock.Any()).Return(nil)
	s.expectRecompute(ctx, 100, domain.NewsItem{ID: 100}, 1, 0.5)
	s.publisher.EXPECT().PublishRating(ctx, gomock.Any()).Return(nil)
	s.queue.EXPECT().Remove(ctx, items[0]).DoAndReturn(
		func(context.Context, domain.PendingRatingSubmission) error {
			cancel()
			return nil
		},
	)

	s.cache.EXPECT().Clear(gomock.Any()).Return(nil)
	s.queue.EXPECT().Count(gomock.Any()).Return(1, nil)

	report, err := s.driver.Drain(ctx)

	s.NoError(err)
	s.Equal([]int64{1}, report.Delivered)
	s.Equal([]int64{2}, report.Pending)
	s.Equal(domain.StopCanceled, report.StopReason)
}

func (s *ServiceTestSuite) TestRun_DrainsOnTransitionToOnline() {
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan bool)
	drained := make(chan struct{}, 4)

	s.network.EXPECT().Subscribe(gomock.Any()).Return((<-chan bool)(events))
	s.network.EXPECT().Online().Return(true).AnyTimes()
	s.queue.EXPECT().ListAll(gomock.Any()).DoAndReturn(
		func(context.Context) ([]domain.PendingRatingSubmission, error) {
			drained <- struct{}{}
			return nil, nil
		},
	).Times(2)

	done := make(chan error, 1)
	go func() { done <- s.driver.Run(ctx) }()

	events <- false
	events <- true
	s.waitDrain(drained)

	// Still online: no new pass.
	events <- true
	events <- false
	events <- true
	s.waitDrain(drained)

	cancel()
	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(2 * time.Second):
		s.Fail("Run did not stop")
	}
	s.Empty(drained)
}

// reconnectingQueue restores connectivity when a pass refreshes the queue
// depth, which happens after the pass has already stopped on offline.
type reconnectingQueue struct {
	*local.Queue
	monitor *network.Monitor
}

func (q *reconnectingQueue) Count(ctx context.Context) (int, error) {
	if !q.monitor.Online() {
		q.monitor.Set(true)
	}
	return q.Queue.Count(ctx)
}

func (s *ServiceTestSuite) TestRun_ReconnectDuringPassDrainsAgain() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := local.Open(filepath.Join(s.T().TempDir(), "device.db"))
	s.Require().NoError(err)
	defer db.Close()

	monitor := network.NewMonitor(nil, network.Config{}, s.logger)
	monitor.Set(false)

	queue := &reconnectingQueue{Queue: local.NewQueue(db), monitor: monitor}
	cache := local.NewCache(db, 30*time.Minute, s.logger)
	for _, p := range pendingItems(0.5, 0.6) {
		s.Require().NoError(queue.Enqueue(ctx, &p))
	}

	aggregator := NewAggregator(s.news, cache, s.logger)
	svc := NewRatingService(s.ratings, s.profiles, auth.NewSession("auth-1"), queue, aggregator, monitor, nil, s.logger)
	driver := NewSyncDriver(svc, queue, cache, monitor, s.logger)

	s.profiles.EXPECT().FindByAuthID(gomock.Any(), "auth-1").Return(&domain.UserProfile{ID: 7, AuthID: "auth-1"}, nil).Times(2)
	gomock.InOrder(
		// Connectivity drops while the first rating is in flight.
		s.ratings.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, r *domain.RatingItem) error {
				monitor.Set(false)
				r.ID = 1
				return nil
			},
		),
		s.ratings.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, r *domain.RatingItem) error {
				s.Equal(int64(101), r.NewsItemID)
				r.ID = 2
				return nil
			},
		),
	)
	s.news.EXPECT().GetByID(gomock.Any(), int64(100)).Return(&domain.NewsItem{ID: 100}, nil)
	s.news.EXPECT().UpdateAggregate(gomock.Any(), int64(100), 1, 0.5).Return(nil)
	s.news.EXPECT().GetByID(gomock.Any(), int64(101)).Return(&domain.NewsItem{ID: 101}, nil)
	s.news.EXPECT().UpdateAggregate(gomock.Any(), int64(101), 1, 0.6).Return(nil)

	s.Require().True(driver.Arm(ctx))
	monitor.Set(true)

	s.Eventually(func() bool {
		n, err := queue.Queue.Count(ctx)
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)
	s.True(monitor.Online())
}

func (s *ServiceTestSuite) TestArm_Idempotent() {
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan bool)

	s.network.EXPECT().Subscribe(gomock.Any()).Return((<-chan bool)(events)).Times(1)

	s.True(s.driver.Arm(ctx))
	s.False(s.driver.Arm(ctx))

	cancel()
	s.Eventually(func() bool { return !s.driver.armed.Load() }, 2*time.Second, 10*time.Millisecond)
}

func (s *ServiceTestSuite) waitDrain(drained <-chan struct{}) {
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		s.FailNow("expected a drain pass")
	}
}
