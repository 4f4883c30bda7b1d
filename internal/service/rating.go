package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"news_verifier/internal/domain"
	"news_verifier/internal/metrics"
)

// Delivery is the result of writing one rating to the backend.
type Delivery struct {
	Rating *domain.RatingItem
	// Inserted is false when the rating row existed before this call.
	Inserted bool
	// AggregateErr is set when the rating was stored but the item's
	// aggregate could not be recomputed.
	AggregateErr error
}

type RatingService struct {
	ratings    RatingRepository
	profiles   ProfileRepository
	identity   IdentityProvider
	queue      PendingQueue
	aggregator *Aggregator
	network    Connectivity
	publisher  Publisher
	logger     *slog.Logger
}

// NewRatingService wires the submission path. publisher may be nil.
func NewRatingService(
	ratings RatingRepository,
	profiles ProfileRepository,
	identity IdentityProvider,
	queue PendingQueue,
	aggregator *Aggregator,
	network Connectivity,
	publisher Publisher,
	logger *slog.Logger,
) *RatingService {
	return &RatingService{
		ratings:    ratings,
		profiles:   profiles,
		identity:   identity,
		queue:      queue,
		aggregator: aggregator,
		network:    network,
		publisher:  publisher,
		logger:     logger,
	}
}

// Submit delivers a rating right away when online and otherwise keeps it in
// the pending queue. A rating is never dropped unless the queue itself fails.
func (s *RatingService) Submit(ctx context.Context, sub domain.RatingSubmission) (domain.Outcome, error) {
	if !domain.ValidRating(sub.Value) {
		return domain.OutcomeFailed, fmt.Errorf("submit rating for news item %d: %w", sub.NewsItemID, domain.ErrInvalidRating)
	}

	pending := domain.PendingRatingSubmission{
		NewsItemID:    sub.NewsItemID,
		UserProfileID: sub.UserProfileID,
		Value:         domain.Canonicalize(sub.Value),
		Comment:       sub.Comment,
		Completed:     sub.Completed,
	}

	if !s.network.Online() {
		s.logger.Info("offline, queueing rating", "news_item_id", sub.NewsItemID)
		return s.enqueue(ctx, pending, nil)
	}

	profileID, err := s.ResolveProfileID(ctx)
	if err != nil {
		s.logger.Warn("could not resolve profile, queueing rating",
			"news_item_id", sub.NewsItemID,
			"error", err,
		)
		if errors.Is(err, domain.ErrProfileResolution) {
			return s.enqueue(ctx, pending, err)
		}
		return s.enqueue(ctx, pending, nil)
	}

	delivery, err := s.Deliver(ctx, profileID, pending)
	if err != nil {
		s.logger.Warn("direct delivery failed, queueing rating",
			"news_item_id", sub.NewsItemID,
			"error", err,
		)
		return s.enqueue(ctx, pending, nil)
	}

	metrics.Submissions.WithLabelValues(domain.OutcomeDelivered.String()).Inc()
	s.logger.Info("rating delivered",
		"news_item_id", sub.NewsItemID,
		"rating_item_id", delivery.Rating.ID,
		"value", delivery.Rating.AssignedReliabilityScore,
	)
	return domain.OutcomeDelivered, nil
}

// ResolveProfileID maps the current authenticated identity to its profile id.
func (s *RatingService) ResolveProfileID(ctx context.Context) (int64, error) {
	authID, ok := s.identity.CurrentIdentity()
	if !ok {
		return 0, fmt.Errorf("%w: %w", domain.ErrProfileResolution, domain.ErrNoIdentity)
	}

	profile, err := s.profiles.FindByAuthID(ctx, authID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return 0, fmt.Errorf("%w: %w", domain.ErrProfileResolution, err)
	}
	if err != nil {
		return 0, fmt.Errorf("find profile: %w", err)
	}

	return profile.ID, nil
}

// Deliver inserts the rating under profileID, recomputes the item's aggregate
// and publishes the event. Only the insert decides success; aggregate and
// publish failures are reported but leave the rating delivered. A pending
// entry that already carries a RatingID skips the insert and the event.
func (s *RatingService) Deliver(ctx context.Context, profileID int64, p domain.PendingRatingSubmission) (*Delivery, error) {
	rating := &domain.RatingItem{
		ID:                       p.RatingID,
		NewsItemID:               p.NewsItemID,
		UserProfileID:            profileID,
		AssignedReliabilityScore: domain.Canonicalize(p.Value),
		CommentText:              p.Comment,
		IsCompleted:              p.Completed,
	}

	delivery := &Delivery{Rating: rating}
	if p.RatingID == 0 {
		if err := s.ratings.Insert(ctx, rating); err != nil {
			return nil, &domain.RemoteWriteError{Op: "insert rating", Err: err}
		}
		delivery.Inserted = true
	}

	if err := s.aggregator.Recompute(ctx, p.NewsItemID, rating.AssignedReliabilityScore); err != nil {
		s.logger.Error("failed to recompute aggregate",
			"news_item_id", p.NewsItemID,
			"error", err,
		)
		delivery.AggregateErr = err
	}

	if delivery.Inserted && s.publisher != nil {
		if err := s.publisher.PublishRating(ctx, rating); err != nil {
			s.logger.Warn("failed to publish rating event",
				"rating_item_id", rating.ID,
				"error", err,
			)
		}
	}

	return delivery, nil
}

func (s *RatingService) enqueue(ctx context.Context, p domain.PendingRatingSubmission, cause error) (domain.Outcome, error) {
	if err := s.queue.Enqueue(ctx, &p); err != nil {
		metrics.Submissions.WithLabelValues(domain.OutcomeFailed.String()).Inc()
		s.logger.Error("failed to queue rating",
			"news_item_id", p.NewsItemID,
			"error", err,
		)
		return domain.OutcomeFailed, fmt.Errorf("queue rating for news item %d: %w", p.NewsItemID, err)
	}

	metrics.Submissions.WithLabelValues(domain.OutcomeQueued.String()).Inc()
	s.refreshQueueDepth(ctx)

	if cause != nil {
		return domain.OutcomeQueued, fmt.Errorf("rating queued: %w", cause)
	}
	return domain.OutcomeQueued, nil
}

func (s *RatingService) refreshQueueDepth(ctx context.Context) {
	n, err := s.queue.Count(ctx)
	if err != nil {
		s.logger.Warn("failed to count pending ratings", "error", err)
		return
	}
	metrics.QueueDepth.Set(float64(n))
}
