package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/internal/repo"
)

// TagService manages per-trip notification tags.
type TagService struct {
	tags  repo.TagRepo
	trips repo.TripRepo
}

// NewTagService constructs a TagService.
func NewTagService(tags repo.TagRepo, trips repo.TripRepo) *TagService {
	return &TagService{tags: tags, trips: trips}
}

// TagUser subscribes userID to the trip's future events. Tagging an already
// tagged user is a no-op.
func (s *TagService) TagUser(ctx context.Context, actor domain.Identity, tripID, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	if _, err := s.visibleTrip(ctx, actor, tripID); err != nil {
		return fmt.Errorf("service.TagService.TagUser: %w", err)
	}
	tag := domain.NotificationTag{TripID: tripID, UserID: userID, CreatedBy: actor.UserID}
	if err := s.tags.Add(ctx, tag); err != nil {
		return fmt.Errorf("service.TagService.TagUser: %w", err)
	}
	return nil
}

// Untag removes a tag. Returns domain.ErrNotFound if the user was not tagged.
func (s *TagService) Untag(ctx context.Context, actor domain.Identity, tripID, userID uuid.UUID) error {
	if _, err := s.visibleTrip(ctx, actor, tripID); err != nil {
		return fmt.Errorf("service.TagService.Untag: %w", err)
	}
	if err := s.tags.Remove(ctx, tripID, userID); err != nil {
		return fmt.Errorf("service.TagService.Untag: %w", err)
	}
	return nil
}

// List returns the tags on a trip.
func (s *TagService) List(ctx context.Context, actor domain.Identity, tripID uuid.UUID) ([]domain.NotificationTag, error) {
	if _, err := s.visibleTrip(ctx, actor, tripID); err != nil {
		return nil, fmt.Errorf("service.TagService.List: %w", err)
	}
	tags, err := s.tags.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("service.TagService.List: %w", err)
	}
	return tags, nil
}

func (s *TagService) visibleTrip(ctx context.Context, actor domain.Identity, tripID uuid.UUID) (domain.Trip, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return domain.Trip{}, err
	}
	if !canView(actor, trip) {
		return domain.Trip{}, domain.ErrNotFound
	}
	return trip, nil
}
