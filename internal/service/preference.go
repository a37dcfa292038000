package service

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/internal/repo"
)

// PreferenceService stores notification preferences and answers "does this
// user want this event", applying the system defaults to unset keys.
type PreferenceService struct {
	prefs    repo.PreferenceRepo
	defaults map[domain.EventType]bool
}

// NewPreferenceService constructs a PreferenceService. defaults overrides
// domain.DefaultPreferences per event type; nil keeps the built-in defaults.
func NewPreferenceService(prefs repo.PreferenceRepo, defaults map[domain.EventType]bool) *PreferenceService {
	merged := domain.DefaultPreferences()
	maps.Copy(merged, defaults)
	return &PreferenceService{prefs: prefs, defaults: merged}
}

// Set stores the user's choice for one event type.
func (s *PreferenceService) Set(ctx context.Context, userID uuid.UUID, eventType domain.EventType, enabled bool) (domain.Preference, error) {
	if !eventType.Valid() {
		return domain.Preference{}, fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, eventType)
	}
	p, err := s.prefs.Upsert(ctx, domain.Preference{UserID: userID, EventType: eventType, Enabled: enabled})
	if err != nil {
		return domain.Preference{}, fmt.Errorf("service.PreferenceService.Set: %w", err)
	}
	return p, nil
}

// Get returns the user's setting for one event type, or the default when
// the user never set it. Nothing is stored by a read.
func (s *PreferenceService) Get(ctx context.Context, userID uuid.UUID, eventType domain.EventType) (domain.Preference, error) {
	if !eventType.Valid() {
		return domain.Preference{}, fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, eventType)
	}
	p, err := s.prefs.Get(ctx, userID, eventType)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Preference{UserID: userID, EventType: eventType, Enabled: s.defaults[eventType]}, nil
	}
	if err != nil {
		return domain.Preference{}, fmt.Errorf("service.PreferenceService.Get: %w", err)
	}
	return p, nil
}

// List returns one preference per event type for the user, materialising
// defaults for keys the user never set.
func (s *PreferenceService) List(ctx context.Context, userID uuid.UUID) ([]domain.Preference, error) {
	if err := s.prefs.EnsureDefaults(ctx, userID, s.defaults); err != nil {
		return nil, fmt.Errorf("service.PreferenceService.List: %w", err)
	}
	prefs, err := s.prefs.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service.PreferenceService.List: %w", err)
	}
	return prefs, nil
}

// Enabled reports, for each user, whether they receive eventType. A stored
// false drops the user; no stored row means the default.
func (s *PreferenceService) Enabled(ctx context.Context, eventType domain.EventType, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	stored, err := s.prefs.ListForEvent(ctx, eventType, userIDs)
	if err != nil {
		return nil, fmt.Errorf("service.PreferenceService.Enabled: %w", err)
	}
	out := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		if v, ok := stored[id]; ok {
			out[id] = v
			continue
		}
		out[id] = s.defaults[eventType]
	}
	return out, nil
}
