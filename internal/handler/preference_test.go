package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/internal/handler"
)

type mockPreferenceServicer struct {
	set  func(ctx context.Context, userID uuid.UUID, eventType domain.EventType, enabled bool) (domain.Preference, error)
	get  func(ctx context.Context, userID uuid.UUID, eventType domain.EventType) (domain.Preference, error)
	list func(ctx context.Context, userID uuid.UUID) ([]domain.Preference, error)
}

func (m *mockPreferenceServicer) Get(ctx context.Context, userID uuid.UUID, e domain.EventType) (domain.Preference, error) {
	return m.get(ctx, userID, e)
}

func (m *mockPreferenceServicer) Set(ctx context.Context, userID uuid.UUID, e domain.EventType, enabled bool) (domain.Preference, error) {
	return m.set(ctx, userID, e, enabled)
}
func (m *mockPreferenceServicer) List(ctx context.Context, userID uuid.UUID) ([]domain.Preference, error) {
	return m.list(ctx, userID)
}

var _ handler.PreferenceServicer = (*mockPreferenceServicer)(nil)

func TestSetPreference_200_OwnUserOnly(t *testing.T) {
	svc := &mockPreferenceServicer{
		set: func(_ context.Context, userID uuid.UUID, e domain.EventType, enabled bool) (domain.Preference, error) {
			assert.Equal(t, caller.UserID, userID)
			assert.Equal(t, domain.EventClientOnboard, e)
			assert.False(t, enabled)
			return domain.Preference{UserID: userID, EventType: e, Enabled: enabled}, nil
		},
	}

	rec := do(t, newHTTPHandler(t, deps{prefs: svc}), http.MethodPut, "/me/preferences/client_onboard", map[string]any{"enabled": false})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp domain.Preference
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Enabled)
}

func TestSetPreference_422_MissingEnabled(t *testing.T) {
	rec := do(t, newHTTPHandler(t, deps{prefs: &mockPreferenceServicer{}}), http.MethodPut, "/me/preferences/no_show", map[string]any{})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSetPreference_422_UnknownEvent(t *testing.T) {
	svc := &mockPreferenceServicer{
		set: func(context.Context, uuid.UUID, domain.EventType, bool) (domain.Preference, error) {
			return domain.Preference{}, fmt.Errorf("%w: unknown event type", domain.ErrValidation)
		},
	}

	rec := do(t, newHTTPHandler(t, deps{prefs: svc}), http.MethodPut, "/me/preferences/bus_late", map[string]any{"enabled": true})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListPreferences_200(t *testing.T) {
	svc := &mockPreferenceServicer{
		list: func(_ context.Context, userID uuid.UUID) ([]domain.Preference, error) {
			assert.Equal(t, caller.UserID, userID)
			return []domain.Preference{{UserID: userID, EventType: domain.EventNoShow, Enabled: true}}, nil
		},
	}

	rec := do(t, newHTTPHandler(t, deps{prefs: svc}), http.MethodGet, "/me/preferences", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"event_type":"no_show"`)
}

func TestGetPreference_200(t *testing.T) {
	svc := &mockPreferenceServicer{
		get: func(_ context.Context, userID uuid.UUID, e domain.EventType) (domain.Preference, error) {
			assert.Equal(t, caller.UserID, userID)
			assert.Equal(t, domain.EventWaitTimeStarted, e)
			return domain.Preference{UserID: userID, EventType: e, Enabled: true}, nil
		},
	}

	rec := do(t, newHTTPHandler(t, deps{prefs: svc}), http.MethodGet, "/me/preferences/wait_time_started", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enabled":true`)
}
