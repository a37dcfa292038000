package repo_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/internal/repo"
)

func TestPreferenceRepo_UpsertAndGet(t *testing.T) {
	r := repo.NewPreferenceRepo(newTestTx(t))
	ctx := context.Background()
	user := uuid.New()

	_, err := r.Get(ctx, user, domain.EventClientOnboard)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.Upsert(ctx, domain.Preference{UserID: user, EventType: domain.EventClientOnboard, Enabled: false})
	require.NoError(t, err)
	got, err := r.Upsert(ctx, domain.Preference{UserID: user, EventType: domain.EventClientOnboard, Enabled: true})
	require.NoError(t, err)
	assert.True(t, got.Enabled)

	stored, err := r.Get(ctx, user, domain.EventClientOnboard)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)
}

func TestPreferenceRepo_ListForEvent(t *testing.T) {
	r := repo.NewPreferenceRepo(newTestTx(t))
	ctx := context.Background()
	optedOut, optedIn, silent := uuid.New(), uuid.New(), uuid.New()

	_, err := r.Upsert(ctx, domain.Preference{UserID: optedOut, EventType: domain.EventTripStarted, Enabled: false})
	require.NoError(t, err)
	_, err = r.Upsert(ctx, domain.Preference{UserID: optedIn, EventType: domain.EventTripStarted, Enabled: true})
	require.NoError(t, err)

	got, err := r.ListForEvent(ctx, domain.EventTripStarted, []uuid.UUID{optedOut, optedIn, silent})

	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]bool{optedOut: false, optedIn: true}, got)
}

func TestPreferenceRepo_EnsureDefaults_KeepsExisting(t *testing.T) {
	r := repo.NewPreferenceRepo(newTestTx(t))
	ctx := context.Background()
	user := uuid.New()

	_, err := r.Upsert(ctx, domain.Preference{UserID: user, EventType: domain.EventNoShow, Enabled: false})
	require.NoError(t, err)

	require.NoError(t, r.EnsureDefaults(ctx, user, domain.DefaultPreferences()))

	prefs, err := r.ListByUser(ctx, user)
	require.NoError(t, err)
	assert.Len(t, prefs, len(domain.EventTypes()))
	for _, p := range prefs {
		if p.EventType == domain.EventNoShow {
			assert.False(t, p.Enabled, "explicit opt-out must survive defaults")
		} else {
			assert.True(t, p.Enabled, string(p.EventType))
		}
	}
}

func TestUserRepo_ListIDsByRole(t *testing.T) {
	r := repo.NewUserRepo(newTestTx(t))
	ctx := context.Background()

	super, err := r.Create(ctx, domain.User{Role: domain.RoleSuperAdmin})
	require.NoError(t, err)
	_, err = r.Create(ctx, domain.User{Role: domain.RoleCorporateAdmin, CorporateClientID: uuid.New()})
	require.NoError(t, err)

	ids, err := r.ListIDsByRole(ctx, domain.RoleSuperAdmin)

	require.NoError(t, err)
	assert.Contains(t, ids, super.ID)
	assert.Equal(t, domain.RoleSuperAdmin, super.Role)
}

func TestProgramRepo_GetByID(t *testing.T) {
	tx := newTestTx(t)
	p := seedProgram(t, tx)
	r := repo.NewProgramRepo(tx)

	got, err := r.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = r.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
