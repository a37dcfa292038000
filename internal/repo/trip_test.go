package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/internal/repo"
	"github.com/pkordes/transit-dispatch/testutil"
)

// newTestTx returns a transaction rolled back at the end of the test.
// Migrations are applied by TestMain.
func newTestTx(t *testing.T) pgx.Tx {
	t.Helper()
	return testutil.NewTx(t)
}

// seedProgram inserts a program under a fresh corporate client.
func seedProgram(t *testing.T, tx pgx.Tx) domain.Program {
	t.Helper()
	p, err := repo.NewProgramRepo(tx).Create(context.Background(), domain.Program{
		CorporateClientID: uuid.New(),
		Name:              "Dialysis Shuttle",
	})
	require.NoError(t, err)
	return p
}

// tripFixture returns a domain.Trip with sensible defaults for use in tests.
// Callers can override individual fields after calling this function.
func tripFixture(p domain.Program) domain.Trip {
	return domain.Trip{
		ProgramID:         p.ID,
		CorporateClientID: p.CorporateClientID,
		ClientID:          uuid.New(),
		Kind:              domain.KindRoundTrip,
		PickupAt:          time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC),
		PickupAddress:     "12 Elm St",
		DropoffAddress:    "Mercy Clinic",
		CreatedBy:         uuid.New(),
	}
}

func TestTripRepo_Create(t *testing.T) {
	tx := newTestTx(t)
	r := repo.NewTripRepo(tx)
	ctx := context.Background()

	input := tripFixture(seedProgram(t, tx))
	got, err := r.Create(ctx, input)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got.ID, "ID should be DB-generated UUID")
	assert.Equal(t, domain.StatusOrder, got.Status)
	assert.Equal(t, int64(1), got.Version)
	assert.Nil(t, got.DriverID)
	assert.Nil(t, got.Decline)
	assert.Equal(t, input.CreatedBy, got.UpdatedBy)
	assert.True(t, got.PickupAt.Equal(input.PickupAt))
	assert.False(t, got.CreatedAt.IsZero(), "CreatedAt should be set by DB")
}

func TestTripRepo_GetByID_NotFound(t *testing.T) {
	r := repo.NewTripRepo(newTestTx(t))

	_, err := r.GetByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripRepo_CompareAndSwap(t *testing.T) {
	tx := newTestTx(t)
	r := repo.NewTripRepo(tx)
	ctx := context.Background()

	created, err := r.Create(ctx, tripFixture(seedProgram(t, tx)))
	require.NoError(t, err)

	driver := uuid.New()
	next := created
	next.DriverID = &driver
	next.Status = domain.StatusScheduled
	next.UpdatedBy = driver

	got, err := r.CompareAndSwap(ctx, repo.TripChange{Current: created, Next: next})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, got.Status)
	assert.Equal(t, created.Version+1, got.Version)
	require.NotNil(t, got.DriverID)
	assert.Equal(t, driver, *got.DriverID)

	// The stale read loses.
	_, err = r.CompareAndSwap(ctx, repo.TripChange{Current: created, Next: next})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestTripRepo_CompareAndSwap_NotFound(t *testing.T) {
	r := repo.NewTripRepo(newTestTx(t))
	ghost := domain.Trip{ID: uuid.New(), Status: domain.StatusOrder, Version: 1}

	_, err := r.CompareAndSwap(context.Background(), repo.TripChange{Current: ghost, Next: ghost})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripRepo_CompareAndSwap_Decline(t *testing.T) {
	tx := newTestTx(t)
	r := repo.NewTripRepo(tx)
	ctx := context.Background()

	created, err := r.Create(ctx, tripFixture(seedProgram(t, tx)))
	require.NoError(t, err)

	by := uuid.New()
	at := time.Date(2026, 5, 30, 17, 0, 0, 0, time.UTC)
	next := created
	next.Decline = &domain.Decline{Reason: domain.DeclineDayOff, DeclinedBy: by, DeclinedAt: at}

	got, err := r.CompareAndSwap(ctx, repo.TripChange{Current: created, Next: next})

	require.NoError(t, err)
	require.NotNil(t, got.Decline)
	assert.Equal(t, domain.DeclineDayOff, got.Decline.Reason)
	assert.Equal(t, by, got.Decline.DeclinedBy)
	assert.True(t, got.Decline.DeclinedAt.Equal(at))
}

func TestTripRepo_ApplyBatch_AllOrNothing(t *testing.T) {
	tx := newTestTx(t)
	r := repo.NewTripRepo(tx)
	ctx := context.Background()
	p := seedProgram(t, tx)

	a, err := r.Create(ctx, tripFixture(p))
	require.NoError(t, err)
	b, err := r.Create(ctx, tripFixture(p))
	require.NoError(t, err)

	// Move b behind the batch's back.
	bMoved := b
	bMoved.Status = domain.StatusCancelled
	_, err = r.CompareAndSwap(ctx, repo.TripChange{Current: b, Next: bMoved})
	require.NoError(t, err)

	driver := uuid.New()
	schedule := func(tr domain.Trip) domain.Trip {
		tr.Status = domain.StatusScheduled
		tr.DriverID = &driver
		return tr
	}

	_, err = r.ApplyBatch(ctx, []repo.TripChange{
		{Current: a, Next: schedule(a)},
		{Current: b, Next: schedule(b)},
	})
	assert.ErrorIs(t, err, domain.ErrPartialBatch)

	gotA, err := r.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOrder, gotA.Status, "first row must be rolled back")
	assert.Equal(t, a.Version, gotA.Version)
}

func TestTripRepo_ApplyBatch_Commits(t *testing.T) {
	tx := newTestTx(t)
	r := repo.NewTripRepo(tx)
	ctx := context.Background()
	p := seedProgram(t, tx)

	a, err := r.Create(ctx, tripFixture(p))
	require.NoError(t, err)
	b, err := r.Create(ctx, tripFixture(p))
	require.NoError(t, err)

	driver := uuid.New()
	var changes []repo.TripChange
	for _, tr := range []domain.Trip{a, b} {
		next := tr
		next.Status = domain.StatusScheduled
		next.DriverID = &driver
		changes = append(changes, repo.TripChange{Current: tr, Next: next})
	}

	got, err := r.ApplyBatch(ctx, changes)

	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, tr := range got {
		assert.Equal(t, domain.StatusScheduled, tr.Status)
	}
}

func TestTripRepo_ListBySeries(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()
	p := seedProgram(t, tx)

	base := tripFixture(p)
	series, trips, err := repo.NewSeriesRepo(tx).Create(ctx, domain.RecurringSeries{
		ProgramID:         p.ID,
		CorporateClientID: p.CorporateClientID,
		ClientID:          base.ClientID,
		Cadence:           "weekly",
		CreatedBy:         base.CreatedBy,
	}, []domain.Trip{base, base, base})
	require.NoError(t, err)
	require.Len(t, trips, 3)

	r := repo.NewTripRepo(tx)
	third := trips[2]
	moved := third
	moved.Status = domain.StatusCancelled
	_, err = r.CompareAndSwap(ctx, repo.TripChange{Current: third, Next: moved})
	require.NoError(t, err)

	got, err := r.ListBySeries(ctx, series.ID, domain.StatusOrder)

	require.NoError(t, err)
	assert.Len(t, got, 2)
	for _, tr := range got {
		require.NotNil(t, tr.RecurringSeriesID)
		assert.Equal(t, series.ID, *tr.RecurringSeriesID)
	}
}

func TestTripRepo_ListPaged_Filter(t *testing.T) {
	tx := newTestTx(t)
	r := repo.NewTripRepo(tx)
	ctx := context.Background()
	p1 := seedProgram(t, tx)
	p2 := seedProgram(t, tx)

	for range 3 {
		_, err := r.Create(ctx, tripFixture(p1))
		require.NoError(t, err)
	}
	_, err := r.Create(ctx, tripFixture(p2))
	require.NoError(t, err)

	page := domain.NewPaginationParams(nil, nil)

	got, total, err := r.ListPaged(ctx, domain.TripFilter{Restricted: true, ProgramIDs: []uuid.UUID{p1.ID}}, page)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, got, 3)

	got, total, err = r.ListPaged(ctx, domain.TripFilter{CorporateClientID: p2.CorporateClientID}, page)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, got, 1)

	got, total, err = r.ListPaged(ctx, domain.TripFilter{Restricted: true}, page)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, got)
}
