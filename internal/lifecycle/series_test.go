package lifecycle_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/internal/lifecycle"
)

func seriesOf(n int, driverID *uuid.UUID) []domain.Trip {
	series := uuid.New()
	out := make([]domain.Trip, n)
	for i := range out {
		out[i] = newTrip(domain.StatusOrder, driverID)
		out[i].RecurringSeriesID = &series
	}
	return out
}

func TestApplySeries_ConfirmAssignsWholeSet(t *testing.T) {
	d := driver()
	trips := seriesOf(3, nil)
	trips[0].DriverID = ptr(d.UserID)

	steps, err := lifecycle.ApplySeries(trips[0], trips, cmd(domain.ActionConfirm, d), t0)

	require.NoError(t, err)
	require.Len(t, steps, 3)
	for _, s := range steps {
		assert.Equal(t, domain.StatusOrder, s.Before.Status)
		assert.Equal(t, domain.StatusScheduled, s.After.Status)
		require.NotNil(t, s.After.DriverID)
		assert.Equal(t, d.UserID, *s.After.DriverID)
		assert.Equal(t, []domain.EventType{domain.EventOrderConfirmed}, s.Events)
	}
}

func TestApplySeries_ConfirmSiblingOfOtherDriver_Unauthorized(t *testing.T) {
	d := driver()
	trips := seriesOf(2, ptr(d.UserID))
	trips[1].DriverID = ptr(uuid.New())

	steps, err := lifecycle.ApplySeries(trips[0], trips, cmd(domain.ActionConfirm, d), t0)

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Nil(t, steps)
}

func TestApplySeries_DivergedSibling_PartialBatch(t *testing.T) {
	d := driver()
	trips := seriesOf(2, ptr(d.UserID))
	trips[1].Status = domain.StatusCancelled

	_, err := lifecycle.ApplySeries(trips[0], trips, cmd(domain.ActionConfirm, d), t0)

	assert.ErrorIs(t, err, domain.ErrPartialBatch)
}

func TestApplySeries_Decline(t *testing.T) {
	d := driver()
	trips := seriesOf(3, ptr(d.UserID))
	trips[2].DriverID = nil
	c := cmd(domain.ActionDecline, d)
	c.Params.Reason = domain.DeclineTooFar

	steps, err := lifecycle.ApplySeries(trips[0], trips, c, t0)

	require.NoError(t, err)
	require.Len(t, steps, 3)
	for _, s := range steps {
		assert.Equal(t, domain.StatusOrder, s.After.Status)
		assert.Nil(t, s.After.DriverID)
		require.NotNil(t, s.After.Decline)
		assert.Equal(t, domain.DeclineTooFar, s.After.Decline.Reason)
	}
}

func TestApplySeries_RejectsNonSeriesAction(t *testing.T) {
	trips := seriesOf(1, nil)

	_, err := lifecycle.ApplySeries(trips[0], trips, cmd(domain.ActionCancel, staff(domain.RoleSuperAdmin)), t0)

	assert.ErrorIs(t, err, domain.ErrValidation)
}
