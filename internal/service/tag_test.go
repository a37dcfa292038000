package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/internal/service"
)

func TestTagService_TagUser_Idempotent(t *testing.T) {
	f := newFixture(t)
	trip := f.order(t, nil)
	svc := service.NewTagService(f.store.Tags(), f.store.Trips())
	user := uuid.New()

	require.NoError(t, svc.TagUser(context.Background(), f.admin, trip.ID, user))
	require.NoError(t, svc.TagUser(context.Background(), f.admin, trip.ID, user))

	tags, err := svc.List(context.Background(), f.admin, trip.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, user, tags[0].UserID)
	assert.Equal(t, f.admin.UserID, tags[0].CreatedBy)
}

func TestTagService_TagUser_Errors(t *testing.T) {
	f := newFixture(t)
	trip := f.order(t, nil)
	svc := service.NewTagService(f.store.Tags(), f.store.Trips())
	outsider := domain.Identity{UserID: uuid.New(), Role: domain.RoleProgramAdmin, ProgramID: uuid.New(), CorporateClientID: uuid.New()}

	assert.ErrorIs(t, svc.TagUser(context.Background(), f.admin, trip.ID, uuid.Nil), domain.ErrValidation)
	assert.ErrorIs(t, svc.TagUser(context.Background(), f.admin, uuid.New(), uuid.New()), domain.ErrNotFound)
	assert.ErrorIs(t, svc.TagUser(context.Background(), outsider, trip.ID, uuid.New()), domain.ErrNotFound)
}

func TestTagService_Untag(t *testing.T) {
	f := newFixture(t)
	trip := f.order(t, nil)
	svc := service.NewTagService(f.store.Tags(), f.store.Trips())
	user := uuid.New()
	require.NoError(t, svc.TagUser(context.Background(), f.admin, trip.ID, user))

	require.NoError(t, svc.Untag(context.Background(), f.admin, trip.ID, user))
	assert.ErrorIs(t, svc.Untag(context.Background(), f.admin, trip.ID, user), domain.ErrNotFound)
}
