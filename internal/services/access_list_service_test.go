package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizonesoft/isotone-sub002/internal/models"
	"github.com/rizonesoft/isotone-sub002/internal/settings"
)

func TestAccessList_AddAndResolve(t *testing.T) {
	repo := newMemListRepo()
	svc := NewAccessListService(repo, settings.Static(defaultSettings()), testLogger(), time.Second)
	ctx := context.Background()

	entry, err := svc.AddToList(ctx, models.ScopeIP, "2001:DB8::1", models.ListTypeDeny, "scanner", "admin")
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", entry.Subject)
	assert.Equal(t, "scanner", *entry.Reason)

	denied, err := svc.IsDenylisted(ctx, models.ScopeIP, "2001:0db8:0000::1")
	require.NoError(t, err)
	assert.True(t, denied)

	safe, err := svc.IsSafelisted(ctx, models.ScopeIP, "2001:db8::1")
	require.NoError(t, err)
	assert.False(t, safe)
}

func TestAccessList_UpsertOverwrites(t *testing.T) {
	repo := newMemListRepo()
	svc := NewAccessListService(repo, settings.Static(defaultSettings()), testLogger(), time.Second)
	ctx := context.Background()

	first, err := svc.AddToList(ctx, models.ScopeUsername, "alice", models.ListTypeAllow, "vip", "ops")
	require.NoError(t, err)
	require.NoError(t, svc.RemoveFromList(ctx, models.ScopeUsername, "alice", models.ListTypeAllow))

	second, err := svc.AddToList(ctx, models.ScopeUsername, "alice", models.ListTypeAllow, "vip again", "sec")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Active)
	assert.Equal(t, "sec", *second.AddedBy)

	entries, err := svc.ListEntries(ctx, models.ListTypeAllow, "")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAccessList_DisabledToggleSkipsLookup(t *testing.T) {
	cfg := defaultSettings()
	cfg.EnableUsernameSafelist = false
	repo := newMemListRepo()
	svc := NewAccessListService(repo, settings.Static(cfg), testLogger(), time.Second)
	ctx := context.Background()

	_, err := svc.AddToList(ctx, models.ScopeUsername, "alice", models.ListTypeAllow, "", "")
	require.NoError(t, err)

	safe, err := svc.IsSafelisted(ctx, models.ScopeUsername, "alice")
	require.NoError(t, err)
	assert.False(t, safe)
	assert.Zero(t, repo.lookups)

	safe, err = svc.IsSafelisted(ctx, models.ScopeUsername, "")
	require.NoError(t, err)
	assert.False(t, safe)
}

func TestAccessList_Validation(t *testing.T) {
	svc := NewAccessListService(newMemListRepo(), settings.Static(defaultSettings()), testLogger(), time.Second)
	ctx := context.Background()

	_, err := svc.AddToList(ctx, models.ScopeIP, "not-an-ip", models.ListTypeDeny, "", "")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.AddToList(ctx, models.ScopeUsername, "  ", models.ListTypeDeny, "", "")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.AddToList(ctx, "email", "a@example.com", models.ListTypeDeny, "", "")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.AddToList(ctx, models.ScopeIP, "10.0.0.1", "grey", "", "")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	err = svc.RemoveFromList(ctx, models.ScopeIP, "10.0.0.1", models.ListTypeDeny)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccessList_StoreError(t *testing.T) {
	repo := newMemListRepo()
	repo.err = errStoreDown
	svc := NewAccessListService(repo, settings.Static(defaultSettings()), testLogger(), time.Second)

	_, err := svc.IsDenylisted(context.Background(), models.ScopeIP, "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}
