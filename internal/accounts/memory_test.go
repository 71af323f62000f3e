package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureAccounts() []Account {
	return []Account{
		{Email: "a@x.com", Password: "pa", ProfileID: "P1"},
		{Email: "b@x.com", Password: "pb", ProfileID: "P2"},
		{Email: "c@x.com", Password: "pc", ProfileID: "P3"},
		{Email: "d@x.com", Password: "pd", ProfileID: "P3"},
		{Email: "e@x.com", Password: "pe"},
		{Email: "f@x.com", Password: "pf", ProfileID: "P6"},
	}
}

func TestMemoryStore_FindByEmail(t *testing.T) {
	store := NewMemoryStore(fixtureAccounts(), identityShuffler{})
	ctx := context.Background()

	acct, err := store.FindByEmail(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, "P2", acct.ProfileID)
	assert.Equal(t, Credentials{Email: "b@x.com", Password: "pb"}, acct.Credentials())

	_, err = store.FindByEmail(ctx, "zzz@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SampleRandom(t *testing.T) {
	ctx := context.Background()

	t.Run("distinct, non-empty, excluded", func(t *testing.T) {
		store := NewMemoryStore(fixtureAccounts(), identityShuffler{})
		got, err := store.SampleRandom(ctx, []string{"P1"}, 10)
		require.NoError(t, err)

		ids := make([]string, 0, len(got))
		for _, a := range got {
			ids = append(ids, a.ProfileID)
		}
		assert.Equal(t, []string{"P2", "P3", "P6"}, ids)
	})

	t.Run("fewer than limit", func(t *testing.T) {
		store := NewMemoryStore([]Account{
			{Email: "a@x.com", ProfileID: "P1"},
			{Email: "b@x.com", ProfileID: "P2"},
		}, nil)
		got, err := store.SampleRandom(ctx, []string{"P1"}, 2)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "P2", got[0].ProfileID)
	})

	t.Run("nothing to borrow", func(t *testing.T) {
		store := NewMemoryStore([]Account{{Email: "a@x.com", ProfileID: "P1"}}, nil)
		got, err := store.SampleRandom(ctx, []string{"P1"}, 2)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("same seed same draw", func(t *testing.T) {
		first := NewMemoryStore(fixtureAccounts(), NewShuffler(42))
		second := NewMemoryStore(fixtureAccounts(), NewShuffler(42))

		a, err := first.SampleRandom(ctx, nil, 2)
		require.NoError(t, err)
		b, err := second.SampleRandom(ctx, nil, 2)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestMemoryStore_CreateReplaces(t *testing.T) {
	store := NewMemoryStore(nil, nil)
	ctx := context.Background()

	first := &Account{Email: "a@x.com", Password: "old", ProfileID: "P1"}
	require.NoError(t, store.Create(ctx, first))
	second := &Account{Email: "a@x.com", Password: "new", ProfileID: "P9"}
	require.NoError(t, store.Create(ctx, second))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.Len())
	got, err := store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Password)
	assert.Equal(t, "P9", got.ProfileID)
}
