package core

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagResolver_SeedsExactNames(t *testing.T) {
	store := newFakeStore()
	user := uuid.New()
	cute := store.seedTag(user, "Cute", "cute")

	r := NewTagResolver(store, 0)
	res := r.Resolve(context.Background(), user, []string{"Cute", "cute"}, nil)

	assert.Empty(t, res.Warnings)
	require.Len(t, res.Created, 1)
	assert.Equal(t, cute.ID, res.Map["Cute"])

	// "cute" differs by case, so it is a new tag with an adjusted slug
	assert.Equal(t, "cute-2", res.Created[0].Slug)
	assert.Equal(t, res.Created[0].ID, res.Map["cute"])
	assert.Len(t, res.Map, 2)
}

func TestTagResolver_SlugCollisions(t *testing.T) {
	store := newFakeStore()
	user := uuid.New()
	store.seedTag(user, "Fall", "autumn")
	store.seedTag(user, "Autumn Leaves", "autumn-2")

	r := NewTagResolver(store, 0)
	res := r.Resolve(context.Background(), user, []string{"Autumn", "autumn!"}, nil)

	assert.Empty(t, res.Warnings)
	require.Len(t, res.Created, 2)
	assert.Equal(t, "autumn-3", res.Created[0].Slug)
	assert.Equal(t, "autumn-4", res.Created[1].Slug)

	// Known slugs are skipped locally without asking the store
	assert.Equal(t, 2, store.slugExistsCalls)
}

func TestTagResolver_RetriesOnConflict(t *testing.T) {
	store := newFakeStore()
	store.racedSlugs["sparkle"] = true
	user := uuid.New()

	r := NewTagResolver(store, 0)
	res := r.Resolve(context.Background(), user, []string{"Sparkle"}, nil)

	assert.Empty(t, res.Warnings)
	require.Len(t, res.Created, 1)
	assert.Equal(t, "sparkle-2", res.Created[0].Slug)
	assert.Equal(t, 2, store.createTagCalls)
}

func TestTagResolver_AttemptsBounded(t *testing.T) {
	store := newFakeStore()
	user := uuid.New()
	store.seedTag(user, "a", "dup")
	store.seedTag(user, "b", "dup-2")
	store.seedTag(user, "c", "dup-3")

	// Slugs the resolver has not seen locally still count as attempts
	store.racedSlugs["dup-4"] = true
	store.racedSlugs["dup-5"] = true

	r := NewTagResolver(store, 2)
	res := r.Resolve(context.Background(), user, []string{"Dup"}, nil)

	assert.Empty(t, res.Created)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], `tag "Dup" could not be created`)
	_, ok := res.Map.Lookup("Dup")
	assert.False(t, ok)
}

func TestTagResolver_FailureIsWarningOnly(t *testing.T) {
	store := newFakeStore()
	store.createTagErr["Bad"] = errBoom
	user := uuid.New()

	r := NewTagResolver(store, 0)
	res := r.Resolve(context.Background(), user, []string{"Bad", "Good"}, nil)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], `"Bad"`)
	assert.Contains(t, res.Warnings[0], "boom")
	require.Len(t, res.Created, 1)
	assert.Equal(t, "Good", res.Created[0].Name)
	assert.Len(t, res.Map, 1)
}

func TestTagResolver_ListFailure(t *testing.T) {
	store := newFakeStore()
	store.listTagsErr = errBoom

	r := NewTagResolver(store, 0)
	res := r.Resolve(context.Background(), uuid.New(), []string{"A", "B"}, nil)

	require.Len(t, res.Warnings, 1)
	assert.Empty(t, res.Map)
	assert.Zero(t, store.createTagCalls)
}

func TestTagResolver_Progress(t *testing.T) {
	store := newFakeStore()
	user := uuid.New()
	store.seedTag(user, "Old", "old")

	var calls [][2]int
	r := NewTagResolver(store, 0)
	r.Resolve(context.Background(), user, []string{"Old", "New1", "New2"}, func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})

	assert.Equal(t, [][2]int{{0, 2}, {1, 2}, {2, 2}}, calls)
}

func TestTagResolver_NoNames(t *testing.T) {
	store := newFakeStore()
	store.listTagsErr = errBoom

	res := NewTagResolver(store, 0).Resolve(context.Background(), uuid.New(), nil, nil)
	assert.Empty(t, res.Warnings)
	assert.NotNil(t, res.Map)
}

func TestUniqueTagNames(t *testing.T) {
	projects := []PartialProject{
		{TagNames: []string{"b", "a"}},
		{TagNames: []string{}},
		{TagNames: []string{"a", "c", ""}},
	}
	assert.Equal(t, []string{"b", "a", "c"}, UniqueTagNames(projects))
}

func TestTagNameMap_Resolve(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	m := TagNameMap{"A": a, "Alias": a, "B": b}

	ids, missing := m.Resolve([]string{"A", "X", "Alias", "B"})
	assert.Equal(t, []uuid.UUID{a, b}, ids)
	assert.Equal(t, []string{"X"}, missing)
}
