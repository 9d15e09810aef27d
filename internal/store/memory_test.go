package store

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/kitstash/internal/core"
)

func TestMemory_SlugUniquePerUser(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	alice, bob := uuid.New(), uuid.New()

	_, err := m.CreateTag(ctx, alice, core.TagInput{Name: "Cute", Slug: "cute"})
	require.NoError(t, err)

	_, err = m.CreateTag(ctx, alice, core.TagInput{Name: "cute", Slug: "cute"})
	assert.ErrorIs(t, err, core.ErrSlugConflict)

	// Another user may reuse the slug
	_, err = m.CreateTag(ctx, bob, core.TagInput{Name: "Cute", Slug: "cute"})
	require.NoError(t, err)

	exists, err := m.TagSlugExists(ctx, alice, "cute")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = m.TagSlugExists(ctx, alice, "cute-2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemory_CreateProjectLinksTags(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	user := uuid.New()

	tag, err := m.CreateTag(ctx, user, core.TagInput{Name: "Cute", Slug: "cute"})
	require.NoError(t, err)

	p, err := m.CreateProject(ctx, user, core.ProjectInput{
		Title:  "Fox Garden",
		Status: core.StatusStash,
		TagIDs: []uuid.UUID{tag.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tag.ID}, p.TagIDs)

	projects, err := m.ListProjects(ctx, user)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Fox Garden", projects[0].Title)
}

func TestMemory_ForeignTagIsLinkError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	alice, bob := uuid.New(), uuid.New()

	bobTag, err := m.CreateTag(ctx, bob, core.TagInput{Name: "Mine", Slug: "mine"})
	require.NoError(t, err)

	p, err := m.CreateProject(ctx, alice, core.ProjectInput{Title: "Owl", TagIDs: []uuid.UUID{bobTag.ID}})
	var linkErr *core.TagLinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, p.ID, linkErr.ProjectID)
	assert.Empty(t, p.TagIDs)

	projects, err := m.ListProjects(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory().ListTags(ctx, uuid.New())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemory_ImportEndToEnd(t *testing.T) {
	m := NewMemory()
	user := uuid.New()
	ctx := core.ContextWithUserID(context.Background(), user)

	_, err := m.CreateTag(ctx, user, core.TagInput{Name: "Cute", Slug: "cute"})
	require.NoError(t, err)

	csv := "Title,Status,Tags,Dimensions\n" +
		"Fox Garden,in progress,Cute;Cute Animals,30x40cm\n" +
		"Owl Night,bought,cute,\n"

	im := core.NewImporter(m, nil, core.ImportOptions{})
	result, err := im.Run(ctx, "", core.ImportFile{
		Name:   "kits.csv",
		Size:   int64(len(csv)),
		Reader: strings.NewReader(csv),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 2, result.TagsCreated)

	tags, err := m.ListTags(ctx, user)
	require.NoError(t, err)
	slugs := make([]string, len(tags))
	for i, tag := range tags {
		slugs[i] = tag.Slug
	}
	assert.Equal(t, []string{"cute", "cute-animals", "cute-2"}, slugs)

	projects, err := m.ListProjects(ctx, user)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, core.StatusProgress, projects[0].Status)
	assert.Len(t, projects[0].TagIDs, 2)
	require.NotNil(t, projects[0].Width)
	assert.InDelta(t, 30.0, *projects[0].Width, 0.001)
	assert.Equal(t, core.StatusPurchased, projects[1].Status)
	assert.Len(t, projects[1].TagIDs, 1)
}
