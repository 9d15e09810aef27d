package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DefaultMaxSlugAttempts bounds how many slugs are tried per new tag.
const DefaultMaxSlugAttempts = 25

// TagNameMap maps an exact raw tag name to its tag id. Keys are compared
// byte for byte: "Cute" and "cute" are different names.
type TagNameMap map[string]uuid.UUID

// Lookup returns the id for name.
func (m TagNameMap) Lookup(name string) (uuid.UUID, bool) {
	id, ok := m[name]
	return id, ok
}

// Resolve maps names to ids. Ids are deduplicated in first-seen order;
// names without an entry are returned in missing.
func (m TagNameMap) Resolve(names []string) (ids []uuid.UUID, missing []string) {
	ids = make([]uuid.UUID, 0, len(names))
	seen := make(map[uuid.UUID]bool, len(names))
	for _, name := range names {
		id, ok := m.Lookup(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, missing
}

// TagResolution is the outcome of resolving one batch of tag names.
type TagResolution struct {
	Map      TagNameMap
	Created  []Tag
	Warnings []string
}

// TagResolver turns raw tag names into tag ids, creating missing tags with
// a slug unique among the user's tags. It never fails as a whole: each
// problem becomes a warning and resolution moves on.
type TagResolver struct {
	store           Store
	maxSlugAttempts int
}

// NewTagResolver creates a resolver. maxSlugAttempts <= 0 selects
// DefaultMaxSlugAttempts.
func NewTagResolver(store Store, maxSlugAttempts int) *TagResolver {
	if maxSlugAttempts <= 0 {
		maxSlugAttempts = DefaultMaxSlugAttempts
	}
	return &TagResolver{store: store, maxSlugAttempts: maxSlugAttempts}
}

// UniqueTagNames returns the distinct non-empty tag names across projects,
// in first-seen order.
func UniqueTagNames(projects []PartialProject) []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range projects {
		for _, name := range p.TagNames {
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Resolve seeds a TagNameMap from the user's existing tags and creates the
// rest one at a time. Creation is sequential so two names can never race
// for the same slug within a run.
//
// onProgress, if non-nil, is called with (created or failed, total new)
// after each new name, starting with (0, total).
func (r *TagResolver) Resolve(
	ctx context.Context,
	userID uuid.UUID,
	names []string,
	onProgress func(done, total int),
) *TagResolution {
	res := &TagResolution{Map: make(TagNameMap)}
	if len(names) == 0 {
		return res
	}

	existing, err := r.store.ListTags(ctx, userID)
	if err != nil {
		// Without the existing list every name would look new and be
		// duplicated, so nothing is created.
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("could not load existing tags, no tags were applied: %v", err))
		return res
	}

	taken := make(map[string]bool, len(existing))
	for _, t := range existing {
		if _, dup := res.Map[t.Name]; !dup {
			res.Map[t.Name] = t.ID
		}
		taken[t.Slug] = true
	}

	var missing []string
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := res.Map[name]; !ok {
			missing = append(missing, name)
		}
	}

	if onProgress != nil {
		onProgress(0, len(missing))
	}

	for i, name := range missing {
		if err := ctx.Err(); err != nil {
			for _, rest := range missing[i:] {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("tag %q was not created: import cancelled", rest))
			}
			break
		}

		tag, err := r.create(ctx, userID, name, taken)
		if err != nil {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("tag %q could not be created: %v", name, err))
		} else {
			res.Map[name] = tag.ID
			res.Created = append(res.Created, tag)
		}

		if onProgress != nil {
			onProgress(i+1, len(missing))
		}
	}

	return res
}

// create probes candidate slugs until one is free. The local taken set
// and TagSlugExists keep the common case to a single insert; a unique
// violation from the store (another writer got there first) moves on to
// the next candidate.
func (r *TagResolver) create(ctx context.Context, userID uuid.UUID, name string, taken map[string]bool) (Tag, error) {
	base := Slugify(name)

	attempts := 0
	for n := 1; attempts < r.maxSlugAttempts; n++ {
		slug := SlugCandidate(base, n)
		if taken[slug] {
			continue
		}
		attempts++

		exists, err := r.store.TagSlugExists(ctx, userID, slug)
		if err != nil {
			return Tag{}, fmt.Errorf("check slug %q: %w", slug, err)
		}
		if exists {
			taken[slug] = true
			continue
		}

		tag, err := r.store.CreateTag(ctx, userID, TagInput{Name: name, Slug: slug})
		if errors.Is(err, ErrSlugConflict) {
			taken[slug] = true
			continue
		}
		if err != nil {
			return Tag{}, err
		}
		taken[tag.Slug] = true
		return tag, nil
	}

	return Tag{}, fmt.Errorf("no free slug for %q after %d attempts", base, r.maxSlugAttempts)
}
