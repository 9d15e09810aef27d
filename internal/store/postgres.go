// Package store implements core.Store on Postgres and in memory.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/kitstash/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// tagSlugConstraint is the constraint name in schema.sql.
const tagSlugConstraint = "tags_user_slug_key"

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Postgres is a core.Store backed by a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Postgres)(nil)

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) ListTags(ctx context.Context, userID uuid.UUID) ([]core.Tag, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, user_id, name, slug, created_at
		FROM tags
		WHERE user_id = $1
		ORDER BY created_at, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	tags, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Tag, error) {
		var t core.Tag
		err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Slug, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan tags: %w", err)
	}
	return tags, nil
}

func (p *Postgres) TagSlugExists(ctx context.Context, userID uuid.UUID, slug string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tags WHERE user_id = $1 AND slug = $2)`,
		userID, slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

func (p *Postgres) CreateTag(ctx context.Context, userID uuid.UUID, in core.TagInput) (core.Tag, error) {
	t := core.Tag{ID: uuid.New(), UserID: userID, Name: in.Name, Slug: in.Slug}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO tags (id, user_id, name, slug)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		t.ID, t.UserID, t.Name, t.Slug,
	).Scan(&t.CreatedAt)
	if err != nil {
		if isSlugConflict(err) {
			return core.Tag{}, fmt.Errorf("insert tag %q: %w", in.Slug, core.ErrSlugConflict)
		}
		return core.Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	return t, nil
}

// CreateProject inserts the project and links its tags in one transaction.
// Tag links run under a savepoint: if any link fails they are all rolled
// back, the project is still committed, and a *core.TagLinkError is
// returned alongside it.
func (p *Postgres) CreateProject(ctx context.Context, userID uuid.UUID, in core.ProjectInput) (core.Project, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return core.Project{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	proj, err := insertProject(ctx, tx, userID, in)
	if err != nil {
		return core.Project{}, err
	}

	linkErr := linkTags(ctx, tx, userID, proj.ID, in.TagIDs)
	if linkErr == nil {
		proj.TagIDs = append(proj.TagIDs, in.TagIDs...)
	}

	if err := tx.Commit(ctx); err != nil {
		return core.Project{}, fmt.Errorf("commit project: %w", err)
	}

	if linkErr != nil {
		return proj, &core.TagLinkError{ProjectID: proj.ID, TagIDs: in.TagIDs, Err: linkErr}
	}
	return proj, nil
}

func insertProject(ctx context.Context, db DBTX, userID uuid.UUID, in core.ProjectInput) (core.Project, error) {
	proj := core.Project{
		ID:            uuid.New(),
		UserID:        userID,
		Title:         in.Title,
		Status:        in.Status,
		Company:       in.Company,
		Artist:        in.Artist,
		DrillShape:    in.DrillShape,
		CanvasType:    in.CanvasType,
		DrillType:     in.DrillType,
		KitCategory:   in.KitCategory,
		Width:         in.Width,
		Height:        in.Height,
		TotalDiamonds: in.TotalDiamonds,
		Notes:         in.Notes,
		SourceURL:     in.SourceURL,
		DatePurchased: in.DatePurchased,
		DateStarted:   in.DateStarted,
		DateCompleted: in.DateCompleted,
		DateReceived:  in.DateReceived,
		TagIDs:        []uuid.UUID{},
	}

	err := db.QueryRow(ctx, `
		INSERT INTO projects (
			id, user_id, title, status, company, artist, drill_shape, canvas_type,
			drill_type, kit_category, width, height, total_diamonds, notes, source_url,
			date_purchased, date_started, date_completed, date_received
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15,
			$16::date, $17::date, $18::date, $19::date
		)
		RETURNING created_at`,
		proj.ID, proj.UserID, proj.Title, string(proj.Status), proj.Company, proj.Artist,
		proj.DrillShape, proj.CanvasType, proj.DrillType, string(proj.KitCategory),
		proj.Width, proj.Height, proj.TotalDiamonds, proj.Notes, proj.SourceURL,
		dateParam(proj.DatePurchased), dateParam(proj.DateStarted),
		dateParam(proj.DateCompleted), dateParam(proj.DateReceived),
	).Scan(&proj.CreatedAt)
	if err != nil {
		return core.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return proj, nil
}

// linkTags links tagIDs to the project inside a savepoint. Tags owned by
// another user count as failed links.
func linkTags(ctx context.Context, tx pgx.Tx, userID, projectID uuid.UUID, tagIDs []uuid.UUID) error {
	if len(tagIDs) == 0 {
		return nil
	}

	const savepoint = "sp_tag_links"
	if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}

	for _, tagID := range tagIDs {
		tag, err := tx.Exec(ctx, `
			INSERT INTO project_tags (project_id, tag_id)
			SELECT $1, id FROM tags WHERE id = $2 AND user_id = $3
			ON CONFLICT DO NOTHING`,
			projectID, tagID, userID)
		if err == nil && tag.RowsAffected() == 0 {
			err = fmt.Errorf("tag %s not found", tagID)
		}
		if err != nil {
			_, _ = tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint)
			return fmt.Errorf("link tag %s: %w", tagID, err)
		}
	}

	_, _ = tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint)
	return nil
}

func (p *Postgres) ListProjects(ctx context.Context, userID uuid.UUID) ([]core.Project, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT p.id, p.user_id, p.title, p.status, p.company, p.artist, p.drill_shape,
			p.canvas_type, p.drill_type, p.kit_category, p.width, p.height,
			p.total_diamonds, p.notes, p.source_url,
			to_char(p.date_purchased, 'YYYY-MM-DD'), to_char(p.date_started, 'YYYY-MM-DD'),
			to_char(p.date_completed, 'YYYY-MM-DD'), to_char(p.date_received, 'YYYY-MM-DD'),
			p.created_at,
			COALESCE(array_agg(pt.tag_id) FILTER (WHERE pt.tag_id IS NOT NULL), '{}')
		FROM projects p
		LEFT JOIN project_tags pt ON pt.project_id = p.id
		WHERE p.user_id = $1
		GROUP BY p.id
		ORDER BY p.created_at, p.title`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	projects, err := pgx.CollectRows(rows, scanProject)
	if err != nil {
		return nil, fmt.Errorf("scan projects: %w", err)
	}
	return projects, nil
}

func scanProject(row pgx.CollectableRow) (core.Project, error) {
	var (
		p                                       core.Project
		status, category                        string
		purchased, started, completed, received pgtype.Text
	)

	err := row.Scan(
		&p.ID, &p.UserID, &p.Title, &status, &p.Company, &p.Artist, &p.DrillShape,
		&p.CanvasType, &p.DrillType, &category, &p.Width, &p.Height,
		&p.TotalDiamonds, &p.Notes, &p.SourceURL,
		&purchased, &started, &completed, &received,
		&p.CreatedAt, &p.TagIDs,
	)
	if err != nil {
		return core.Project{}, err
	}

	p.Status = core.ProjectStatus(status)
	p.KitCategory = core.KitCategory(category)
	p.DatePurchased = purchased.String
	p.DateStarted = started.String
	p.DateCompleted = completed.String
	p.DateReceived = received.String
	return p, nil
}

// dateParam maps an unset date to NULL.
func dateParam(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func isSlugConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && pgErr.ConstraintName == tagSlugConstraint
}
