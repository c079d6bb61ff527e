// Package store implements the Project Store (C5): the authoritative
// Postgres-backed record of each project's identity, remote handles, and
// lifecycle status. Status is mutated exclusively through UpdateStatus.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/database"
	orcherrors "github.com/jordanhubbard/codeopen-orchestrator/internal/errors"
	"github.com/jordanhubbard/codeopen-orchestrator/pkg/models"
)

var slugRE = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)
var nonSlugRE = regexp.MustCompile(`[^a-z0-9]+`)

const maxSlugLen = 63

// Store is the Project Store's operation surface.
type Store interface {
	Create(ctx context.Context, p *models.Project) error
	GetByID(ctx context.Context, projectID string) (*models.Project, error)
	GetBySlug(ctx context.Context, slug string) (*models.Project, error)
	List(ctx context.Context) ([]*models.Project, error)
	Update(ctx context.Context, projectID string, partial map[string]interface{}) error
	UpdateStatus(ctx context.Context, projectID string, status models.ProjectStatus, detail string) error
	Delete(ctx context.Context, projectID string) error
	GenerateUniqueSlug(ctx context.Context, humanName string) (string, error)
}

// PostgresStore is the Postgres-backed Store implementation.
type PostgresStore struct {
	db *database.Database
}

// New wraps an opened Database as a Store.
func New(db *database.Database) *PostgresStore {
	return &PostgresStore{db: db}
}

// slugify derives a URL-safe base from a human name. It never produces an
// empty string: an all-punctuation name falls back to a fixed literal,
// which GenerateUniqueSlug then disambiguates with a numeric suffix.
func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonSlugRE.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = s[:maxSlugLen]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		s = "project"
	}
	return s
}

// GenerateUniqueSlug derives a slug from humanName and appends the
// shortest "-2", "-3", ... suffix that frees the namespace among
// non-deleted projects. Deterministic for a fixed name and store state.
func (s *PostgresStore) GenerateUniqueSlug(ctx context.Context, humanName string) (string, error) {
	base := slugify(humanName)
	candidate := base
	for attempt := 1; attempt <= 1000; attempt++ {
		var count int
		err := s.db.DB().QueryRowContext(ctx,
			`SELECT COUNT(*) FROM projects WHERE slug = $1 AND deleted_at IS NULL`, candidate).Scan(&count)
		if err != nil {
			return "", orcherrors.Internal("checking slug uniqueness", err)
		}
		if count == 0 {
			return candidate, nil
		}
		suffix := fmt.Sprintf("-%d", attempt+1)
		truncated := base
		if len(truncated)+len(suffix) > maxSlugLen {
			truncated = truncated[:maxSlugLen-len(suffix)]
			truncated = strings.TrimRight(truncated, "-")
		}
		candidate = truncated + suffix
	}
	return "", orcherrors.Internal("slug namespace exhausted", fmt.Errorf("no free slug for base %q after 1000 attempts", base))
}

// Create inserts a new project row. p.ProjectID is generated if empty.
func (s *PostgresStore) Create(ctx context.Context, p *models.Project) error {
	if p.ProjectID == "" {
		p.ProjectID = uuid.NewString()
	}
	if !slugRE.MatchString(p.Slug) {
		return orcherrors.Validation(fmt.Sprintf("slug %q does not match the required pattern", p.Slug))
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := s.db.DB().ExecContext(ctx, `INSERT INTO projects
		(id, slug, name, description, forge_repo_id, forge_owner, platform_app_uuid, container_port,
		 status, status_detail, fqdn_url, llm_provider_id, llm_model_id, clone_url_public,
		 created_at, updated_at, deleted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		p.ProjectID, p.Slug, p.Name, p.Description, p.ForgeRepoID, p.ForgeOwner, p.PlatformAppUUID, p.ContainerPort,
		p.Status, p.StatusDetail, p.FQDNURL, p.LLMProviderID, p.LLMModelID, p.CloneURLPublic,
		p.CreatedAt, p.UpdatedAt, p.DeletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return orcherrors.Conflict(fmt.Sprintf("slug %q already in use", p.Slug))
		}
		return orcherrors.Internal("inserting project", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint")
}

const selectColumns = `id, slug, name, description, forge_repo_id, forge_owner, platform_app_uuid, container_port,
	status, status_detail, fqdn_url, llm_provider_id, llm_model_id, clone_url_public,
	created_at, updated_at, deleted_at`

func scanProject(row *sql.Row) (*models.Project, error) {
	var p models.Project
	var desc, forgeRepoID, forgeOwner, appUUID, statusDetail, fqdn, providerID, modelID, cloneURL sql.NullString
	var deletedAt sql.NullTime
	err := row.Scan(&p.ProjectID, &p.Slug, &p.Name, &desc, &forgeRepoID, &forgeOwner, &appUUID, &p.ContainerPort,
		&p.Status, &statusDetail, &fqdn, &providerID, &modelID, &cloneURL,
		&p.CreatedAt, &p.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, orcherrors.NotFound("project not found")
	}
	if err != nil {
		return nil, orcherrors.Internal("scanning project row", err)
	}
	p.Description = desc.String
	p.ForgeRepoID = forgeRepoID.String
	p.ForgeOwner = forgeOwner.String
	p.PlatformAppUUID = appUUID.String
	p.StatusDetail = statusDetail.String
	p.FQDNURL = fqdn.String
	p.LLMProviderID = providerID.String
	p.LLMModelID = modelID.String
	p.CloneURLPublic = cloneURL.String
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	return &p, nil
}

// GetByID fetches a project by its opaque id, including soft-deleted rows
// (callers that must distinguish "never existed" from "deleted" need this).
func (s *PostgresStore) GetByID(ctx context.Context, projectID string) (*models.Project, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT `+selectColumns+` FROM projects WHERE id = $1`, projectID)
	return scanProject(row)
}

// GetBySlug fetches a non-deleted project by slug.
func (s *PostgresStore) GetBySlug(ctx context.Context, slug string) (*models.Project, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT `+selectColumns+` FROM projects WHERE slug = $1 AND deleted_at IS NULL`, slug)
	return scanProject(row)
}

// List returns every non-deleted project, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT `+selectColumns+` FROM projects WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, orcherrors.Internal("listing projects", err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		var p models.Project
		var desc, forgeRepoID, forgeOwner, appUUID, statusDetail, fqdn, providerID, modelID, cloneURL sql.NullString
		var deletedAt sql.NullTime
		if err := rows.Scan(&p.ProjectID, &p.Slug, &p.Name, &desc, &forgeRepoID, &forgeOwner, &appUUID, &p.ContainerPort,
			&p.Status, &statusDetail, &fqdn, &providerID, &modelID, &cloneURL,
			&p.CreatedAt, &p.UpdatedAt, &deletedAt); err != nil {
			return nil, orcherrors.Internal("scanning project row", err)
		}
		p.Description = desc.String
		p.ForgeRepoID = forgeRepoID.String
		p.ForgeOwner = forgeOwner.String
		p.PlatformAppUUID = appUUID.String
		p.StatusDetail = statusDetail.String
		p.FQDNURL = fqdn.String
		p.LLMProviderID = providerID.String
		p.LLMModelID = modelID.String
		p.CloneURLPublic = cloneURL.String
		if deletedAt.Valid {
			t := deletedAt.Time
			p.DeletedAt = &t
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// mutableColumns are the only project fields Update may touch; identity
// fields are immutable by construction, and status is exclusively mutated
// through UpdateStatus.
var mutableColumns = map[string]bool{
	"name": true, "description": true, "fqdn_url": true,
	"llm_provider_id": true, "llm_model_id": true, "clone_url_public": true,
}

// Update applies a partial patch restricted to mutableColumns.
func (s *PostgresStore) Update(ctx context.Context, projectID string, partial map[string]interface{}) error {
	if len(partial) == 0 {
		return nil
	}
	var setClauses []string
	var args []interface{}
	i := 1
	for col, val := range partial {
		if !mutableColumns[col] {
			return orcherrors.Validation(fmt.Sprintf("field %q is not mutable via update", col))
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", i))
	args = append(args, time.Now())
	i++
	args = append(args, projectID)

	query := fmt.Sprintf(`UPDATE projects SET %s WHERE id = $%d AND deleted_at IS NULL`, strings.Join(setClauses, ", "), i)
	res, err := s.db.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return orcherrors.Internal("updating project", err)
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return orcherrors.Internal("checking rows affected", err)
	}
	if n == 0 {
		return orcherrors.NotFound("project not found")
	}
	return nil
}

// UpdateStatus is the sole mutator of Project.Status. It always records a
// monotonic updated_at timestamp, and on a transition to "error" stores
// detail verbatim in status_detail.
func (s *PostgresStore) UpdateStatus(ctx context.Context, projectID string, status models.ProjectStatus, detail string) error {
	res, err := s.db.DB().ExecContext(ctx,
		`UPDATE projects SET status = $1, status_detail = $2, updated_at = $3 WHERE id = $4 AND deleted_at IS NULL`,
		status, detail, time.Now(), projectID)
	if err != nil {
		return orcherrors.Internal("updating project status", err)
	}
	return checkAffected(res)
}

// Delete soft-deletes a project: it sets deleted_at so the slug frees up
// for reuse while the historical row is retained.
func (s *PostgresStore) Delete(ctx context.Context, projectID string) error {
	res, err := s.db.DB().ExecContext(ctx,
		`UPDATE projects SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`,
		time.Now(), projectID)
	if err != nil {
		return orcherrors.Internal("deleting project", err)
	}
	return checkAffected(res)
}
