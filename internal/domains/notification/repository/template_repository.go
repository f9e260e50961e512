package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notification-backend/internal/domains/notification/model"
)

type templateRepository struct {
	pool *pgxpool.Pool
}

func NewTemplateRepository(pool *pgxpool.Pool) TemplateRepository {
	return &templateRepository{pool: pool}
}

const templateColumns = `
	id, name, display_name, description, channel, category,
	subject_template, content_template, html_template,
	is_active, is_deleted, version, default_priority, rate_limit_per_hour,
	created_by, updated_by, created_at, updated_at`

func (r *templateRepository) Create(ctx context.Context, template *model.Template) error {
	query := `
		INSERT INTO notification_templates (
			id, name, display_name, description, channel, category,
			subject_template, content_template, html_template,
			is_active, version, default_priority, rate_limit_per_hour,
			created_by, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)`

	now := time.Now().UTC()
	template.CreatedAt = now
	template.UpdatedAt = now

	_, err := r.pool.Exec(ctx, query,
		template.ID, template.Name, template.DisplayName, template.Description,
		template.Channel, template.Category,
		template.SubjectTemplate, template.ContentTemplate, template.HTMLTemplate,
		template.Active, template.Version, template.DefaultPriority,
		template.RateLimitPerHour, template.CreatedBy, template.UpdatedBy, now,
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (r *templateRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	query := `SELECT ` + templateColumns + `
		FROM notification_templates WHERE id = $1 AND is_deleted = FALSE`

	template, err := r.scanRow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return template, nil
}

func (r *templateRepository) GetActiveByName(ctx context.Context, name string) (*model.Template, error) {
	query := `SELECT ` + templateColumns + `
		FROM notification_templates
		WHERE name = $1 AND is_active = TRUE AND is_deleted = FALSE`

	template, err := r.scanRow(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("get active template: %w", err)
	}
	return template, nil
}

func (r *templateRepository) List(ctx context.Context, channel *model.Channel, category *model.TemplateCategory, page, limit int) ([]*model.Template, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	cond := `is_deleted = FALSE AND is_active = TRUE`
	args := []interface{}{}
	idx := 1

	if channel != nil {
		cond += fmt.Sprintf(" AND channel = $%d", idx)
		args = append(args, *channel)
		idx++
	}
	if category != nil {
		cond += fmt.Sprintf(" AND category = $%d", idx)
		args = append(args, *category)
		idx++
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM notification_templates WHERE ` + cond
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count templates: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM notification_templates WHERE %s
		ORDER BY name ASC LIMIT $%d OFFSET $%d`, templateColumns, cond, idx, idx+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []*model.Template
	for rows.Next() {
		template, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, template)
	}
	return templates, total, rows.Err()
}

func (r *templateRepository) ListVersions(ctx context.Context, name string) ([]*model.Template, error) {
	query := `SELECT ` + templateColumns + `
		FROM notification_templates
		WHERE name = $1 AND is_deleted = FALSE
		ORDER BY version DESC`

	rows, err := r.pool.Query(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("list template versions: %w", err)
	}
	defer rows.Close()

	var templates []*model.Template
	for rows.Next() {
		template, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template version: %w", err)
		}
		templates = append(templates, template)
	}
	if len(templates) == 0 {
		return nil, model.ErrTemplateNotFound
	}
	return templates, rows.Err()
}

// CreateNewVersion retires the active version and inserts the next one in a
// single transaction, keeping the one-active-per-name invariant.
func (r *templateRepository) CreateNewVersion(ctx context.Context, next *model.Template) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin template version tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentVersion int
	err = tx.QueryRow(ctx, `
		UPDATE notification_templates SET is_active = FALSE, updated_at = NOW()
		WHERE name = $1 AND is_active = TRUE AND is_deleted = FALSE
		RETURNING version`, next.Name,
	).Scan(&currentVersion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrTemplateNotFound
		}
		return fmt.Errorf("retire active template: %w", err)
	}

	now := time.Now().UTC()
	next.Version = currentVersion + 1
	next.Active = true
	next.CreatedAt = now
	next.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		INSERT INTO notification_templates (
			id, name, display_name, description, channel, category,
			subject_template, content_template, html_template,
			is_active, version, default_priority, rate_limit_per_hour,
			created_by, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10, $11, $12, $13, $14, $15, $15)`,
		next.ID, next.Name, next.DisplayName, next.Description,
		next.Channel, next.Category,
		next.SubjectTemplate, next.ContentTemplate, next.HTMLTemplate,
		next.Version, next.DefaultPriority, next.RateLimitPerHour,
		next.CreatedBy, next.UpdatedBy, now,
	)
	if err != nil {
		return fmt.Errorf("insert template version: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *templateRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_templates SET is_active = $2, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE`, id, active)
	if err != nil {
		return fmt.Errorf("set template active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrTemplateNotFound
	}
	return nil
}

func (r *templateRepository) SoftDelete(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_templates
		SET is_deleted = TRUE, is_active = FALSE, updated_at = NOW()
		WHERE name = $1 AND is_deleted = FALSE`, name)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrTemplateNotFound
	}
	return nil
}

func (r *templateRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM notification_templates
		WHERE name = $1 AND is_deleted = FALSE)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check template exists: %w", err)
	}
	return exists, nil
}

func (r *templateRepository) scanRow(row pgx.Row) (*model.Template, error) {
	template := &model.Template{}
	err := row.Scan(
		&template.ID, &template.Name, &template.DisplayName, &template.Description,
		&template.Channel, &template.Category,
		&template.SubjectTemplate, &template.ContentTemplate, &template.HTMLTemplate,
		&template.Active, &template.Deleted, &template.Version,
		&template.DefaultPriority, &template.RateLimitPerHour,
		&template.CreatedBy, &template.UpdatedBy,
		&template.CreatedAt, &template.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return template, nil
}
