package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbor/internal/domain"
	"arbor/internal/domain/models"
	"arbor/internal/domain/repositories"
)

// PostgresPageRepository implements the PageRepository interface
type PostgresPageRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewPageRepository creates a new page repository
func NewPageRepository(config *RepositoryConfig) repositories.PageRepository {
	return &PostgresPageRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a new page and fills the generated fields.
func (r *PostgresPageRepository) Create(ctx context.Context, page *models.Page) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (title, slug, parent_id, position)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, r.tables.Pages)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		page.Title,
		page.Slug,
		page.ParentID,
		page.Position,
	).Scan(&page.ID, &page.CreatedAt, &page.UpdatedAt)

	if err != nil {
		if IsPgDuplicateError(err) {
			existingID, queryErr := r.getExistingPageID(ctx, page.ParentID, page.Slug)
			if queryErr != nil {
				return fmt.Errorf("page '%s' already exists here: %w", page.Title, domain.ErrConflict)
			}
			return &domain.ConflictError{
				Message:      fmt.Sprintf("page '%s' already exists here", page.Title),
				ResourceType: "page",
				ResourceID:   existingID,
			}
		}
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("parent page %v: %w", page.ParentID, domain.ErrNotFound)
		}
		return fmt.Errorf("create page: %w", err)
	}

	return nil
}

// GetByID retrieves a live page by ID.
func (r *PostgresPageRepository) GetByID(ctx context.Context, id string) (*models.Page, error) {
	query := fmt.Sprintf(`
		SELECT id, title, slug, parent_id, position, created_at, updated_at
		FROM %s
		WHERE id = $1 AND deleted_at IS NULL
	`, r.tables.Pages)

	var page models.Page
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(
		&page.ID,
		&page.Title,
		&page.Slug,
		&page.ParentID,
		&page.Position,
		&page.CreatedAt,
		&page.UpdatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("page %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get page: %w", err)
	}

	return &page, nil
}

// List retrieves all live pages ordered for tree assembly.
func (r *PostgresPageRepository) List(ctx context.Context) ([]models.Page, error) {
	query := fmt.Sprintf(`
		SELECT id, title, slug, parent_id, position, created_at, updated_at
		FROM %s
		WHERE deleted_at IS NULL
		ORDER BY parent_id NULLS FIRST, position, title
	`, r.tables.Pages)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	return scanPages(rows)
}

// ListRoots retrieves live pages with no parent.
func (r *PostgresPageRepository) ListRoots(ctx context.Context) ([]models.Page, error) {
	query := fmt.Sprintf(`
		SELECT id, title, slug, parent_id, position, created_at, updated_at
		FROM %s
		WHERE parent_id IS NULL AND deleted_at IS NULL
		ORDER BY position, title
	`, r.tables.Pages)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list root pages: %w", err)
	}
	defer rows.Close()

	return scanPages(rows)
}

// Update rewrites title, slug, parent and position.
func (r *PostgresPageRepository) Update(ctx context.Context, page *models.Page) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $2, slug = $3, parent_id = $4, position = $5, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`, r.tables.Pages)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		page.ID,
		page.Title,
		page.Slug,
		page.ParentID,
		page.Position,
	).Scan(&page.UpdatedAt)

	if err != nil {
		if IsPgNoRowsError(err) {
			return fmt.Errorf("page %s: %w", page.ID, domain.ErrNotFound)
		}
		if IsPgDuplicateError(err) {
			existingID, queryErr := r.getExistingPageID(ctx, page.ParentID, page.Slug)
			if queryErr != nil {
				return fmt.Errorf("page '%s' already exists here: %w", page.Title, domain.ErrConflict)
			}
			return &domain.ConflictError{
				Message:      fmt.Sprintf("page '%s' already exists here", page.Title),
				ResourceType: "page",
				ResourceID:   existingID,
			}
		}
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("parent page %v: %w", page.ParentID, domain.ErrNotFound)
		}
		return fmt.Errorf("update page: %w", err)
	}

	return nil
}

// Delete soft-deletes a page, every page below it, and their blocks.
// Callers wanting atomicity run it inside the transaction manager.
func (r *PostgresPageRepository) Delete(ctx context.Context, id string) error {
	subtree := fmt.Sprintf(`
		WITH RECURSIVE subtree AS (
			SELECT id FROM %[1]s WHERE id = $1 AND deleted_at IS NULL
			UNION ALL
			SELECT p.id FROM %[1]s p
			JOIN subtree s ON p.parent_id = s.id
			WHERE p.deleted_at IS NULL
		)
		UPDATE %[1]s SET deleted_at = NOW()
		WHERE id IN (SELECT id FROM subtree)
	`, r.tables.Pages)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, subtree, id)
	if err != nil {
		return fmt.Errorf("delete page subtree: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("page %s: %w", id, domain.ErrNotFound)
	}

	// The page rows were just marked; take their blocks down with them.
	orphaned := fmt.Sprintf(`
		UPDATE %s b SET deleted_at = NOW()
		FROM %s p
		WHERE b.page_id = p.id AND b.deleted_at IS NULL AND p.deleted_at IS NOT NULL
	`, r.tables.Blocks, r.tables.Pages)

	if _, err := executor.Exec(ctx, orphaned); err != nil {
		return fmt.Errorf("delete page blocks: %w", err)
	}

	return nil
}

// IsDescendant reports whether candidateID lies in the subtree rooted at pageID.
func (r *PostgresPageRepository) IsDescendant(ctx context.Context, pageID, candidateID string) (bool, error) {
	query := fmt.Sprintf(`
		WITH RECURSIVE subtree AS (
			SELECT id FROM %[1]s WHERE id = $1 AND deleted_at IS NULL
			UNION ALL
			SELECT p.id FROM %[1]s p
			JOIN subtree s ON p.parent_id = s.id
			WHERE p.deleted_at IS NULL
		)
		SELECT EXISTS (SELECT 1 FROM subtree WHERE id = $2)
	`, r.tables.Pages)

	var exists bool
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, pageID, candidateID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check descendant: %w", err)
	}
	return exists, nil
}

// SlugExists reports whether a live sibling under parentID already uses slug.
func (r *PostgresPageRepository) SlugExists(ctx context.Context, parentID *string, slug string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s
			WHERE parent_id IS NOT DISTINCT FROM $1 AND slug = $2 AND deleted_at IS NULL
		)
	`, r.tables.Pages)

	var exists bool
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, parentID, slug).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

// getExistingPageID finds the live page occupying (parentID, slug).
func (r *PostgresPageRepository) getExistingPageID(ctx context.Context, parentID *string, slug string) (string, error) {
	query := fmt.Sprintf(`
		SELECT id FROM %s
		WHERE parent_id IS NOT DISTINCT FROM $1 AND slug = $2 AND deleted_at IS NULL
	`, r.tables.Pages)

	var id string
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, parentID, slug).Scan(&id); err != nil {
		return "", fmt.Errorf("find existing page: %w", err)
	}
	return id, nil
}

func scanPages(rows pgx.Rows) ([]models.Page, error) {
	pages := make([]models.Page, 0)
	for rows.Next() {
		var page models.Page
		if err := rows.Scan(
			&page.ID,
			&page.Title,
			&page.Slug,
			&page.ParentID,
			&page.Position,
			&page.CreatedAt,
			&page.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

// escapeLike escapes ILIKE metacharacters so the search term is matched
// literally.
func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}

// Search performs case-insensitive substring matching over page titles and
// block search text.
func (r *PostgresPageRepository) Search(ctx context.Context, opts *models.SearchOptions) (*models.SearchResults, error) {
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}

	wantTitle, wantContent := false, false
	for _, f := range opts.Fields {
		switch f {
		case models.SearchFieldTitle:
			wantTitle = true
		case models.SearchFieldContent:
			wantContent = true
		}
	}

	var branches []string
	if wantTitle {
		branches = append(branches, fmt.Sprintf(`
			SELECT p.id AS page_id, p.title, p.slug, 'title' AS field,
			       NULL::uuid AS block_id, p.title AS matched_text, p.updated_at
			FROM %s p
			WHERE p.deleted_at IS NULL AND p.title ILIKE $1
		`, r.tables.Pages))
	}
	if wantContent {
		branches = append(branches, fmt.Sprintf(`
			SELECT p.id, p.title, p.slug, 'content',
			       b.id, b.search_text, b.updated_at
			FROM %s b
			JOIN %s p ON p.id = b.page_id
			WHERE b.deleted_at IS NULL AND p.deleted_at IS NULL
			  AND b.search_text ILIKE $1
		`, r.tables.Blocks, r.tables.Pages))
	}

	matches := strings.Join(branches, " UNION ALL ")
	pattern := "%" + escapeLike(opts.Query) + "%"
	executor := GetExecutor(ctx, r.pool)

	var totalCount int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM (%s) m`, matches)
	if err := executor.QueryRow(ctx, countQuery, pattern).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("count search matches: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT page_id, title, slug, field, block_id, matched_text
		FROM (%s) m
		ORDER BY updated_at DESC, page_id
		LIMIT $2 OFFSET $3
	`, matches)

	rows, err := executor.Query(ctx, query, pattern, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("search pages: %w", err)
	}
	defer rows.Close()

	results := make([]models.SearchResult, 0)
	for rows.Next() {
		var res models.SearchResult
		var field string
		var matched string
		if err := rows.Scan(&res.PageID, &res.Title, &res.Slug, &field, &res.BlockID, &matched); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		res.Field = models.SearchField(field)
		res.Snippet = buildSnippet(matched, opts.Query)
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}

	return models.NewSearchResults(results, totalCount, opts), nil
}

// snippetRadius is how much context surrounds the first match in a snippet.
const snippetRadius = 60

// buildSnippet returns the text around the first case-insensitive match of
// term, ellipsized on the trimmed sides.
func buildSnippet(text, term string) string {
	if text == "" || term == "" {
		return ""
	}
	idx := strings.Index(strings.ToLower(text), strings.ToLower(term))
	if idx < 0 {
		if len(text) <= 2*snippetRadius {
			return text
		}
		return text[:2*snippetRadius] + "…"
	}

	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(term) + snippetRadius
	if end > len(text) {
		end = len(text)
	}

	// Do not split multi-byte runes at the cut points.
	for start > 0 && !isRuneStart(text[start]) {
		start--
	}
	for end < len(text) && !isRuneStart(text[end]) {
		end++
	}

	snippet := text[start:end]
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(text) {
		snippet = snippet + "…"
	}
	return snippet
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
