package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"arbor/internal/domain"
	"arbor/internal/domain/models"
	"arbor/internal/domain/repositories"
)

// PostgresBlockRepository implements the BlockRepository interface
type PostgresBlockRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewBlockRepository creates a new block repository
func NewBlockRepository(config *RepositoryConfig) repositories.BlockRepository {
	return &PostgresBlockRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a new block and fills the generated fields.
func (r *PostgresBlockRepository) Create(ctx context.Context, block *models.Block) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (page_id, type, content, position, search_text)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, r.tables.Blocks)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		block.PageID,
		block.Type,
		block.Content,
		block.Order,
		block.SearchText,
	).Scan(&block.ID, &block.CreatedAt, &block.UpdatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("page %s: %w", block.PageID, domain.ErrNotFound)
		}
		return fmt.Errorf("create block: %w", err)
	}

	return nil
}

// GetByID retrieves a live block by ID.
func (r *PostgresBlockRepository) GetByID(ctx context.Context, id string) (*models.Block, error) {
	query := fmt.Sprintf(`
		SELECT id, page_id, type, content, position, search_text, created_at, updated_at
		FROM %s
		WHERE id = $1 AND deleted_at IS NULL
	`, r.tables.Blocks)

	var block models.Block
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(
		&block.ID,
		&block.PageID,
		&block.Type,
		&block.Content,
		&block.Order,
		&block.SearchText,
		&block.CreatedAt,
		&block.UpdatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("block %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get block: %w", err)
	}

	return &block, nil
}

// ListByPage retrieves a page's live blocks ordered by position.
func (r *PostgresBlockRepository) ListByPage(ctx context.Context, pageID string) ([]models.Block, error) {
	query := fmt.Sprintf(`
		SELECT id, page_id, type, content, position, search_text, created_at, updated_at
		FROM %s
		WHERE page_id = $1 AND deleted_at IS NULL
		ORDER BY position, created_at
	`, r.tables.Blocks)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, pageID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	blocks := make([]models.Block, 0)
	for rows.Next() {
		var block models.Block
		if err := rows.Scan(
			&block.ID,
			&block.PageID,
			&block.Type,
			&block.Content,
			&block.Order,
			&block.SearchText,
			&block.CreatedAt,
			&block.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}

	return blocks, nil
}

// CountByPage counts a page's live blocks.
func (r *PostgresBlockRepository) CountByPage(ctx context.Context, pageID string) (int, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE page_id = $1 AND deleted_at IS NULL
	`, r.tables.Blocks)

	var count int
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, pageID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count blocks: %w", err)
	}
	return count, nil
}

// Update rewrites content, type, position and search text.
func (r *PostgresBlockRepository) Update(ctx context.Context, block *models.Block) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET type = $2, content = $3, position = $4, search_text = $5, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`, r.tables.Blocks)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		block.ID,
		block.Type,
		block.Content,
		block.Order,
		block.SearchText,
	).Scan(&block.UpdatedAt)

	if err != nil {
		if IsPgNoRowsError(err) {
			return fmt.Errorf("block %s: %w", block.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("update block: %w", err)
	}

	return nil
}

// Delete soft-deletes a block.
func (r *PostgresBlockRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, r.tables.Blocks)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("block %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// DeleteByPage soft-deletes all blocks of a page.
func (r *PostgresBlockRepository) DeleteByPage(ctx context.Context, pageID string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET deleted_at = NOW()
		WHERE page_id = $1 AND deleted_at IS NULL
	`, r.tables.Blocks)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, pageID); err != nil {
		return fmt.Errorf("delete page blocks: %w", err)
	}

	return nil
}
