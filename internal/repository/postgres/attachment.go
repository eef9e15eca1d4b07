package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbor/internal/domain"
	"arbor/internal/domain/models"
	"arbor/internal/domain/repositories"
)

// PostgresAttachmentRepository implements the AttachmentRepository interface
type PostgresAttachmentRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(config *RepositoryConfig) repositories.AttachmentRepository {
	return &PostgresAttachmentRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a new attachment row.
func (r *PostgresAttachmentRepository) Create(ctx context.Context, att *models.Attachment) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (file_name, stored_name, mime_type, byte_size, block_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, r.tables.Attachments)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		att.FileName,
		att.StoredName,
		att.MimeType,
		att.ByteSize,
		att.BlockID,
	).Scan(&att.ID, &att.CreatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("block %v: %w", att.BlockID, domain.ErrNotFound)
		}
		return fmt.Errorf("create attachment: %w", err)
	}

	return nil
}

// GetByID retrieves an attachment by ID.
func (r *PostgresAttachmentRepository) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	query := fmt.Sprintf(`
		SELECT id, file_name, stored_name, mime_type, byte_size, block_id, created_at
		FROM %s
		WHERE id = $1
	`, r.tables.Attachments)

	var att models.Attachment
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(
		&att.ID,
		&att.FileName,
		&att.StoredName,
		&att.MimeType,
		&att.ByteSize,
		&att.BlockID,
		&att.CreatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("attachment %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get attachment: %w", err)
	}

	return &att, nil
}

// ListByBlock retrieves a block's attachments, oldest first.
func (r *PostgresAttachmentRepository) ListByBlock(ctx context.Context, blockID string) ([]models.Attachment, error) {
	query := fmt.Sprintf(`
		SELECT id, file_name, stored_name, mime_type, byte_size, block_id, created_at
		FROM %s
		WHERE block_id = $1
		ORDER BY created_at
	`, r.tables.Attachments)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, blockID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	return scanAttachments(rows)
}

// ListByPage retrieves all attachments owned by a page's live blocks.
func (r *PostgresAttachmentRepository) ListByPage(ctx context.Context, pageID string) ([]models.Attachment, error) {
	query := fmt.Sprintf(`
		SELECT a.id, a.file_name, a.stored_name, a.mime_type, a.byte_size, a.block_id, a.created_at
		FROM %s a
		JOIN %s b ON b.id = a.block_id
		WHERE b.page_id = $1 AND b.deleted_at IS NULL
		ORDER BY a.created_at
	`, r.tables.Attachments, r.tables.Blocks)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, pageID)
	if err != nil {
		return nil, fmt.Errorf("list page attachments: %w", err)
	}
	defer rows.Close()

	return scanAttachments(rows)
}

// Delete removes an attachment row.
func (r *PostgresAttachmentRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Attachments)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attachment %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

func scanAttachments(rows pgx.Rows) ([]models.Attachment, error) {
	attachments := make([]models.Attachment, 0)
	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(
			&att.ID,
			&att.FileName,
			&att.StoredName,
			&att.MimeType,
			&att.ByteSize,
			&att.BlockID,
			&att.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return attachments, nil
}
