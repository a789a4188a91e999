package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/store"
)

// PostgresAttachmentStore implements the store.AttachmentStore interface.
type PostgresAttachmentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAttachmentStore creates a new PostgresAttachmentStore.
func NewPostgresAttachmentStore(db store.DBTX, logger *slog.Logger) *PostgresAttachmentStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAttachmentStore{
		db:     db,
		logger: logger.With(slog.String("component", "attachment_store")),
	}
}

var _ store.AttachmentStore = (*PostgresAttachmentStore)(nil)

// WithTx implements store.AttachmentStore.WithTx
func (s *PostgresAttachmentStore) WithTx(tx *sql.Tx) store.AttachmentStore {
	return &PostgresAttachmentStore{db: tx, logger: s.logger}
}

// Create implements store.AttachmentStore.Create
func (s *PostgresAttachmentStore) Create(ctx context.Context, a *domain.Attachment) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, issue_id, uploader_id, file_name, content_type, size_bytes, storage_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.IssueID, a.UploaderID, a.FileName, a.ContentType, a.Size, a.StoragePath, a.CreatedAt)
	if err != nil {
		return store.NewStoreError("attachment", "create", "failed to insert attachment", MapError(err))
	}
	return nil
}

const attachmentColumns = `id, issue_id, uploader_id, file_name, content_type, size_bytes, storage_path, created_at`

func scanAttachment(row interface{ Scan(dest ...any) error }) (*domain.Attachment, error) {
	var a domain.Attachment
	err := row.Scan(&a.ID, &a.IssueID, &a.UploaderID, &a.FileName, &a.ContentType, &a.Size, &a.StoragePath, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByID implements store.AttachmentStore.GetByID
func (s *PostgresAttachmentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Attachment, error) {
	a, err := scanAttachment(s.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAttachmentNotFound
		}
		return nil, store.NewStoreError("attachment", "get", "failed to query attachment", MapError(err))
	}
	return a, nil
}

// ListByIssue implements store.AttachmentStore.ListByIssue
func (s *PostgresAttachmentStore) ListByIssue(ctx context.Context, issueID uuid.UUID) ([]*domain.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE issue_id = $1 ORDER BY created_at`, issueID)
	if err != nil {
		return nil, store.NewStoreError("attachment", "list", "failed to query attachments", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	attachments := []*domain.Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, store.NewStoreError("attachment", "list", "failed to scan attachment", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

// Delete implements store.AttachmentStore.Delete
func (s *PostgresAttachmentStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return store.NewStoreError("attachment", "delete", "failed to delete attachment", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrAttachmentNotFound)
}
