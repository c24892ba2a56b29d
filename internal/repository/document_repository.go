package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hrms-api/internal/models"
)

const documentColumns = `id, owner_employee_id, document_type, document_name, file_reference, file_name, file_size,
       mime_type, remarks, status, rejection_reason, uploaded_by, upload_date, reviewed_by, reviewed_date`

// DocumentRepository handles document metadata persistence.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create stores metadata for an uploaded document. New documents always start
// Pending with no review fields.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadDate.IsZero() {
		doc.UploadDate = time.Now().UTC()
	}
	doc.Status = models.DocumentStatusPending
	doc.RejectionReason = nil
	doc.ReviewedBy = nil
	doc.ReviewedDate = nil
	const query = `INSERT INTO documents
	(id, owner_employee_id, document_type, document_name, file_reference, file_name, file_size, mime_type, remarks, status, uploaded_by, upload_date)
	VALUES (:id, :owner_employee_id, :document_type, :document_name, :file_reference, :file_name, :file_size, :mime_type, :remarks, :status, :uploaded_by, :upload_date)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID retrieves one document. Missing rows surface as sql.ErrNoRows.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// List returns documents matching the filter, newest first.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + documentColumns + ` FROM documents`)
	args := make([]interface{}, 0, 2)
	conditions := make([]string, 0, 2)

	if filter.OwnerEmployeeID != "" {
		args = append(args, filter.OwnerEmployeeID)
		conditions = append(conditions, fmt.Sprintf("owner_employee_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY upload_date DESC, id")
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset))
	}

	docs := make([]models.Document, 0)
	if err := r.db.SelectContext(ctx, &docs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// ApplyReview moves a Pending document to the reviewed status in a single
// conditional write and returns the stored row. When the document is missing
// or no longer Pending nothing is written and sql.ErrNoRows is returned.
func (r *DocumentRepository) ApplyReview(ctx context.Context, review models.DocumentReview) (*models.Document, error) {
	query := fmt.Sprintf(`UPDATE documents
	SET status = $2, rejection_reason = $3, reviewed_by = $4, reviewed_date = $5
	WHERE id = $1 AND status = '%s'
	RETURNING %s`, models.DocumentStatusPending, documentColumns)
	var doc models.Document
	err := r.db.GetContext(ctx, &doc, query,
		review.DocumentID,
		review.Status,
		review.RejectionReason,
		review.ReviewedBy,
		review.ReviewedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("apply document review: %w", err)
	}
	return &doc, nil
}

// Delete hard-deletes a document row. A second delete of the same id returns
// sql.ErrNoRows.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM documents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
