package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/hrms-api/internal/dto"
	"github.com/noah-isme/hrms-api/internal/models"
	appErrors "github.com/noah-isme/hrms-api/pkg/errors"
	"github.com/noah-isme/hrms-api/pkg/export"
)

const documentCacheNamespace = "documents"

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	ApplyReview(ctx context.Context, review models.DocumentReview) (*models.Document, error)
	Delete(ctx context.Context, id string) error
}

type employeeDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type documentFileStorage interface {
	SaveStream(key string, r io.Reader) (int64, error)
	Open(key string) (*os.File, error)
	Delete(key string) error
}

type documentLinkSigner interface {
	Generate(documentID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (documentID, relPath string, expiresAt time.Time, err error)
}

type documentNotifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// DocumentDownload bundles an open file with the metadata needed to stream it.
type DocumentDownload struct {
	File      *os.File
	FileName  string
	MimeType  string
	SizeBytes int64
}

// DocumentExport is a rendered document register.
type DocumentExport struct {
	Content     []byte
	ContentType string
	FileName    string
}

// DocumentServiceConfig holds service settings.
type DocumentServiceConfig struct {
	APIPrefix string
	CacheTTL  time.Duration
}

// DocumentService implements the document API: listing scoped by role,
// validated uploads, the HR review workflow, deletion and downloads.
type DocumentService struct {
	repo      documentStore
	employees employeeDirectory
	storage   documentFileStorage
	validator *UploadValidator
	signer    documentLinkSigner
	audit     auditLogger
	notifier  documentNotifier
	cache     *CacheService
	metrics   *MetricsService
	exporters map[string]export.Exporter
	policy    DocumentPolicy
	workflow  DocumentWorkflow
	logger    *zap.Logger
	cfg       DocumentServiceConfig
	now       func() time.Time
}

// NewDocumentService wires the service. signer, notifier, cache and metrics
// may be nil.
func NewDocumentService(
	repo documentStore,
	employees employeeDirectory,
	storage documentFileStorage,
	validator *UploadValidator,
	signer documentLinkSigner,
	audit auditLogger,
	notifier documentNotifier,
	cache *CacheService,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg DocumentServiceConfig,
) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validator == nil {
		validator = NewUploadValidator(UploadValidatorConfig{})
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api"
	}
	return &DocumentService{
		repo:      repo,
		employees: employees,
		storage:   storage,
		validator: validator,
		signer:    signer,
		audit:     audit,
		notifier:  notifier,
		cache:     cache,
		metrics:   metrics,
		exporters: map[string]export.Exporter{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(),
		},
		policy:   NewDocumentPolicy(),
		workflow: NewDocumentWorkflow(),
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Types returns the document type catalog grouped by category.
func (s *DocumentService) Types() []models.DocumentTypeGroup {
	return models.DocumentCatalog()
}

// List returns the documents visible to caller. HR sees every owner unless
// query.EmployeeID narrows it; employees only ever see their own documents.
// The boolean reports whether the result came from cache.
func (s *DocumentService) List(ctx context.Context, caller *models.JWTClaims, query dto.DocumentQuery) ([]models.Document, bool, error) {
	filter, err := s.policy.Scope(caller, query.EmployeeID)
	if err != nil {
		return nil, false, err
	}
	if query.Status != "" && !query.Status.Valid() {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", query.Status))
	}
	filter.Status = query.Status
	filter.Limit = query.Limit
	filter.Offset = query.Offset

	return s.list(ctx, filter)
}

// ListMine returns the caller's own documents regardless of role.
func (s *DocumentService) ListMine(ctx context.Context, caller *models.JWTClaims) ([]models.Document, bool, error) {
	if caller == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	return s.list(ctx, models.DocumentFilter{OwnerEmployeeID: caller.UserID})
}

func (s *DocumentService) list(ctx context.Context, filter models.DocumentFilter) ([]models.Document, bool, error) {
	// The generation is read before the store so a mutation that lands in
	// between leaves this result under a key nobody reads again.
	gen, cacheable := s.cache.Generation(ctx, documentCacheNamespace)
	key := documentCacheKey(gen, filter)
	if cacheable {
		var cached []models.Document
		if s.cache.Get(ctx, key, &cached) {
			return cached, true, nil
		}
	}

	docs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	if cacheable {
		s.cache.Set(ctx, key, docs, s.cfg.CacheTTL)
	}
	return docs, false, nil
}

// Get returns one document if caller may see it.
func (s *DocumentService) Get(ctx context.Context, caller *models.JWTClaims, id string) (*models.Document, error) {
	if caller == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(caller, doc, DocumentActionView); err != nil {
		return nil, err
	}
	return doc, nil
}

// Upload validates and stores a new Pending document. HR callers may upload
// on behalf of another employee through meta.UploadForEmployeeID; for anyone
// else the field is ignored.
func (s *DocumentService) Upload(ctx context.Context, caller *models.JWTClaims, file FileDescriptor, meta dto.UploadDocumentRequest) (*models.Document, error) {
	if caller == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, err := s.prepareUpload(ctx, caller, file, meta)
	if err != nil {
		s.metrics.RecordUploadRejected(appErrors.FromError(err).Code)
		return nil, err
	}

	doc.FileReference = path.Join(doc.OwnerEmployeeID, doc.ID+extensionFor(doc.MimeType))
	written, err := s.storage.SaveStream(doc.FileReference, io.LimitReader(file.Content, s.validator.MaxFileSize()+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document file")
	}
	if written > s.validator.MaxFileSize() {
		s.removeFile(doc.FileReference)
		s.metrics.RecordUploadRejected(appErrors.ErrFileTooLarge.Code)
		return nil, appErrors.Clone(appErrors.ErrFileTooLarge, fmt.Sprintf("file exceeds %d bytes limit", s.validator.MaxFileSize()))
	}
	doc.FileSize = written

	if err := s.repo.Create(ctx, doc); err != nil {
		s.removeFile(doc.FileReference)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document")
	}

	category, _ := models.DocumentCategoryOf(doc.DocumentType)
	s.metrics.RecordUpload(string(category))
	s.cache.Bump(ctx, documentCacheNamespace)
	s.emitAudit(ctx, caller, models.AuditActionDocumentUpload, doc.ID, nil, map[string]interface{}{
		"owner":        doc.OwnerEmployeeID,
		"documentType": doc.DocumentType,
		"documentName": doc.DocumentName,
		"fileSize":     doc.FileSize,
		"mimeType":     doc.MimeType,
	})
	if doc.OwnerEmployeeID != caller.UserID {
		s.notify(ctx, doc, models.NotificationDocumentUploaded, "Document uploaded",
			fmt.Sprintf("HR uploaded %q (%s) on your behalf.", doc.DocumentName, doc.DocumentType))
	}
	return doc, nil
}

func (s *DocumentService) prepareUpload(ctx context.Context, caller *models.JWTClaims, file FileDescriptor, meta dto.UploadDocumentRequest) (*models.Document, error) {
	documentType := strings.TrimSpace(meta.DocumentType)
	documentName := strings.TrimSpace(meta.DocumentName)
	switch {
	case documentType == "":
		return nil, appErrors.Clone(appErrors.ErrMissingRequiredField, "documentType is required")
	case documentName == "":
		return nil, appErrors.Clone(appErrors.ErrMissingRequiredField, "documentName is required")
	}
	if _, ok := models.DocumentCategoryOf(documentType); !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown documentType %q", documentType))
	}

	ownerID := caller.UserID
	if target := strings.TrimSpace(meta.UploadForEmployeeID); target != "" && caller.IsHR() && target != caller.UserID {
		if err := s.ensureEmployee(ctx, target); err != nil {
			return nil, err
		}
		ownerID = target
	}

	mimeType, err := s.validator.Validate(file)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:              uuid.NewString(),
		OwnerEmployeeID: ownerID,
		DocumentType:    documentType,
		DocumentName:    documentName,
		FileName:        uploadFileName(file.FileName),
		MimeType:        mimeType,
		Status:          models.DocumentStatusPending,
		UploadedBy:      caller.UserID,
		UploadDate:      s.now().UTC(),
	}
	if remarks := strings.TrimSpace(meta.Remarks); remarks != "" {
		doc.Remarks = &remarks
	}
	return doc, nil
}

func uploadFileName(raw string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/"))
	if name == "." || name == "/" {
		return "document"
	}
	return name
}

func (s *DocumentService) ensureEmployee(ctx context.Context, id string) error {
	if s.employees == nil {
		return appErrors.Clone(appErrors.ErrInternal, "employee directory unavailable")
	}
	user, err := s.employees.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
	}
	if !user.Active {
		return appErrors.Clone(appErrors.ErrNotFound, "employee not found")
	}
	return nil
}

// Approve moves a Pending document to Approved.
func (s *DocumentService) Approve(ctx context.Context, caller *models.JWTClaims, id string) (*models.Document, error) {
	return s.review(ctx, caller, id, DocumentActionApprove, "")
}

// Reject moves a Pending document to Rejected with an optional reason.
func (s *DocumentService) Reject(ctx context.Context, caller *models.JWTClaims, id, reason string) (*models.Document, error) {
	return s.review(ctx, caller, id, DocumentActionReject, reason)
}

func (s *DocumentService) review(ctx context.Context, caller *models.JWTClaims, id string, action DocumentAction, reason string) (*models.Document, error) {
	doc, err := s.reviewOnce(ctx, caller, id, action, reason)
	outcome := "applied"
	if err != nil {
		outcome = appErrors.FromError(err).Code
	}
	s.metrics.RecordReview(string(action), outcome)
	return doc, err
}

func (s *DocumentService) reviewOnce(ctx context.Context, caller *models.JWTClaims, id string, action DocumentAction, reason string) (*models.Document, error) {
	if caller == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(caller, doc, action); err != nil {
		return nil, err
	}
	review, err := s.workflow.Transition(doc, action, caller.UserID, reason, s.now())
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.ApplyReview(ctx, review)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document")
		}
		// Lost the race: report the state the winner left behind.
		current, loadErr := s.load(ctx, id)
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, InvalidTransition(current.Status, action)
	}

	auditAction := models.AuditActionDocumentApprove
	notificationType := models.NotificationDocumentApproved
	message := fmt.Sprintf("Your %q (%s) was approved.", updated.DocumentName, updated.DocumentType)
	if action == DocumentActionReject {
		auditAction = models.AuditActionDocumentReject
		notificationType = models.NotificationDocumentRejected
		message = fmt.Sprintf("Your %q (%s) was rejected.", updated.DocumentName, updated.DocumentType)
		if updated.RejectionReason != nil && *updated.RejectionReason != "" {
			message = fmt.Sprintf("%s Reason: %s", message, *updated.RejectionReason)
		}
	}

	s.cache.Bump(ctx, documentCacheNamespace)
	s.emitAudit(ctx, caller, auditAction, updated.ID,
		map[string]interface{}{"status": doc.Status},
		map[string]interface{}{"status": updated.Status, "rejectionReason": updated.RejectionReason, "reviewedAt": review.ReviewedAt},
	)
	s.notify(ctx, updated, notificationType, "Document "+strings.ToLower(string(updated.Status)), message)
	return updated, nil
}

// Delete hard-deletes a document and its stored file. Deleting the same id
// twice fails with NOT_FOUND the second time.
func (s *DocumentService) Delete(ctx context.Context, caller *models.JWTClaims, id string) error {
	if caller == nil {
		return appErrors.ErrUnauthorized
	}
	doc, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(caller, doc, DocumentActionDelete); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
	}
	s.removeFile(doc.FileReference)
	s.cache.Bump(ctx, documentCacheNamespace)
	s.emitAudit(ctx, caller, models.AuditActionDocumentDelete, doc.ID, map[string]interface{}{
		"owner":        doc.OwnerEmployeeID,
		"documentType": doc.DocumentType,
		"status":       doc.Status,
	}, nil)
	return nil
}

// Download opens the stored file of a document visible to caller.
func (s *DocumentService) Download(ctx context.Context, caller *models.JWTClaims, id string) (*DocumentDownload, error) {
	doc, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.open(doc)
}

// CreateLink issues a signed, time-limited download URL for a document
// visible to caller.
func (s *DocumentService) CreateLink(ctx context.Context, caller *models.JWTClaims, id string) (*dto.DocumentLinkResponse, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	doc, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.FileReference)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	return &dto.DocumentLinkResponse{
		DocumentID:  doc.ID,
		DownloadURL: fmt.Sprintf("%s/documents/shared/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
		ExpiresAt:   expiresAt,
	}, nil
}

// OpenShared resolves a signed link token to the document file. The token is
// the only credential.
func (s *DocumentService) OpenShared(ctx context.Context, token string) (*DocumentDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	documentID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired link")
	}
	doc, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.FileReference != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "link does not match document")
	}
	return s.open(doc)
}

// Export renders the document register visible to an HR caller as csv or pdf.
func (s *DocumentService) Export(ctx context.Context, caller *models.JWTClaims, query dto.DocumentQuery, format string) (*DocumentExport, error) {
	if caller == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !caller.IsHR() {
		return nil, appErrors.ErrForbidden
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	exporter, ok := s.exporters[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	query.Limit, query.Offset = 0, 0
	docs, _, err := s.List(ctx, caller, query)
	if err != nil {
		return nil, err
	}

	content, err := exporter.Render(documentDataset(docs))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &DocumentExport{
		Content:     content,
		ContentType: exporter.ContentType(),
		FileName:    fmt.Sprintf("documents_%s%s", s.now().UTC().Format("20060102_150405"), exporter.Extension()),
	}, nil
}

var documentExportHeaders = []string{"Document ID", "Employee", "Category", "Type", "Name", "File", "Size", "Status", "Uploaded", "Reviewed By", "Reviewed", "Rejection Reason"}

func documentDataset(docs []models.Document) export.Dataset {
	rows := make([]map[string]string, 0, len(docs))
	for _, doc := range docs {
		category, _ := models.DocumentCategoryOf(doc.DocumentType)
		row := map[string]string{
			"Document ID": doc.ID,
			"Employee":    doc.OwnerEmployeeID,
			"Category":    string(category),
			"Type":        doc.DocumentType,
			"Name":        doc.DocumentName,
			"File":        doc.FileName,
			"Size":        strconv.FormatInt(doc.FileSize, 10),
			"Status":      string(doc.Status),
			"Uploaded":    doc.UploadDate.UTC().Format(time.RFC3339),
		}
		if doc.ReviewedBy != nil {
			row["Reviewed By"] = *doc.ReviewedBy
		}
		if doc.ReviewedDate != nil {
			row["Reviewed"] = doc.ReviewedDate.UTC().Format(time.RFC3339)
		}
		if doc.RejectionReason != nil {
			row["Rejection Reason"] = *doc.RejectionReason
		}
		rows = append(rows, row)
	}
	return export.Dataset{Title: "Employee document register", Headers: documentExportHeaders, Rows: rows}
}

func (s *DocumentService) load(ctx context.Context, id string) (*models.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document id is required")
	}
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

func (s *DocumentService) open(doc *models.Document) (*DocumentDownload, error) {
	file, err := s.storage.Open(doc.FileReference)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document file missing")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read document file")
	}
	return &DocumentDownload{
		File:      file,
		FileName:  doc.FileName,
		MimeType:  doc.MimeType,
		SizeBytes: info.Size(),
	}, nil
}

func (s *DocumentService) removeFile(key string) {
	if err := s.storage.Delete(key); err != nil {
		s.logger.Warn("failed to remove document file", zap.String("key", key), zap.Error(err))
	}
}

func (s *DocumentService) notify(ctx context.Context, doc *models.Document, kind models.NotificationType, title, message string) {
	if s.notifier == nil {
		return
	}
	documentID := doc.ID
	if err := s.notifier.Notify(ctx, models.Notification{
		UserID:     doc.OwnerEmployeeID,
		Type:       kind,
		Title:      title,
		Message:    message,
		DocumentID: &documentID,
	}); err != nil {
		s.logger.Warn("failed to queue document notification", zap.String("document_id", doc.ID), zap.Error(err))
	}
}

func (s *DocumentService) emitAudit(ctx context.Context, caller *models.JWTClaims, action, documentID string, oldValues, newValues map[string]interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &caller.UserID,
		Action:     action,
		Resource:   "document",
		ResourceID: &documentID,
		IPAddress:  "system",
		UserAgent:  "document-service",
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to create document audit", zap.String("action", action), zap.Error(err))
	}
}

func documentCacheKey(generation int64, filter models.DocumentFilter) string {
	owner := filter.OwnerEmployeeID
	if owner == "" {
		owner = "all"
	}
	status := string(filter.Status)
	if status == "" {
		status = "any"
	}
	return fmt.Sprintf("%s:g%d:%s:%s:%d:%d", documentCacheNamespace, generation, owner, strings.ToLower(status), filter.Limit, filter.Offset)
}
