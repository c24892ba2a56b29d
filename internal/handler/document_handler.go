package handler

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/hrms-api/internal/dto"
	"github.com/noah-isme/hrms-api/internal/middleware"
	"github.com/noah-isme/hrms-api/internal/models"
	"github.com/noah-isme/hrms-api/internal/service"
	appErrors "github.com/noah-isme/hrms-api/pkg/errors"
	"github.com/noah-isme/hrms-api/pkg/response"
)

// DocumentUploadField is the multipart field carrying the file.
const DocumentUploadField = "document"

type documentService interface {
	Types() []models.DocumentTypeGroup
	List(ctx context.Context, caller *models.JWTClaims, query dto.DocumentQuery) ([]models.Document, bool, error)
	ListMine(ctx context.Context, caller *models.JWTClaims) ([]models.Document, bool, error)
	Get(ctx context.Context, caller *models.JWTClaims, id string) (*models.Document, error)
	Upload(ctx context.Context, caller *models.JWTClaims, file service.FileDescriptor, meta dto.UploadDocumentRequest) (*models.Document, error)
	Approve(ctx context.Context, caller *models.JWTClaims, id string) (*models.Document, error)
	Reject(ctx context.Context, caller *models.JWTClaims, id, reason string) (*models.Document, error)
	Delete(ctx context.Context, caller *models.JWTClaims, id string) error
	Download(ctx context.Context, caller *models.JWTClaims, id string) (*service.DocumentDownload, error)
	CreateLink(ctx context.Context, caller *models.JWTClaims, id string) (*dto.DocumentLinkResponse, error)
	OpenShared(ctx context.Context, token string) (*service.DocumentDownload, error)
	Export(ctx context.Context, caller *models.JWTClaims, query dto.DocumentQuery, format string) (*service.DocumentExport, error)
}

// DocumentHandler manages document HTTP endpoints.
type DocumentHandler struct {
	service  documentService
	validate *validator.Validate
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(svc documentService, validate *validator.Validate) *DocumentHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &DocumentHandler{service: svc, validate: validate}
}

// Types godoc
// @Summary List document types
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /documents/types [get]
func (h *DocumentHandler) Types(c *gin.Context) {
	response.OK(c, h.service.Types())
}

// List godoc
// @Summary List documents (HR)
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Param employeeId query string false "Owner filter"
// @Param status query string false "Pending, Approved or Rejected"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query, err := parseDocumentQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	docs, cached, err := h.service.List(c.Request.Context(), claims, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.OK(c, docs, middleware.ExtractMeta(c))
}

// ListMine godoc
// @Summary List the caller's documents
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /documents/my [get]
func (h *DocumentHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	docs, cached, err := h.service.ListMine(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.OK(c, docs, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get document metadata
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	doc, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, doc)
}

// Upload godoc
// @Summary Upload a document
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param documentType formData string true "Document type"
// @Param documentName formData string true "Document name"
// @Param remarks formData string false "Remarks"
// @Param uploadForEmployeeId formData string false "Owner when uploaded by HR"
// @Param document formData file true "PDF, JPEG, PNG, DOC or DOCX up to 5 MiB"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /documents/upload [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UploadDocumentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, uploadBindError(err, "invalid upload payload"))
		return
	}

	file := service.FileDescriptor{}
	fileHeader, err := c.FormFile(DocumentUploadField)
	switch {
	case err == nil:
		src, openErr := fileHeader.Open()
		if openErr != nil {
			response.Error(c, appErrors.Wrap(openErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
			return
		}
		defer src.Close() //nolint:errcheck
		file = service.FileDescriptor{
			FileName: fileHeader.Filename,
			Size:     fileHeader.Size,
			MimeType: fileHeader.Header.Get("Content-Type"),
			Content:  src,
		}
	case errors.Is(err, http.ErrMissingFile):
		// reported by the service together with the other required fields
	default:
		response.Error(c, uploadBindError(err, "invalid multipart body"))
		return
	}

	doc, err := h.service.Upload(c.Request.Context(), claims, file, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

func uploadBindError(err error, message string) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return appErrors.Clone(appErrors.ErrFileTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// Approve godoc
// @Summary Approve a pending document
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /documents/{id}/approve [put]
func (h *DocumentHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	doc, err := h.service.Approve(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, doc)
}

// Reject godoc
// @Summary Reject a pending document
// @Tags Documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Document ID"
// @Param payload body dto.RejectDocumentRequest false "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /documents/{id}/reject [put]
func (h *DocumentHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RejectDocumentRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reject payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "rejectionReason must be at most 1000 characters"))
		return
	}
	doc, err := h.service.Reject(c.Request.Context(), claims, c.Param("id"), req.RejectionReason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, doc)
}

// Delete godoc
// @Summary Delete a document
// @Tags Documents
// @Security BearerAuth
// @Param id path string true "Document ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Download godoc
// @Summary Download the stored file
// @Tags Documents
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Document ID"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /documents/{id}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Download(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveDownload(c, result)
}

// Link godoc
// @Summary Issue a signed download link
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/link [get]
func (h *DocumentHandler) Link(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	link, err := h.service.CreateLink(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, link)
}

// Shared godoc
// @Summary Download through a signed link
// @Tags Documents
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /documents/shared/{token} [get]
func (h *DocumentHandler) Shared(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.OpenShared(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	serveDownload(c, result)
}

// Export godoc
// @Summary Export the document register (HR)
// @Tags Documents
// @Produce text/csv,application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Param employeeId query string false "Owner filter"
// @Param status query string false "Status filter"
// @Success 200 {file} binary
// @Router /documents/export [get]
func (h *DocumentHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query, err := parseDocumentQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	out, err := h.service.Export(c.Request.Context(), claims, query, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", attachment(out.FileName))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, out.ContentType, out.Content)
}

func serveDownload(c *gin.Context, result *service.DocumentDownload) {
	defer result.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", attachment(result.FileName))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, result.MimeType, result.File, nil)
}

func attachment(fileName string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": fileName}); v != "" {
		return v
	}
	return "attachment"
}

func parseDocumentQuery(c *gin.Context) (dto.DocumentQuery, error) {
	query := dto.DocumentQuery{
		EmployeeID: strings.TrimSpace(c.Query("employeeId")),
		Status:     models.DocumentStatus(strings.TrimSpace(c.Query("status"))),
	}
	var err error
	if query.Limit, err = intQuery(c, "limit"); err != nil {
		return query, err
	}
	if query.Offset, err = intQuery(c, "offset"); err != nil {
		return query, err
	}
	return query, nil
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be a non-negative integer", key))
	}
	return v, nil
}
