package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hrms-api/internal/dto"
	"github.com/noah-isme/hrms-api/internal/middleware"
	"github.com/noah-isme/hrms-api/internal/models"
	"github.com/noah-isme/hrms-api/internal/service"
	appErrors "github.com/noah-isme/hrms-api/pkg/errors"
)

type documentServiceStub struct {
	listQuery    dto.DocumentQuery
	listCached   bool
	uploadMeta   dto.UploadDocumentRequest
	uploadFile   service.FileDescriptor
	uploadBody   []byte
	rejectReason string
	exportFormat string
	sharedToken  string
	download     *service.DocumentDownload
	err          error
}

func (s *documentServiceStub) Types() []models.DocumentTypeGroup { return models.DocumentCatalog() }

func (s *documentServiceStub) List(ctx context.Context, caller *models.JWTClaims, query dto.DocumentQuery) ([]models.Document, bool, error) {
	s.listQuery = query
	if s.err != nil {
		return nil, false, s.err
	}
	return []models.Document{{ID: "doc-1", OwnerEmployeeID: "emp-1", Status: models.DocumentStatusPending}}, s.listCached, nil
}

func (s *documentServiceStub) ListMine(ctx context.Context, caller *models.JWTClaims) ([]models.Document, bool, error) {
	return []models.Document{{ID: "doc-1", OwnerEmployeeID: caller.UserID}}, false, s.err
}

func (s *documentServiceStub) Get(ctx context.Context, caller *models.JWTClaims, id string) (*models.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Document{ID: id, FileReference: "emp-1/secret.pdf"}, nil
}

func (s *documentServiceStub) Upload(ctx context.Context, caller *models.JWTClaims, file service.FileDescriptor, meta dto.UploadDocumentRequest) (*models.Document, error) {
	s.uploadMeta = meta
	s.uploadFile = file
	if file.Content != nil {
		s.uploadBody, _ = io.ReadAll(file.Content)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &models.Document{ID: "doc-9", OwnerEmployeeID: caller.UserID, DocumentType: meta.DocumentType, Status: models.DocumentStatusPending}, nil
}

func (s *documentServiceStub) Approve(ctx context.Context, caller *models.JWTClaims, id string) (*models.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Document{ID: id, Status: models.DocumentStatusApproved}, nil
}

func (s *documentServiceStub) Reject(ctx context.Context, caller *models.JWTClaims, id, reason string) (*models.Document, error) {
	s.rejectReason = reason
	if s.err != nil {
		return nil, s.err
	}
	return &models.Document{ID: id, Status: models.DocumentStatusRejected, RejectionReason: &reason}, nil
}

func (s *documentServiceStub) Delete(ctx context.Context, caller *models.JWTClaims, id string) error {
	return s.err
}

func (s *documentServiceStub) Download(ctx context.Context, caller *models.JWTClaims, id string) (*service.DocumentDownload, error) {
	return s.download, s.err
}

func (s *documentServiceStub) CreateLink(ctx context.Context, caller *models.JWTClaims, id string) (*dto.DocumentLinkResponse, error) {
	return &dto.DocumentLinkResponse{DocumentID: id, DownloadURL: "/api/documents/shared/tok", ExpiresAt: time.Now().Add(time.Hour)}, s.err
}

func (s *documentServiceStub) OpenShared(ctx context.Context, token string) (*service.DocumentDownload, error) {
	s.sharedToken = token
	return s.download, s.err
}

func (s *documentServiceStub) Export(ctx context.Context, caller *models.JWTClaims, query dto.DocumentQuery, format string) (*service.DocumentExport, error) {
	s.exportFormat = format
	if s.err != nil {
		return nil, s.err
	}
	return &service.DocumentExport{Content: []byte("Document ID\n"), ContentType: "text/csv", FileName: "documents_20260101_000000.csv"}, nil
}

func documentRouter(svc *documentServiceStub, claims *models.JWTClaims, bodyLimit int64) *gin.Engine {
	router := newTestRouter(claims)
	h := NewDocumentHandler(svc, nil)
	router.GET("/documents", h.List)
	router.GET("/documents/my", h.ListMine)
	router.GET("/documents/types", h.Types)
	router.GET("/documents/export", h.Export)
	router.POST("/documents/upload", middleware.BodyLimit(bodyLimit), h.Upload)
	router.GET("/documents/shared/:token", h.Shared)
	router.GET("/documents/:id", h.Get)
	router.PUT("/documents/:id/approve", h.Approve)
	router.PUT("/documents/:id/reject", h.Reject)
	router.DELETE("/documents/:id", h.Delete)
	router.GET("/documents/:id/download", h.Download)
	router.GET("/documents/:id/link", h.Link)
	return router
}

func multipartUpload(t *testing.T, fields map[string]string, fileName, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if content != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="`+DocumentUploadField+`"; filename="`+fileName+`"`)
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func tempDownload(t *testing.T, content string) *service.DocumentDownload {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	return &service.DocumentDownload{File: f, FileName: "pan card.pdf", MimeType: "application/pdf", SizeBytes: int64(len(content))}
}

func TestDocumentHandlerUpload(t *testing.T) {
	svc := &documentServiceStub{}
	router := documentRouter(svc, empClaims, 1<<20)

	content := []byte("%PDF-1.7\nbody")
	body, contentType := multipartUpload(t, map[string]string{
		"documentType":        "PAN Card",
		"documentName":        "PAN",
		"remarks":             "front",
		"uploadForEmployeeId": "emp-2",
	}, "pan.pdf", "application/pdf", content)

	rec := serve(router, http.MethodPost, "/documents/upload", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)

	assert.Equal(t, dto.UploadDocumentRequest{DocumentType: "PAN Card", DocumentName: "PAN", Remarks: "front", UploadForEmployeeID: "emp-2"}, svc.uploadMeta)
	assert.Equal(t, "pan.pdf", svc.uploadFile.FileName)
	assert.Equal(t, "application/pdf", svc.uploadFile.MimeType)
	assert.Equal(t, int64(len(content)), svc.uploadFile.Size)
	assert.Equal(t, content, svc.uploadBody)
}

func TestDocumentHandlerUploadWithoutFile(t *testing.T) {
	svc := &documentServiceStub{err: appErrors.Clone(appErrors.ErrMissingRequiredField, "document file is required")}
	router := documentRouter(svc, empClaims, 1<<20)

	body, contentType := multipartUpload(t, map[string]string{"documentType": "Resume", "documentName": "CV"}, "", "", nil)
	rec := serve(router, http.MethodPost, "/documents/upload", body, contentType)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.ErrMissingRequiredField.Code, errorCodeOf(t, rec))
	assert.Nil(t, svc.uploadFile.Content)
}

func TestDocumentHandlerUploadBodyTooLarge(t *testing.T) {
	svc := &documentServiceStub{}
	router := documentRouter(svc, empClaims, 512)

	body, contentType := multipartUpload(t, map[string]string{"documentType": "Resume", "documentName": "CV"}, "cv.pdf", "application/pdf", bytes.Repeat([]byte{'a'}, 4096))
	rec := serve(router, http.MethodPost, "/documents/upload", body, contentType)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, appErrors.ErrFileTooLarge.Code, errorCodeOf(t, rec))
}

func TestDocumentHandlerListParsesQuery(t *testing.T) {
	svc := &documentServiceStub{listCached: true}
	router := documentRouter(svc, hrClaims, 0)

	rec := serve(router, http.MethodGet, "/documents?employeeId=emp-2&status=Pending&limit=10&offset=20", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.DocumentQuery{EmployeeID: "emp-2", Status: models.DocumentStatusPending, Limit: 10, Offset: 20}, svc.listQuery)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Meta["cached"])
	assert.Contains(t, env.Meta, "processingTimeMs")

	rec = serve(router, http.MethodGet, "/documents?limit=-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCodeOf(t, rec))
}

func TestDocumentHandlerRequiresClaims(t *testing.T) {
	router := documentRouter(&documentServiceStub{}, nil, 0)
	for _, target := range []string{"/documents", "/documents/my", "/documents/doc-1", "/documents/doc-1/download", "/documents/export"} {
		rec := serve(router, http.MethodGet, target, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}

func TestDocumentHandlerReview(t *testing.T) {
	svc := &documentServiceStub{}
	router := documentRouter(svc, hrClaims, 0)

	rec := serve(router, http.MethodPut, "/documents/doc-1/reject", strings.NewReader(`{"rejectionReason":"blurred scan"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "blurred scan", svc.rejectReason)

	rec = serve(router, http.MethodPut, "/documents/doc-1/reject", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", svc.rejectReason)

	svc.rejectReason = "unset"
	rec = serveChunked(router, http.MethodPut, "/documents/doc-1/reject", strings.NewReader(""), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", svc.rejectReason)

	rec = serve(router, http.MethodPut, "/documents/doc-1/reject", strings.NewReader(`{"rejectionReason":`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	long := `{"rejectionReason":"` + strings.Repeat("x", 1001) + `"}`
	rec = serve(router, http.MethodPut, "/documents/doc-1/reject", strings.NewReader(long), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCodeOf(t, rec))

	svc.err = appErrors.Clone(appErrors.ErrInvalidTransition, "document is Rejected, cannot approve")
	rec = serve(router, http.MethodPut, "/documents/doc-1/approve", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, errorCodeOf(t, rec))
}

func TestDocumentHandlerDelete(t *testing.T) {
	svc := &documentServiceStub{}
	router := documentRouter(svc, empClaims, 0)

	rec := serve(router, http.MethodDelete, "/documents/doc-1", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	svc.err = appErrors.Clone(appErrors.ErrNotFound, "document not found")
	rec = serve(router, http.MethodDelete, "/documents/doc-1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.err = appErrors.ErrForbidden
	rec = serve(router, http.MethodDelete, "/documents/doc-1", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDocumentHandlerGetHidesFileReference(t *testing.T) {
	router := documentRouter(&documentServiceStub{}, empClaims, 0)
	rec := serve(router, http.MethodGet, "/documents/doc-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret.pdf")
}

func TestDocumentHandlerDownload(t *testing.T) {
	svc := &documentServiceStub{download: tempDownload(t, "%PDF-1.7")}
	router := documentRouter(svc, empClaims, 0)

	rec := serve(router, http.MethodGet, "/documents/doc-1/download", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.7", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="pan card.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestDocumentHandlerShared(t *testing.T) {
	svc := &documentServiceStub{download: tempDownload(t, "data")}
	router := documentRouter(svc, nil, 0)

	rec := serve(router, http.MethodGet, "/documents/shared/abc.def", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc.def", svc.sharedToken)

	svc.download = nil
	svc.err = appErrors.Clone(appErrors.ErrForbidden, "invalid or expired link")
	rec = serve(router, http.MethodGet, "/documents/shared/bad", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDocumentHandlerLinkAndTypes(t *testing.T) {
	router := documentRouter(&documentServiceStub{}, empClaims, 0)

	rec := serve(router, http.MethodGet, "/documents/doc-1/link", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/documents/shared/tok")

	rec = serve(router, http.MethodGet, "/documents/types", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Government ID")
}

func TestDocumentHandlerExport(t *testing.T) {
	svc := &documentServiceStub{}
	router := documentRouter(svc, hrClaims, 0)

	rec := serve(router, http.MethodGet, "/documents/export", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "csv", svc.exportFormat)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=documents_20260101_000000.csv`, rec.Header().Get("Content-Disposition"))

	serve(router, http.MethodGet, "/documents/export?format=pdf", nil, "")
	assert.Equal(t, "pdf", svc.exportFormat)
}
