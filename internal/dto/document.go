package dto

import (
	"time"

	"github.com/noah-isme/hrms-api/internal/models"
)

// UploadDocumentRequest contains metadata submitted alongside a document file.
type UploadDocumentRequest struct {
	DocumentType        string `form:"documentType" json:"documentType"`
	DocumentName        string `form:"documentName" json:"documentName"`
	Remarks             string `form:"remarks" json:"remarks"`
	UploadForEmployeeID string `form:"uploadForEmployeeId" json:"uploadForEmployeeId"`
}

// RejectDocumentRequest carries the optional rejection reason.
type RejectDocumentRequest struct {
	RejectionReason string `json:"rejectionReason" validate:"max=1000"`
}

// DocumentQuery mirrors supported listing filters.
type DocumentQuery struct {
	EmployeeID string
	Status     models.DocumentStatus
	Limit      int
	Offset     int
}

// DocumentLinkResponse carries a signed, time-limited download URL.
type DocumentLinkResponse struct {
	DocumentID  string    `json:"documentId"`
	DownloadURL string    `json:"downloadUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
