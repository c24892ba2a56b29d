package models

import "time"

// DocumentStatus captures the review state of an uploaded document. Approved
// and Rejected are terminal.
type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "Pending"
	DocumentStatusApproved DocumentStatus = "Approved"
	DocumentStatusRejected DocumentStatus = "Rejected"
)

// Valid reports whether the status is one of the known values.
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusApproved, DocumentStatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is defined from s.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusApproved || s == DocumentStatusRejected
}

// DocumentCategory groups document types for display.
type DocumentCategory string

const (
	DocumentCategoryEducation    DocumentCategory = "Education"
	DocumentCategoryGovernmentID DocumentCategory = "Government ID"
	DocumentCategoryPersonal     DocumentCategory = "Personal"
	DocumentCategoryProfessional DocumentCategory = "Professional"
	DocumentCategoryOther        DocumentCategory = "Other"
)

// DocumentTypeGroup lists the document types of one category.
type DocumentTypeGroup struct {
	Category DocumentCategory `json:"category"`
	Types    []string         `json:"types"`
}

var documentCatalog = []DocumentTypeGroup{
	{Category: DocumentCategoryEducation, Types: []string{"10th Marksheet", "12th Marksheet", "Graduation Certificate", "Post Graduation Certificate"}},
	{Category: DocumentCategoryGovernmentID, Types: []string{"Aadhaar Card", "PAN Card", "Passport", "Voter ID", "Driving License"}},
	{Category: DocumentCategoryPersonal, Types: []string{"Photograph", "Address Proof", "Bank Passbook"}},
	{Category: DocumentCategoryProfessional, Types: []string{"Resume", "Offer Letter", "Experience Letter", "Relieving Letter", "Salary Slip"}},
	{Category: DocumentCategoryOther, Types: []string{"Other"}},
}

// DocumentCatalog returns a copy of the fixed document type catalog.
func DocumentCatalog() []DocumentTypeGroup {
	out := make([]DocumentTypeGroup, len(documentCatalog))
	for i, group := range documentCatalog {
		out[i] = DocumentTypeGroup{Category: group.Category, Types: append([]string(nil), group.Types...)}
	}
	return out
}

// DocumentCategoryOf returns the category a document type belongs to.
func DocumentCategoryOf(documentType string) (DocumentCategory, bool) {
	for _, group := range documentCatalog {
		for _, t := range group.Types {
			if t == documentType {
				return group.Category, true
			}
		}
	}
	return "", false
}

// Document is one uploaded file and its review state.
type Document struct {
	ID              string         `db:"id" json:"id"`
	OwnerEmployeeID string         `db:"owner_employee_id" json:"ownerEmployeeId"`
	DocumentType    string         `db:"document_type" json:"documentType"`
	DocumentName    string         `db:"document_name" json:"documentName"`
	FileReference   string         `db:"file_reference" json:"-"`
	FileName        string         `db:"file_name" json:"fileName"`
	FileSize        int64          `db:"file_size" json:"fileSize"`
	MimeType        string         `db:"mime_type" json:"mimeType"`
	Remarks         *string        `db:"remarks" json:"remarks,omitempty"`
	Status          DocumentStatus `db:"status" json:"status"`
	RejectionReason *string        `db:"rejection_reason" json:"rejectionReason,omitempty"`
	UploadedBy      string         `db:"uploaded_by" json:"uploadedBy"`
	UploadDate      time.Time      `db:"upload_date" json:"uploadDate"`
	ReviewedBy      *string        `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedDate    *time.Time     `db:"reviewed_date" json:"reviewedDate,omitempty"`
}

// DocumentFilter constrains listing queries. An empty OwnerEmployeeID means
// all owners.
type DocumentFilter struct {
	OwnerEmployeeID string
	Status          DocumentStatus
	Limit           int
	Offset          int
}

// DocumentReview is the outcome of a review to be applied to a Pending
// document.
type DocumentReview struct {
	DocumentID      string
	Status          DocumentStatus
	RejectionReason *string
	ReviewedBy      string
	ReviewedAt      time.Time
}
