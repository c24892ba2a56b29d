package service

import (
	"strings"

	"github.com/noah-isme/hrms-api/internal/models"
	appErrors "github.com/noah-isme/hrms-api/pkg/errors"
)

// DocumentAction names an operation checked by DocumentPolicy.
type DocumentAction string

const (
	DocumentActionView    DocumentAction = "view"
	DocumentActionDelete  DocumentAction = "delete"
	DocumentActionApprove DocumentAction = "approve"
	DocumentActionReject  DocumentAction = "reject"
)

// DocumentPolicy decides which documents a caller may see or change. Owners
// see their own documents; HR sees every document.
type DocumentPolicy struct{}

// NewDocumentPolicy constructs the policy.
func NewDocumentPolicy() DocumentPolicy {
	return DocumentPolicy{}
}

// Scope turns a list request into a repository filter. Employees are always
// pinned to their own documents and targetEmployeeID is ignored for them.
func (DocumentPolicy) Scope(caller *models.JWTClaims, targetEmployeeID string) (models.DocumentFilter, error) {
	if caller == nil {
		return models.DocumentFilter{}, appErrors.ErrUnauthorized
	}
	if caller.IsHR() {
		return models.DocumentFilter{OwnerEmployeeID: strings.TrimSpace(targetEmployeeID)}, nil
	}
	return models.DocumentFilter{OwnerEmployeeID: caller.UserID}, nil
}

// CanView reports whether caller may see doc.
func (DocumentPolicy) CanView(caller *models.JWTClaims, doc *models.Document) bool {
	if caller == nil || doc == nil {
		return false
	}
	return caller.IsHR() || doc.OwnerEmployeeID == caller.UserID
}

// Authorize fails with FORBIDDEN unless caller may perform action on doc.
func (p DocumentPolicy) Authorize(caller *models.JWTClaims, doc *models.Document, action DocumentAction) error {
	if caller == nil {
		return appErrors.ErrUnauthorized
	}
	switch action {
	case DocumentActionView, DocumentActionDelete:
		if p.CanView(caller, doc) {
			return nil
		}
	case DocumentActionApprove, DocumentActionReject:
		if caller.IsHR() {
			return nil
		}
	}
	return appErrors.ErrForbidden
}
