package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/hrms-api/internal/models"
	appErrors "github.com/noah-isme/hrms-api/pkg/errors"
)

// DocumentWorkflow is the approval state machine: Pending moves to Approved or
// Rejected exactly once and both outcomes are terminal.
type DocumentWorkflow struct{}

// NewDocumentWorkflow constructs the workflow.
func NewDocumentWorkflow() DocumentWorkflow {
	return DocumentWorkflow{}
}

// TargetStatus maps a review action to the status it produces.
func (DocumentWorkflow) TargetStatus(action DocumentAction) (models.DocumentStatus, error) {
	switch action {
	case DocumentActionApprove:
		return models.DocumentStatusApproved, nil
	case DocumentActionReject:
		return models.DocumentStatusRejected, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported review action %q", action))
	}
}

// Transition validates that doc may take action and builds the review to
// persist. The reason is kept only for rejections; an empty reason is valid.
func (w DocumentWorkflow) Transition(doc *models.Document, action DocumentAction, reviewerID, reason string, now time.Time) (models.DocumentReview, error) {
	target, err := w.TargetStatus(action)
	if err != nil {
		return models.DocumentReview{}, err
	}
	if doc.Status.IsTerminal() || !doc.Status.Valid() {
		return models.DocumentReview{}, InvalidTransition(doc.Status, action)
	}
	review := models.DocumentReview{
		DocumentID: doc.ID,
		Status:     target,
		ReviewedBy: reviewerID,
		ReviewedAt: now.UTC(),
	}
	if target == models.DocumentStatusRejected {
		trimmed := strings.TrimSpace(reason)
		review.RejectionReason = &trimmed
	}
	return review, nil
}

// InvalidTransition reports the current and requested state of a refused
// review.
func InvalidTransition(current models.DocumentStatus, action DocumentAction) error {
	return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("document is %s, cannot %s", current, action))
}
