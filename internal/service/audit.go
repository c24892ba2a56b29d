package service

import (
	"context"

	"github.com/noah-isme/hrms-api/internal/models"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}
