package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/hrms-api/internal/dto"
	"github.com/noah-isme/hrms-api/internal/models"
	appErrors "github.com/noah-isme/hrms-api/pkg/errors"
)

type employeeRepository interface {
	List(ctx context.Context, filter models.EmployeeFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// EmployeeService manages the employee directory: the accounts that own
// documents and the HR accounts that review them. Every operation is HR only.
type EmployeeService struct {
	repo      employeeRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEmployeeService creates an EmployeeService.
func NewEmployeeService(repo employeeRepository, validate *validator.Validate, logger *zap.Logger) *EmployeeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EmployeeService{repo: repo, validator: validate, logger: logger}
}

// List returns one page of the directory with pagination metadata.
func (s *EmployeeService) List(ctx context.Context, caller *models.JWTClaims, filter models.EmployeeFilter) ([]models.User, *models.Pagination, error) {
	if err := requireHR(caller); err != nil {
		return nil, nil, err
	}
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "role must be EMPLOYEE or HR")
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list employees")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one employee.
func (s *EmployeeService) Get(ctx context.Context, caller *models.JWTClaims, id string) (*models.User, error) {
	if err := requireHR(caller); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// Create registers an account. Emails are unique regardless of case.
func (s *EmployeeService) Create(ctx context.Context, caller *models.JWTClaims, req dto.CreateEmployeeRequest, meta models.LoginRequest) (*models.User, error) {
	if err := requireHR(caller); err != nil {
		return nil, err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid employee payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
		Role:         req.Role,
		Active:       active,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		// a concurrent create can still trip the unique index
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create employee")
	}

	s.audit(ctx, caller, models.AuditActionEmployeeCreate, user.ID, meta, nil,
		map[string]interface{}{"email": user.Email, "role": user.Role, "active": user.Active})
	return user, nil
}

// Update changes name, role or active flag. HR cannot demote or deactivate
// their own account. Deactivation ends the employee's sessions.
func (s *EmployeeService) Update(ctx context.Context, caller *models.JWTClaims, id string, req dto.UpdateEmployeeRequest, meta models.LoginRequest) (*models.User, error) {
	if err := requireHR(caller); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid employee payload")
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	before := map[string]interface{}{"fullName": user.FullName, "role": user.Role, "active": user.Active}
	wasActive := user.Active

	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "fullName cannot be blank")
		}
		user.FullName = name
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if user.ID == caller.UserID && (user.Role != models.RoleHR || !user.Active) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot demote or deactivate your own account")
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update employee")
	}
	if wasActive && !user.Active {
		if err := s.repo.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke sessions of deactivated employee", zap.String("employee_id", user.ID), zap.Error(err))
		}
	}

	action := models.AuditActionEmployeeUpdate
	if wasActive && !user.Active {
		action = models.AuditActionEmployeeDeactivate
	}
	s.audit(ctx, caller, action, user.ID, meta, before,
		map[string]interface{}{"fullName": user.FullName, "role": user.Role, "active": user.Active})
	return user, nil
}

// Deactivate marks the employee inactive. Accounts are never hard deleted
// because documents keep referencing their owner.
func (s *EmployeeService) Deactivate(ctx context.Context, caller *models.JWTClaims, id string, meta models.LoginRequest) error {
	inactive := false
	_, err := s.Update(ctx, caller, id, dto.UpdateEmployeeRequest{Active: &inactive}, meta)
	return err
}

func (s *EmployeeService) load(ctx context.Context, id string) (*models.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "employee id is required")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
	}
	return user, nil
}

func (s *EmployeeService) audit(ctx context.Context, caller *models.JWTClaims, action, employeeID string, meta models.LoginRequest, oldValues, newValues map[string]interface{}) {
	entry := &models.AuditLog{
		UserID:     &caller.UserID,
		Action:     action,
		Resource:   "employee",
		ResourceID: &employeeID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record employee audit log", zap.String("action", action), zap.Error(err))
	}
}

func requireHR(caller *models.JWTClaims) error {
	if caller == nil {
		return appErrors.ErrUnauthorized
	}
	if !caller.IsHR() {
		return appErrors.ErrForbidden
	}
	return nil
}
