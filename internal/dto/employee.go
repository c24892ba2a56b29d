package dto

import "github.com/noah-isme/hrms-api/internal/models"

// CreateEmployeeRequest registers a new employee or HR account.
type CreateEmployeeRequest struct {
	Email    string          `json:"email" validate:"required,email,max=255"`
	FullName string          `json:"fullName" validate:"required,max=255"`
	Role     models.UserRole `json:"role" validate:"required,oneof=EMPLOYEE HR"`
	Password string          `json:"password" validate:"required,min=8,max=72"`
	Active   *bool           `json:"active"`
}

// UpdateEmployeeRequest changes profile, role or active flag. Omitted
// fields are left as they are.
type UpdateEmployeeRequest struct {
	FullName *string          `json:"fullName" validate:"omitempty,min=1,max=255"`
	Role     *models.UserRole `json:"role" validate:"omitempty,oneof=EMPLOYEE HR"`
	Active   *bool            `json:"active"`
}
