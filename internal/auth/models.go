package auth

import (
	"time"

	"github.com/lib/pq"

	"github.com/edduval373/aisentinel-sub002/internal/roles"
)

type User struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	Email       string      `gorm:"not null;uniqueIndex" json:"email"`
	FirstName   *string     `json:"firstName"`
	LastName    *string     `json:"lastName"`
	CompanyID   *uint       `gorm:"index" json:"companyId"`
	RoleLevel   roles.Level `gorm:"not null;default:1" json:"roleLevel"`
	Role        string      `gorm:"not null;default:'user'" json:"role"`
	IsDeveloper bool        `gorm:"not null;default:false" json:"isDeveloper"`
	CreatedAt   time.Time   `json:"-"`
	UpdatedAt   time.Time   `json:"-"`
}

// Company is a tenant. Users whose email domain appears in EmailDomains are
// attached to it on first sign-in.
type Company struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"not null" json:"name"`
	EmailDomains pq.StringArray `gorm:"type:text[]" json:"emailDomains"`
	CreatedAt    time.Time      `json:"-"`
}

// Employee is a pre-provisioned role assignment for an address at a company.
type Employee struct {
	ID        uint   `gorm:"primaryKey"`
	CompanyID uint   `gorm:"not null;uniqueIndex:idx_employee_company_email"`
	Email     string `gorm:"not null;uniqueIndex:idx_employee_company_email"`
	Role      string `gorm:"not null;default:'user'"`
	CreatedAt time.Time
}

type EmailVerificationToken struct {
	ID        uint      `gorm:"primaryKey"`
	Token     string    `gorm:"size:128;not null;uniqueIndex"`
	Email     string    `gorm:"not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	IsUsed    bool      `gorm:"not null;default:false"`
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (User) TableName() string                   { return "app_auth.users" }
func (Company) TableName() string                { return "app_auth.companies" }
func (Employee) TableName() string               { return "app_auth.employees" }
func (EmailVerificationToken) TableName() string { return "app_auth.email_verification_tokens" }

// Profile is a user joined with its company name, as reported by /auth/me.
type Profile struct {
	User
	CompanyName *string
}
