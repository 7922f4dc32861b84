package session

import (
	"time"

	"github.com/edduval373/aisentinel-sub002/internal/roles"
	"github.com/edduval373/aisentinel-sub002/internal/utils"
)

// DefaultLifetime is how long a freshly minted session stays valid.
const DefaultLifetime = 30 * 24 * time.Hour

// Session is one authenticated browser or client instance. Email, CompanyID
// and RoleLevel are snapshots taken when the session was minted.
type Session struct {
	ID             uint         `gorm:"primaryKey" json:"-"`
	SessionToken   string       `gorm:"size:128;uniqueIndex;not null" json:"-"`
	UserID         string       `gorm:"index;not null" json:"userId"`
	Email          string       `gorm:"not null" json:"email"`
	CompanyID      *uint        `json:"companyId"`
	RoleLevel      roles.Level  `gorm:"not null;default:1" json:"roleLevel"`
	IsDeveloper    bool         `gorm:"not null;default:false" json:"-"`
	TestRoleLevel  *roles.Level `json:"testRoleLevel,omitempty"`
	ExpiresAt      time.Time    `gorm:"index;not null" json:"expiresAt"`
	LastAccessedAt time.Time    `gorm:"not null" json:"lastAccessedAt"`
	CreatedAt      time.Time    `json:"createdAt"`
}

func (Session) TableName() string { return "app_auth.user_sessions" }

// Expired reports whether the session is no longer valid at now. A session
// whose expiry equals now is expired.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Identity converts the session into the request-scoped identity.
func (s *Session) Identity() utils.Identity {
	return utils.Identity{
		SessionToken:  s.SessionToken,
		UserID:        s.UserID,
		Email:         s.Email,
		CompanyID:     s.CompanyID,
		RoleLevel:     s.RoleLevel,
		IsDeveloper:   s.IsDeveloper,
		TestRoleLevel: s.TestRoleLevel,
	}
}

// New builds an unsaved session with a fresh token.
func New(userID, email string, companyID *uint, level roles.Level, isDeveloper bool, now time.Time, lifetime time.Duration) (*Session, error) {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	token, err := utils.GenerateToken()
	if err != nil {
		return nil, err
	}
	return &Session{
		SessionToken:   token,
		UserID:         userID,
		Email:          email,
		CompanyID:      companyID,
		RoleLevel:      level,
		IsDeveloper:    isDeveloper,
		ExpiresAt:      now.Add(lifetime),
		LastAccessedAt: now,
		CreatedAt:      now,
	}, nil
}
