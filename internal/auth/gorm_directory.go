package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edduval373/aisentinel-sub002/internal/session"
)

// GormDirectory implements Directory on postgres. Sessions minted inside a
// transaction are written through sessions bound to the same transaction.
type GormDirectory struct {
	db       *gorm.DB
	sessions *session.GormStore
}

func NewGormDirectory(db *gorm.DB, sessions *session.GormStore) *GormDirectory {
	return &GormDirectory{db: db, sessions: sessions}
}

func (d *GormDirectory) InTx(ctx context.Context, fn func(tx DirectoryTx) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx, sessions: d.sessions.WithDB(tx)})
	})
}

func (d *GormDirectory) CreateVerificationToken(ctx context.Context, t *EmailVerificationToken) error {
	if err := d.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create verification token: %w", err)
	}
	return nil
}

func (d *GormDirectory) PurgeVerificationTokens(ctx context.Context, now time.Time) (int64, error) {
	res := d.db.WithContext(ctx).
		Where("is_used = ? OR expires_at <= ?", true, now).
		Delete(&EmailVerificationToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge verification tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (d *GormDirectory) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := d.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (d *GormDirectory) GetProfile(ctx context.Context, id string) (*Profile, error) {
	u, err := d.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	p := &Profile{User: *u}
	if u.CompanyID == nil {
		return p, nil
	}

	var c Company
	err = d.db.WithContext(ctx).Select("name").First(&c, *u.CompanyID).Error
	switch {
	case err == nil:
		p.CompanyName = &c.Name
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("get company: %w", err)
	}
	return p, nil
}

type gormTx struct {
	db       *gorm.DB
	sessions *session.GormStore
}

func (t *gormTx) LockVerificationToken(ctx context.Context, token string) (*EmailVerificationToken, error) {
	var vt EmailVerificationToken
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("token = ?", token).
		First(&vt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock verification token: %w", err)
	}
	return &vt, nil
}

func (t *gormTx) MarkTokenUsed(ctx context.Context, id uint, at time.Time) error {
	res := t.db.WithContext(ctx).Model(&EmailVerificationToken{}).
		Where("id = ? AND is_used = ?", id, false).
		Updates(map[string]any{"is_used": true, "used_at": at})
	if res.Error != nil {
		return fmt.Errorf("mark token used: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTokenAlreadyUsed
	}
	return nil
}

func (t *gormTx) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := t.db.WithContext(ctx).First(&u, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (t *gormTx) CreateUser(ctx context.Context, u *User) error {
	if err := t.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (t *gormTx) UpdateUser(ctx context.Context, u *User) error {
	err := t.db.WithContext(ctx).Model(u).Updates(map[string]any{
		"company_id":   u.CompanyID,
		"role_level":   int(u.RoleLevel),
		"role":         u.Role,
		"is_developer": u.IsDeveloper,
	}).Error
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (t *gormTx) FindCompanyByDomain(ctx context.Context, domain string) (*Company, error) {
	if domain == "" {
		return nil, nil
	}
	var c Company
	err := t.db.WithContext(ctx).Where("? = ANY(email_domains)", domain).Order("id").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find company by domain: %w", err)
	}
	return &c, nil
}

func (t *gormTx) FindEmployee(ctx context.Context, companyID uint, email string) (*Employee, error) {
	var e Employee
	err := t.db.WithContext(ctx).
		Where("company_id = ? AND lower(email) = ?", companyID, email).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find employee: %w", err)
	}
	return &e, nil
}

func (t *gormTx) CreateSession(ctx context.Context, s *session.Session) error {
	return t.sessions.Put(ctx, s)
}
