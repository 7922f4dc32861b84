package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/edduval373/aisentinel-sub002/internal/roles"
	"github.com/edduval373/aisentinel-sub002/internal/session"
	"github.com/edduval373/aisentinel-sub002/internal/utils"
)

// DefaultVerificationTTL is how long an emailed link stays valid, counted
// from creation.
const DefaultVerificationTTL = time.Hour

// Mailer delivers verification links.
type Mailer interface {
	SendVerification(ctx context.Context, email, link string) error
}

// LogMailer writes the link to the log instead of sending mail.
type LogMailer struct {
	Log *zap.Logger
}

func (m LogMailer) SendVerification(_ context.Context, email, link string) error {
	m.Log.Info("verification link issued", zap.String("email", email), zap.String("link", link))
	return nil
}

type BridgeConfig struct {
	SessionTTL      time.Duration
	VerificationTTL time.Duration
	VerifyURLBase   string
	DeveloperEmails []string
	DevLoginEnabled bool
}

// EmailBridge turns a proven email address into a session.
type EmailBridge struct {
	dir        Directory
	mailer     Mailer
	cfg        BridgeConfig
	developers map[string]struct{}
	log        *zap.Logger
	now        func() time.Time
}

func NewEmailBridge(dir Directory, mailer Mailer, cfg BridgeConfig, log *zap.Logger) *EmailBridge {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = session.DefaultLifetime
	}
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = DefaultVerificationTTL
	}
	devs := make(map[string]struct{}, len(cfg.DeveloperEmails))
	for _, e := range cfg.DeveloperEmails {
		if e = utils.NormalizeEmail(e); e != "" {
			devs[e] = struct{}{}
		}
	}
	return &EmailBridge{
		dir:        dir,
		mailer:     mailer,
		cfg:        cfg,
		developers: devs,
		log:        log.Named("email-bridge"),
		now:        time.Now,
	}
}

func (b *EmailBridge) isDeveloper(email string) bool {
	_, ok := b.developers[email]
	return ok
}

// IssueToken stores a fresh verification token for email and hands the link
// to the mailer.
func (b *EmailBridge) IssueToken(ctx context.Context, email string) (*EmailVerificationToken, error) {
	email = utils.NormalizeEmail(email)
	if !utils.ValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	token, err := utils.GenerateToken()
	if err != nil {
		return nil, err
	}
	now := b.now()
	vt := &EmailVerificationToken{
		Token:     token,
		Email:     email,
		ExpiresAt: now.Add(b.cfg.VerificationTTL),
		CreatedAt: now,
	}
	if err := b.dir.CreateVerificationToken(ctx, vt); err != nil {
		return nil, err
	}

	if err := b.mailer.SendVerification(ctx, email, b.link(token)); err != nil {
		return nil, fmt.Errorf("send verification: %w", err)
	}
	return vt, nil
}

func (b *EmailBridge) link(token string) string {
	base := b.cfg.VerifyURLBase
	if base == "" {
		base = "/auth/verify-email"
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// VerifyEmailToken consumes a verification token and returns a new session.
// Marking the token used, resolving the user and storing the session commit
// together or not at all.
func (b *EmailBridge) VerifyEmailToken(ctx context.Context, token string) (*session.Session, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}

	now := b.now()
	var sess *session.Session
	err := b.dir.InTx(ctx, func(tx DirectoryTx) error {
		vt, err := tx.LockVerificationToken(ctx, token)
		if err != nil {
			return err
		}
		if vt.IsUsed {
			return ErrTokenAlreadyUsed
		}
		if !now.Before(vt.ExpiresAt) {
			return ErrTokenExpired
		}
		if err := tx.MarkTokenUsed(ctx, vt.ID, now); err != nil {
			return err
		}

		sess, err = b.signIn(ctx, tx, vt.Email, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	b.log.Info("email verified", zap.String("user_id", sess.UserID))
	return sess, nil
}

// DevLogin signs email in without a verification token. It only works when
// enabled by configuration.
func (b *EmailBridge) DevLogin(ctx context.Context, email string) (*session.Session, error) {
	if !b.cfg.DevLoginEnabled {
		return nil, ErrDevLoginDisabled
	}
	email = utils.NormalizeEmail(email)
	if !utils.ValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	now := b.now()
	var sess *session.Session
	err := b.dir.InTx(ctx, func(tx DirectoryTx) error {
		var err error
		sess, err = b.signIn(ctx, tx, email, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	b.log.Warn("development login", zap.String("user_id", sess.UserID), zap.String("email", email))
	return sess, nil
}

func (b *EmailBridge) signIn(ctx context.Context, tx DirectoryTx, email string, now time.Time) (*session.Session, error) {
	user, err := b.resolveUser(ctx, tx, email)
	if err != nil {
		return nil, err
	}

	sess, err := session.New(user.ID, user.Email, user.CompanyID, user.RoleLevel, user.IsDeveloper, now, b.cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	if err := tx.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// resolveUser finds or creates the user for email. A user without a tenant
// is attached to one when its domain matches; an existing role is never
// lowered.
func (b *EmailBridge) resolveUser(ctx context.Context, tx DirectoryTx, email string) (*User, error) {
	email = utils.NormalizeEmail(email)
	dev := b.isDeveloper(email)

	user, err := tx.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		changed := false
		if user.CompanyID == nil {
			company, level, err := b.matchTenant(ctx, tx, email)
			if err != nil {
				return nil, err
			}
			if company != nil {
				user.CompanyID = &company.ID
				if level > user.RoleLevel {
					user.RoleLevel = level
				}
				changed = true
			}
		}
		if dev && !user.IsDeveloper {
			user.IsDeveloper = true
			changed = true
		}
		if user.Role != user.RoleLevel.Label() {
			changed = true
		}
		if changed {
			user.Role = user.RoleLevel.Label()
			if err := tx.UpdateUser(ctx, user); err != nil {
				return nil, err
			}
		}
		return user, nil

	case errors.Is(err, ErrUserNotFound):
		user = &User{
			ID:          utils.GenerateUUID(),
			Email:       email,
			RoleLevel:   roles.User,
			IsDeveloper: dev,
		}
		company, level, err := b.matchTenant(ctx, tx, email)
		if err != nil {
			return nil, err
		}
		if company != nil {
			user.CompanyID = &company.ID
			user.RoleLevel = level
		}
		user.Role = user.RoleLevel.Label()
		if err := tx.CreateUser(ctx, user); err != nil {
			return nil, err
		}
		b.log.Info("user created", zap.String("user_id", user.ID), zap.Stringer("role", user.RoleLevel))
		return user, nil

	default:
		return nil, err
	}
}

// matchTenant returns the company claiming email's domain and the level the
// address is provisioned with there. Unprovisioned addresses get User.
func (b *EmailBridge) matchTenant(ctx context.Context, tx DirectoryTx, email string) (*Company, roles.Level, error) {
	company, err := tx.FindCompanyByDomain(ctx, utils.EmailDomain(email))
	if err != nil || company == nil {
		return nil, roles.User, err
	}

	level := roles.User
	emp, err := tx.FindEmployee(ctx, company.ID, email)
	if err != nil {
		return nil, roles.User, err
	}
	if emp != nil {
		if l, ok := roles.ParseLabel(emp.Role); ok {
			level = l
		} else {
			b.log.Warn("unknown employee role", zap.String("role", emp.Role), zap.Uint("company_id", company.ID))
		}
	}
	return company, level, nil
}
