package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/edduval373/aisentinel-sub002/internal/session"
	"github.com/edduval373/aisentinel-sub002/internal/session/sessiontest"
)

type memState struct {
	users     map[string]User
	companies []Company
	employees []Employee
	tokens    map[string]EmailVerificationToken
}

func (s memState) clone() memState {
	c := memState{
		users:     make(map[string]User, len(s.users)),
		companies: append([]Company(nil), s.companies...),
		employees: append([]Employee(nil), s.employees...),
		tokens:    make(map[string]EmailVerificationToken, len(s.tokens)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return c
}

// memDirectory is a Directory whose transactions work on a copy of the state
// and only publish it, together with new sessions, when fn succeeds.
type memDirectory struct {
	mu       sync.Mutex
	state    memState
	sessions *sessiontest.Store
	nextID   uint

	// sessionErr makes CreateSession fail inside transactions.
	sessionErr error
	// profileErr makes GetProfile fail.
	profileErr error
}

func newMemDirectory(sessions *sessiontest.Store) *memDirectory {
	return &memDirectory{
		state:    memState{users: map[string]User{}, tokens: map[string]EmailVerificationToken{}},
		sessions: sessions,
	}
}

func (d *memDirectory) addCompany(name string, domains ...string) *Company {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	c := Company{ID: d.nextID, Name: name, EmailDomains: domains}
	d.state.companies = append(d.state.companies, c)
	return &c
}

func (d *memDirectory) addEmployee(companyID uint, email, role string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.state.employees = append(d.state.employees, Employee{ID: d.nextID, CompanyID: companyID, Email: email, Role: role})
}

func (d *memDirectory) addUser(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.users[u.Email] = u
}

func (d *memDirectory) addToken(token, email string, expiresAt time.Time, used bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.state.tokens[token] = EmailVerificationToken{ID: d.nextID, Token: token, Email: email, ExpiresAt: expiresAt, IsUsed: used}
}

func (d *memDirectory) token(token string) (EmailVerificationToken, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.state.tokens[token]
	return t, ok
}

func (d *memDirectory) userByEmail(email string) (User, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.state.users[email]
	return u, ok
}

func (d *memDirectory) InTx(ctx context.Context, fn func(tx DirectoryTx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx := &memTx{state: d.state.clone(), sessionErr: d.sessionErr}
	if err := fn(tx); err != nil {
		return err
	}
	d.state = tx.state
	for _, s := range tx.pending {
		if err := d.sessions.Put(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (d *memDirectory) CreateVerificationToken(_ context.Context, t *EmailVerificationToken) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.state.tokens[t.Token]; dup {
		return errors.New("duplicate token")
	}
	d.nextID++
	t.ID = d.nextID
	d.state.tokens[t.Token] = *t
	return nil
}

func (d *memDirectory) PurgeVerificationTokens(_ context.Context, now time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for k, t := range d.state.tokens {
		if t.IsUsed || !now.Before(t.ExpiresAt) {
			delete(d.state.tokens, k)
			n++
		}
	}
	return n, nil
}

func (d *memDirectory) GetUser(_ context.Context, id string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.state.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (d *memDirectory) GetProfile(ctx context.Context, id string) (*Profile, error) {
	if d.profileErr != nil {
		return nil, d.profileErr
	}
	u, err := d.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	p := &Profile{User: *u}
	if u.CompanyID != nil {
		d.mu.Lock()
		for _, c := range d.state.companies {
			if c.ID == *u.CompanyID {
				name := c.Name
				p.CompanyName = &name
			}
		}
		d.mu.Unlock()
	}
	return p, nil
}

type memTx struct {
	state      memState
	pending    []*session.Session
	sessionErr error
}

func (t *memTx) LockVerificationToken(_ context.Context, token string) (*EmailVerificationToken, error) {
	vt, ok := t.state.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &vt, nil
}

func (t *memTx) MarkTokenUsed(_ context.Context, id uint, at time.Time) error {
	for k, vt := range t.state.tokens {
		if vt.ID != id {
			continue
		}
		if vt.IsUsed {
			return ErrTokenAlreadyUsed
		}
		vt.IsUsed = true
		vt.UsedAt = &at
		t.state.tokens[k] = vt
		return nil
	}
	return ErrTokenAlreadyUsed
}

func (t *memTx) FindUserByEmail(_ context.Context, email string) (*User, error) {
	u, ok := t.state.users[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (t *memTx) CreateUser(_ context.Context, u *User) error {
	if _, dup := t.state.users[u.Email]; dup {
		return errors.New("duplicate email")
	}
	t.state.users[u.Email] = *u
	return nil
}

func (t *memTx) UpdateUser(_ context.Context, u *User) error {
	t.state.users[u.Email] = *u
	return nil
}

func (t *memTx) FindCompanyByDomain(_ context.Context, domain string) (*Company, error) {
	for _, c := range t.state.companies {
		for _, d := range c.EmailDomains {
			if d == domain {
				return &c, nil
			}
		}
	}
	return nil, nil
}

func (t *memTx) FindEmployee(_ context.Context, companyID uint, email string) (*Employee, error) {
	for _, e := range t.state.employees {
		if e.CompanyID == companyID && strings.EqualFold(e.Email, email) {
			return &e, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateSession(_ context.Context, s *session.Session) error {
	if t.sessionErr != nil {
		return t.sessionErr
	}
	t.pending = append(t.pending, s)
	return nil
}
