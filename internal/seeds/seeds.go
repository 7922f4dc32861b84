// Package seeds provisions tenants, pre-assigned employee roles and
// standalone accounts from a YAML file. Running it twice is harmless.
package seeds

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/edduval373/aisentinel-sub002/internal/auth"
	"github.com/edduval373/aisentinel-sub002/internal/roles"
	"github.com/edduval373/aisentinel-sub002/internal/utils"
)

type File struct {
	Companies []CompanySeed `yaml:"companies"`
	Users     []UserSeed    `yaml:"users"`
}

type CompanySeed struct {
	Name      string         `yaml:"name"`
	Domains   []string       `yaml:"domains"`
	Employees []EmployeeSeed `yaml:"employees"`
}

type EmployeeSeed struct {
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
}

// UserSeed creates an account directly, for operators who sign in before any
// tenant exists (super-users, developers).
type UserSeed struct {
	Email     string `yaml:"email"`
	Role      string `yaml:"role"`
	Developer bool   `yaml:"developer"`
	Company   string `yaml:"company"`
}

func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks names, addresses and role labels before anything is written.
func (f *File) Validate() error {
	var errs []error
	names := map[string]bool{}
	for _, c := range f.Companies {
		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, errors.New("company without a name"))
			continue
		}
		names[c.Name] = true
		if len(c.Domains) == 0 {
			errs = append(errs, fmt.Errorf("company %q: no domains", c.Name))
		}
		for _, e := range c.Employees {
			errs = append(errs, checkAccount("employee", e.Email, e.Role))
		}
	}
	for _, u := range f.Users {
		errs = append(errs, checkAccount("user", u.Email, u.Role))
		if u.Company != "" && !names[u.Company] {
			errs = append(errs, fmt.Errorf("user %s: unknown company %q", u.Email, u.Company))
		}
	}
	return errors.Join(errs...)
}

func checkAccount(kind, email, role string) error {
	if !utils.ValidEmail(utils.NormalizeEmail(email)) {
		return fmt.Errorf("%s %q: invalid email", kind, email)
	}
	if role == "" {
		return nil
	}
	if _, ok := roles.ParseLabel(role); !ok {
		return fmt.Errorf("%s %s: unknown role %q", kind, email, role)
	}
	return nil
}

func roleLevel(label string) roles.Level {
	if l, ok := roles.ParseLabel(label); ok {
		return l
	}
	return roles.User
}

// SeedAll writes f in one transaction. Existing companies are matched by
// name, existing employees and users by email, and are left untouched.
func SeedAll(d *gorm.DB, f *File, logger *zap.Logger) error {
	return d.Transaction(func(tx *gorm.DB) error {
		ids := map[string]uint{}

		for _, cs := range f.Companies {
			domains := make([]string, 0, len(cs.Domains))
			for _, dom := range cs.Domains {
				domains = append(domains, utils.NormalizeEmail(dom))
			}

			var c auth.Company
			res := tx.Where(auth.Company{Name: cs.Name}).
				Attrs(auth.Company{EmailDomains: domains}).
				FirstOrCreate(&c)
			if res.Error != nil {
				return fmt.Errorf("company %s: %w", cs.Name, res.Error)
			}
			ids[cs.Name] = c.ID
			if res.RowsAffected == 0 {
				logger.Info("company exists, skipping", zap.String("company", cs.Name))
			} else {
				logger.Info("company created", zap.String("company", cs.Name), zap.Strings("domains", domains))
			}

			for _, es := range cs.Employees {
				role := roleLevel(es.Role).Label()
				emp := auth.Employee{CompanyID: c.ID, Email: utils.NormalizeEmail(es.Email)}
				if err := tx.Where(emp).Attrs(auth.Employee{Role: role}).FirstOrCreate(&emp).Error; err != nil {
					return fmt.Errorf("employee %s: %w", es.Email, err)
				}
			}
		}

		for _, us := range f.Users {
			level := roleLevel(us.Role)
			u := auth.User{
				ID:          utils.GenerateUUID(),
				RoleLevel:   level,
				Role:        level.Label(),
				IsDeveloper: us.Developer,
			}
			if id, ok := ids[us.Company]; ok {
				u.CompanyID = &id
			}
			email := utils.NormalizeEmail(us.Email)
			res := tx.Where(auth.User{Email: email}).Attrs(u).FirstOrCreate(&u)
			if res.Error != nil {
				return fmt.Errorf("user %s: %w", us.Email, res.Error)
			}
			if res.RowsAffected == 0 {
				logger.Info("user exists, skipping", zap.String("email", email))
			}
		}

		logger.Info("seed complete",
			zap.Int("companies", len(f.Companies)),
			zap.Int("users", len(f.Users)))
		return nil
	})
}
