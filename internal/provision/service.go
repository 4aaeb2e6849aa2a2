package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shawn/vesta-provisioner/internal/validate"
	"github.com/shawn/vesta-provisioner/internal/vesta"
)

// Field keys returned by the lifecycle operations.
const (
	FieldDomain   = "domain"
	FieldUsername = "username"
	FieldPassword = "password"
)

// Field is one value the caller must persist. Encrypted values must be stored encrypted.
type Field struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Encrypted bool   `json:"encrypted"`
}

// Fields is the ordered result of a lifecycle operation.
type Fields []Field

// Get returns the value stored under key.
func (f Fields) Get(key string) (string, bool) {
	for _, fd := range f {
		if fd.Key == key {
			return fd.Value, true
		}
	}
	return "", false
}

func serviceFields(domain, username, password string) Fields {
	return Fields{
		{Key: FieldDomain, Value: domain},
		{Key: FieldUsername, Value: username},
		{Key: FieldPassword, Value: password, Encrypted: true},
	}
}

// Contact is the account owner passed to v-add-user.
type Contact struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AddRequest describes a new hosting account.
type AddRequest struct {
	Domain      string
	Package     string
	Contact     Contact
	ShellAccess bool
	// UseModule false records credentials without touching the panel.
	UseModule bool
	// Username skips generation when set.
	Username string
}

// Service is what the caller persisted for an existing account.
type Service struct {
	Domain      string
	Username    string
	Password    string
	Package     string
	ShellAccess bool
}

// EditRequest changes an existing account. Empty strings and a nil
// ShellAccess keep the stored value.
type EditRequest struct {
	Domain      string
	Username    string
	Password    string
	ShellAccess *bool
	UseModule   bool
}

// AddService creates the account, attaches its domain and optionally enables
// shell access. Inputs are validated before any command is sent.
func (p *Provisioner) AddService(ctx context.Context, req AddRequest) (Fields, error) {
	errs := fieldErrors{}
	errs.check(FieldDomain, validate.Domain(req.Domain))
	errs.check("package", validate.Required(req.Package))
	if req.Username != "" {
		errs.check(FieldUsername, validUsername(req.Username))
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	password := GeneratePassword(p.rand, p.opts.PasswordMinLength, p.opts.PasswordMaxLength)
	username := req.Username
	if username == "" {
		if !req.UseModule {
			username = BaseUsername(p.rand, req.Domain)
		} else {
			var err error
			if username, err = p.GenerateUsername(ctx, req.Domain); err != nil {
				return nil, fmt.Errorf("generate username: %w", err)
			}
		}
	}
	fields := serviceFields(req.Domain, username, password)
	if !req.UseModule {
		return fields, nil
	}

	err := p.CreateAccount(ctx, username, password, req.Contact.Email, req.Package, req.Contact.FirstName, req.Contact.LastName)
	if err != nil {
		return nil, err
	}
	completed := []string{vesta.CmdAddUser}

	if err := p.AddDomain(ctx, username, req.Domain); err != nil {
		return nil, p.partial(ctx, username, completed, err)
	}
	completed = append(completed, vesta.CmdAddDomain)

	if req.ShellAccess {
		if err := p.SetShellAccess(ctx, username, true); err != nil {
			return nil, p.partial(ctx, username, completed, err)
		}
	}
	slog.Info("service provisioned", "host", p.host, "username", username, "domain", req.Domain)
	return fields, nil
}

func (p *Provisioner) partial(ctx context.Context, username string, completed []string, err error) error {
	pe := &PartialError{Username: username, Completed: completed, Err: err}
	if !p.opts.RollbackOnFailure {
		slog.Warn("service partially provisioned, manual cleanup required",
			"host", p.host, "username", username, "completed", completed, "err", err)
		return pe
	}
	if rbErr := p.DeleteAccount(ctx, username); rbErr != nil {
		pe.RollbackErr = rbErr
		slog.Error("rollback failed", "host", p.host, "username", username, "err", rbErr)
	} else {
		pe.RolledBack = true
		slog.Info("rolled back partial service", "host", p.host, "username", username)
	}
	return pe
}

// EditService applies a password change and a shell access transition.
// Unchanged values issue no commands.
func (p *Provisioner) EditService(ctx context.Context, current Service, req EditRequest) (Fields, error) {
	domain := fallback(req.Domain, current.Domain)
	username := fallback(req.Username, current.Username)
	password := fallback(req.Password, current.Password)
	shell := current.ShellAccess
	if req.ShellAccess != nil {
		shell = *req.ShellAccess
	}

	errs := fieldErrors{}
	if req.Domain != "" {
		errs.check(FieldDomain, validate.Domain(req.Domain))
	}
	errs.check(FieldUsername, validate.Required(username))
	if req.Password != "" {
		errs.check(FieldPassword, validate.Password(req.Password))
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	if req.UseModule {
		if password != current.Password {
			if err := p.ChangePassword(ctx, username, password); err != nil {
				return nil, err
			}
		}
		if shell != current.ShellAccess {
			if err := p.SetShellAccess(ctx, username, shell); err != nil {
				return nil, err
			}
		}
	}
	return serviceFields(domain, username, password), nil
}

func (p *Provisioner) SuspendService(ctx context.Context, username string) error {
	return p.SuspendAccount(ctx, username)
}

func (p *Provisioner) UnsuspendService(ctx context.Context, username string) error {
	return p.UnsuspendAccount(ctx, username)
}

// CancelService deletes the account and everything it owns on the panel.
func (p *Provisioner) CancelService(ctx context.Context, username string) error {
	return p.DeleteAccount(ctx, username)
}

func (p *Provisioner) ChangeServicePackage(ctx context.Context, username, packageName string) error {
	if err := validate.Required(packageName); err != nil {
		return &ValidationError{Fields: map[string]string{"package": err.Error()}}
	}
	return p.ChangePlan(ctx, username, packageName)
}

// ServiceUsage describes the account's resource usage.
func (p *Provisioner) ServiceUsage(ctx context.Context, username string) (vesta.Usage, error) {
	return p.GetUsage(ctx, username)
}

func validUsername(s string) error {
	if len(s) == 0 || len(s) > maxUsernameLength {
		return fmt.Errorf("must be 1 to %d characters", maxUsernameLength)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		isLetter := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		if !isLetter && !isDigit || (i == 0 && isDigit) {
			return fmt.Errorf("must be lowercase letters and digits, starting with a letter")
		}
	}
	return nil
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
