// Package provision sequences panel commands into hosting-account lifecycle operations.
package provision

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shawn/vesta-provisioner/internal/calllog"
	"github.com/shawn/vesta-provisioner/internal/vesta"
)

// Options controls credential generation and failure handling.
type Options struct {
	// RollbackOnFailure deletes the account when a later create step fails.
	RollbackOnFailure bool
	// UsernameProbes is how many numbered alternatives are tried after the base name.
	UsernameProbes    int
	PasswordMinLength int
	PasswordMaxLength int
	// Rand overrides the randomness source; use a crypto-backed one for stronger passwords.
	Rand     Rand
	Reserver Reserver
}

func (o Options) withDefaults() Options {
	if o.UsernameProbes <= 0 {
		o.UsernameProbes = 9
	}
	if o.PasswordMinLength <= 0 {
		o.PasswordMinLength = 10
	}
	if o.PasswordMaxLength <= 0 {
		o.PasswordMaxLength = maxPasswordLength
	}
	return o
}

// Provisioner runs lifecycle operations against one panel.
type Provisioner struct {
	host string
	cmds *vesta.Commands
	rec  calllog.Recorder
	opts Options
	rand Rand
}

// New creates a Provisioner for the panel at host. rec may be nil.
func New(host string, caller vesta.Caller, rec calllog.Recorder, opts Options) *Provisioner {
	opts = opts.withDefaults()
	r := opts.Rand
	if r == nil {
		r = runtimeRand{}
	}
	return &Provisioner{
		host: host,
		cmds: vesta.NewCommands(caller),
		rec:  rec,
		opts: opts,
		rand: r,
	}
}

// Host returns the panel host the provisioner targets.
func (p *Provisioner) Host() string { return p.host }

func (p *Provisioner) CreateAccount(ctx context.Context, username, password, email, packageName, firstName, lastName string) error {
	_, err := p.exec(ctx, vesta.CmdAddUser, calllog.DirectionInput, func() (*vesta.Response, error) {
		return p.cmds.CreateUser(ctx, vesta.NewUser{
			Username:  username,
			Password:  password,
			Email:     email,
			Package:   packageName,
			FirstName: firstName,
			LastName:  lastName,
		})
	})
	return err
}

func (p *Provisioner) AddDomain(ctx context.Context, username, domain string) error {
	_, err := p.exec(ctx, vesta.CmdAddDomain, calllog.DirectionInput, func() (*vesta.Response, error) {
		return p.cmds.AddDomain(ctx, username, domain)
	})
	return err
}

func (p *Provisioner) SetShellAccess(ctx context.Context, username string, enable bool) error {
	_, err := p.exec(ctx, vesta.CmdChangeUserShell, calllog.DirectionInput, func() (*vesta.Response, error) {
		return p.cmds.ChangeShell(ctx, username, enable)
	})
	return err
}

func (p *Provisioner) DeleteAccount(ctx context.Context, username string) error {
	_, err := p.exec(ctx, vesta.CmdDeleteUser, calllog.DirectionInput, func() (*vesta.Response, error) {
		return p.cmds.DeleteUser(ctx, username)
	})
	return err
}

func (p *Provisioner) SuspendAccount(ctx context.Context, username string) error {
	_, err := p.exec(ctx, vesta.CmdSuspendUser, calllog.DirectionInput, func() (*vesta.Response, error) {
		return p.cmds.SuspendUser(ctx, username)
	})
	return err
}

func (p *Provisioner) UnsuspendAccount(ctx context.Context, username string) error {
	_, err := p.exec(ctx, vesta.CmdUnsuspendUser, calllog.DirectionInput, func() (*vesta.Response, error) {
		return p.cmds.UnsuspendUser(ctx, username)
	})
	return err
}

func (p *Provisioner) ChangePassword(ctx context.Context, username, password string) error {
	_, err := p.exec(ctx, vesta.CmdChangeUserPassword, calllog.DirectionInput, func() (*vesta.Response, error) {
		return p.cmds.ChangePassword(ctx, username, password)
	})
	return err
}

func (p *Provisioner) ChangePlan(ctx context.Context, username, packageName string) error {
	_, err := p.exec(ctx, vesta.CmdChangeUserPackage, calllog.DirectionInput, func() (*vesta.Response, error) {
		return p.cmds.ChangePackage(ctx, username, packageName)
	})
	return err
}

// GetUsage returns the panel's counters for username. An empty or
// undecodable listing, or one without username, is a rejection.
func (p *Provisioner) GetUsage(ctx context.Context, username string) (vesta.Usage, error) {
	resp, err := p.exec(ctx, vesta.CmdListUser, calllog.DirectionOutput, func() (*vesta.Response, error) {
		return p.cmds.ListUser(ctx, username)
	})
	if err != nil {
		return nil, err
	}
	usage, ok := resp.Listing[username]
	if !ok {
		return nil, &CommandError{Host: p.host, Command: vesta.CmdListUser, Body: resp.Body, Err: ErrRejected}
	}
	if usage == nil {
		usage = vesta.Usage{}
	}
	return usage, nil
}

// exec runs one command, records it and folds the outcome into an error.
func (p *Provisioner) exec(ctx context.Context, command string, dir calllog.Direction, call func() (*vesta.Response, error)) (*vesta.Response, error) {
	resp, err := call()
	success := err == nil && resp != nil && resp.OK
	p.record(ctx, command, dir, resp, err, success)

	if err != nil {
		return nil, &CommandError{Host: p.host, Command: command, Err: err}
	}
	if !success {
		body := ""
		if resp != nil {
			body = resp.Body
		}
		return nil, &CommandError{Host: p.host, Command: command, Body: body, Err: ErrRejected}
	}
	return resp, nil
}

type callPayload struct {
	Body  string `json:"body,omitempty"`
	Error string `json:"error,omitempty"`
}

func (p *Provisioner) record(ctx context.Context, command string, dir calllog.Direction, resp *vesta.Response, callErr error, success bool) {
	if p.rec == nil {
		return
	}
	var payload callPayload
	if resp != nil {
		payload.Body = resp.Body
	}
	if callErr != nil {
		payload.Error = callErr.Error()
	}
	raw, _ := json.Marshal(payload)

	err := p.rec.Record(ctx, calllog.Entry{
		Target:    p.host,
		Command:   command,
		Label:     calllog.Label(p.host, command),
		Payload:   string(raw),
		Direction: dir,
		Success:   success,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("call log write failed", "host", p.host, "command", command, "err", err)
	}
}
