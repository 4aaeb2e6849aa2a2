package vesta

import (
	"context"
	"fmt"
	"strconv"
)

// Panel command names.
const (
	CmdAddUser            = "v-add-user"
	CmdAddDomain          = "v-add-domain"
	CmdChangeUserShell    = "v-change-user-shell"
	CmdDeleteUser         = "v-delete-user"
	CmdSuspendUser        = "v-suspend-user"
	CmdUnsuspendUser      = "v-unsuspend-user"
	CmdChangeUserPassword = "v-change-user-password"
	CmdChangeUserPackage  = "v-change-user-package"
	CmdListUser           = "v-list-user"
)

// Shell names accepted by v-change-user-shell.
const (
	ShellEnabled  = "bash"
	ShellDisabled = "nologin"
)

// Usage fields reported by v-list-user.
const (
	FieldWebDomains   = "WEB_DOMAINS"
	FieldWebAliases   = "WEB_ALIASES"
	FieldDNSDomains   = "DNS_DOMAINS"
	FieldDNSRecords   = "DNS_RECORDS"
	FieldMailDomains  = "MAIL_DOMAINS"
	FieldMailAccounts = "MAIL_ACCOUNTS"
	FieldDatabases    = "DATABASES"
	FieldCronJobs     = "CRON_JOBS"
	FieldDiskQuota    = "DISK_QUOTA"
	FieldBandwidth    = "BANDWIDTH"
	FieldBackups      = "BACKUPS"
)

// UsageFields lists the usage fields in display order.
var UsageFields = []string{
	FieldWebDomains, FieldWebAliases,
	FieldDNSDomains, FieldDNSRecords,
	FieldMailDomains, FieldMailAccounts,
	FieldDatabases, FieldCronJobs,
	FieldDiskQuota, FieldBandwidth, FieldBackups,
}

// Listing is the decoded v-list-user body, keyed by username.
type Listing map[string]Usage

// Usage holds one account's counters as the panel reports them.
type Usage map[string]any

// String renders field as text. Missing fields render as "".
func (u Usage) String(field string) string {
	switch v := u[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// NewUser carries the v-add-user arguments.
type NewUser struct {
	Username  string
	Password  string
	Email     string
	Package   string
	FirstName string
	LastName  string
}

// Commands exposes the panel commands as typed methods over a Caller.
type Commands struct {
	caller Caller
}

func NewCommands(caller Caller) *Commands {
	return &Commands{caller: caller}
}

func (c *Commands) CreateUser(ctx context.Context, u NewUser) (*Response, error) {
	return c.caller.Call(ctx, CmdAddUser, u.Username, u.Password, u.Email, u.Package, u.FirstName, u.LastName)
}

func (c *Commands) AddDomain(ctx context.Context, username, domain string) (*Response, error) {
	return c.caller.Call(ctx, CmdAddDomain, username, domain)
}

// ChangeShell switches the account between bash and nologin.
func (c *Commands) ChangeShell(ctx context.Context, username string, enable bool) (*Response, error) {
	shell := ShellDisabled
	if enable {
		shell = ShellEnabled
	}
	return c.caller.Call(ctx, CmdChangeUserShell, username, shell)
}

func (c *Commands) DeleteUser(ctx context.Context, username string) (*Response, error) {
	return c.caller.Call(ctx, CmdDeleteUser, username)
}

func (c *Commands) SuspendUser(ctx context.Context, username string) (*Response, error) {
	return c.caller.Call(ctx, CmdSuspendUser, username)
}

func (c *Commands) UnsuspendUser(ctx context.Context, username string) (*Response, error) {
	return c.caller.Call(ctx, CmdUnsuspendUser, username)
}

func (c *Commands) ChangePassword(ctx context.Context, username, password string) (*Response, error) {
	return c.caller.Call(ctx, CmdChangeUserPassword, username, password)
}

func (c *Commands) ChangePackage(ctx context.Context, username, pkg string) (*Response, error) {
	return c.caller.Call(ctx, CmdChangeUserPackage, username, pkg)
}

// ListUser fetches usage counters. Response.Listing is set only when OK.
func (c *Commands) ListUser(ctx context.Context, username string) (*Response, error) {
	return c.caller.Call(ctx, CmdListUser, username, "json")
}
