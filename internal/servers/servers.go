// Package servers describes the control panels accounts can be placed on.
package servers

import (
	"errors"
	"fmt"
	"time"

	"github.com/shawn/vesta-provisioner/internal/validate"
	"github.com/shawn/vesta-provisioner/internal/vesta"
)

// Server is one configured panel.
type Server struct {
	ID        string        `mapstructure:"id" json:"id"`
	Name      string        `mapstructure:"name" json:"name"`
	HostName  string        `mapstructure:"host_name" json:"host_name"`
	Port      int           `mapstructure:"port" json:"port"`
	UserName  string        `mapstructure:"user_name" json:"-"`
	Password  string        `mapstructure:"password" json:"-"`
	UseSSL    bool          `mapstructure:"use_ssl" json:"use_ssl"`
	VerifyTLS bool          `mapstructure:"verify_tls" json:"verify_tls"`
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
	// Secret names a Kubernetes Secret holding the connection credentials.
	Secret string `mapstructure:"secret" json:"secret,omitempty"`
}

// Validate applies the row rules: name, host name, user name, port and password are required.
func (s Server) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("server name is required"))
	}
	if err := validate.HostName(s.HostName); err != nil {
		errs = append(errs, fmt.Errorf("host_name %q: %w", s.HostName, err))
	}
	if s.UserName == "" {
		errs = append(errs, errors.New("user name is required"))
	}
	if s.Port <= 0 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", s.Port))
	}
	if s.Password == "" {
		errs = append(errs, errors.New("password is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("server %s: %w", s.ID, errors.Join(errs...))
	}
	return nil
}

func (s Server) Connection() vesta.Connection {
	return vesta.Connection{
		Host:     s.HostName,
		Port:     s.Port,
		Username: s.UserName,
		Password: s.Password,
		UseSSL:   s.UseSSL,
	}
}

func (s Server) Options() vesta.Options {
	return vesta.Options{Timeout: s.Timeout, VerifyTLS: s.VerifyTLS}
}

// ParseUseSSL accepts only "true" and "false".
func ParseUseSSL(v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("use_ssl must be \"true\" or \"false\", got %q", v)
}

// Directory is the ordered set of configured servers.
type Directory struct {
	order []string
	byID  map[string]Server
}

// NewDirectory validates every server and indexes them by ID. A missing ID
// defaults to the host name.
func NewDirectory(list []Server) (*Directory, error) {
	d := &Directory{byID: make(map[string]Server, len(list))}
	for _, s := range list {
		if s.ID == "" {
			s.ID = s.HostName
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := d.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate server id %q", s.ID)
		}
		d.order = append(d.order, s.ID)
		d.byID[s.ID] = s
	}
	return d, nil
}

func (d *Directory) Get(id string) (Server, bool) {
	s, ok := d.byID[id]
	return s, ok
}

// First returns the first configured server.
func (d *Directory) First() (Server, bool) {
	if len(d.order) == 0 {
		return Server{}, false
	}
	return d.byID[d.order[0]], true
}

func (d *Directory) All() []Server {
	out := make([]Server, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.byID[id])
	}
	return out
}

func (d *Directory) Len() int { return len(d.order) }
