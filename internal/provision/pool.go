package provision

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shawn/vesta-provisioner/internal/calllog"
	"github.com/shawn/vesta-provisioner/internal/servers"
	"github.com/shawn/vesta-provisioner/internal/vesta"
)

// ErrUnknownServer is returned for a server id that is not configured.
var ErrUnknownServer = errors.New("unknown server")

// Dialer builds the Caller for a server.
type Dialer func(s servers.Server) vesta.Caller

// DialHTTP is the default Dialer.
func DialHTTP(s servers.Server) vesta.Caller {
	return vesta.New(s.Connection(), s.Options())
}

// Pool hands out one Provisioner per configured server.
type Pool struct {
	dir  *servers.Directory
	rec  calllog.Recorder
	opts Options
	dial Dialer

	mu    sync.Mutex
	cache map[string]*Provisioner
}

func NewPool(dir *servers.Directory, rec calllog.Recorder, opts Options, dial Dialer) *Pool {
	if dial == nil {
		dial = DialHTTP
	}
	return &Pool{dir: dir, rec: rec, opts: opts, dial: dial, cache: make(map[string]*Provisioner)}
}

// Select resolves serverID, falling back to the first server when it is empty.
func (p *Pool) Select(serverID string) (servers.Server, error) {
	if serverID == "" {
		s, ok := p.dir.First()
		if !ok {
			return servers.Server{}, fmt.Errorf("%w: no servers configured", ErrUnknownServer)
		}
		return s, nil
	}
	s, ok := p.dir.Get(serverID)
	if !ok {
		return servers.Server{}, fmt.Errorf("%w: %s", ErrUnknownServer, serverID)
	}
	return s, nil
}

// For returns the Provisioner bound to serverID.
func (p *Pool) For(serverID string) (*Provisioner, string, error) {
	s, err := p.Select(serverID)
	if err != nil {
		return nil, "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if prov, ok := p.cache[s.ID]; ok {
		return prov, s.ID, nil
	}
	prov := New(s.HostName, p.dial(s), p.rec, p.opts)
	p.cache[s.ID] = prov
	return prov, s.ID, nil
}

func (p *Pool) Servers() []servers.Server {
	return p.dir.All()
}
