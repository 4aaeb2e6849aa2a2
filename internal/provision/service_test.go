package provision_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shawn/vesta-provisioner/internal/calllog"
	"github.com/shawn/vesta-provisioner/internal/provision"
	"github.com/shawn/vesta-provisioner/internal/vesta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const host = "panel.example.com"

type memRecorder struct {
	mu      sync.Mutex
	entries []calllog.Entry
}

func (m *memRecorder) Record(_ context.Context, e calllog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func newProvisioner(m *vesta.MockCaller, opts provision.Options) (*provision.Provisioner, *memRecorder) {
	rec := &memRecorder{}
	return provision.New(host, m, rec, opts), rec
}

func addRequest() provision.AddRequest {
	return provision.AddRequest{
		Domain:    "example.com",
		Package:   "default",
		Contact:   provision.Contact{Email: "alice@example.com", FirstName: "Alice", LastName: "Liddell"},
		UseModule: true,
		Username:  "alice",
	}
}

func TestAddService_TwoCalls(t *testing.T) {
	m := vesta.NewMockCaller()
	p, rec := newProvisioner(m, provision.Options{})

	fields, err := p.AddService(context.Background(), addRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{vesta.CmdAddUser, vesta.CmdAddDomain}, m.Commands())

	domain, ok := fields.Get(provision.FieldDomain)
	require.True(t, ok)
	assert.Equal(t, "example.com", domain)
	username, _ := fields.Get(provision.FieldUsername)
	assert.Equal(t, "alice", username)
	password, ok := fields.Get(provision.FieldPassword)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(password), 10)
	assert.True(t, fields[2].Encrypted)
	assert.False(t, fields[0].Encrypted)

	calls := m.Calls()
	assert.Equal(t, []string{"alice", password, "alice@example.com", "default", "Alice", "Liddell"}, calls[0].Args)
	assert.Equal(t, []string{"alice", "example.com"}, calls[1].Args)

	require.Len(t, rec.entries, 2)
	assert.Equal(t, host+"|v-add-user", rec.entries[0].Label)
	assert.Equal(t, calllog.DirectionInput, rec.entries[0].Direction)
	assert.True(t, rec.entries[0].Success)
	assert.Equal(t, host, rec.entries[1].Target)
}

func TestAddService_ShellAccess(t *testing.T) {
	m := vesta.NewMockCaller()
	p, _ := newProvisioner(m, provision.Options{})
	req := addRequest()
	req.ShellAccess = true

	_, err := p.AddService(context.Background(), req)
	require.NoError(t, err)
	calls := m.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, vesta.RecordedCall{Command: vesta.CmdChangeUserShell, Args: []string{"alice", "bash"}}, calls[2])
}

func TestAddService_GeneratesUsername(t *testing.T) {
	m := vesta.NewMockCaller()
	p, _ := newProvisioner(m, provision.Options{})
	req := addRequest()
	req.Username = ""

	fields, err := p.AddService(context.Background(), req)
	require.NoError(t, err)
	username, _ := fields.Get(provision.FieldUsername)
	assert.Equal(t, "examplec", username)
	assert.Equal(t, []string{vesta.CmdListUser, vesta.CmdAddUser, vesta.CmdAddDomain}, m.Commands())
}

func TestAddService_CreateRejectedStops(t *testing.T) {
	for _, body := range []string{"Error: user exists", "", "ok"} {
		m := vesta.NewMockCaller().Respond(vesta.CmdAddUser, body)
		p, rec := newProvisioner(m, provision.Options{RollbackOnFailure: true})

		fields, err := p.AddService(context.Background(), addRequest())
		require.Error(t, err)
		assert.Nil(t, fields)
		assert.ErrorIs(t, err, provision.ErrAPIInternal)
		assert.ErrorIs(t, err, provision.ErrRejected)

		var ce *provision.CommandError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, vesta.CmdAddUser, ce.Command)
		assert.Equal(t, []string{vesta.CmdAddUser}, m.Commands(), "no further calls after v-add-user fails")
		require.Len(t, rec.entries, 1)
		assert.False(t, rec.entries[0].Success)
	}
}

func TestAddService_TransportError(t *testing.T) {
	m := vesta.NewMockCaller().Fail(vesta.CmdAddUser, errors.New("connection refused"))
	p, rec := newProvisioner(m, provision.Options{})

	_, err := p.AddService(context.Background(), addRequest())
	assert.ErrorIs(t, err, provision.ErrAPIInternal)
	var te *vesta.TransportError
	assert.True(t, errors.As(err, &te))
	require.Len(t, rec.entries, 1)
	assert.Contains(t, rec.entries[0].Payload, "connection refused")
}

func TestAddService_DomainFailureIsPartial(t *testing.T) {
	m := vesta.NewMockCaller().Respond(vesta.CmdAddDomain, "Error: domain exists")
	p, _ := newProvisioner(m, provision.Options{})

	_, err := p.AddService(context.Background(), addRequest())
	var pe *provision.PartialError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "alice", pe.Username)
	assert.Equal(t, []string{vesta.CmdAddUser}, pe.Completed)
	assert.False(t, pe.RolledBack)
	assert.ErrorIs(t, err, provision.ErrAPIInternal)
	assert.Equal(t, []string{vesta.CmdAddUser, vesta.CmdAddDomain}, m.Commands(), "no rollback by default")
}

func TestAddService_ShellFailureRollsBack(t *testing.T) {
	m := vesta.NewMockCaller().Respond(vesta.CmdChangeUserShell, "Error")
	p, _ := newProvisioner(m, provision.Options{RollbackOnFailure: true})
	req := addRequest()
	req.ShellAccess = true

	_, err := p.AddService(context.Background(), req)
	var pe *provision.PartialError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.RolledBack)
	assert.Equal(t, []string{vesta.CmdAddUser, vesta.CmdAddDomain}, pe.Completed)
	assert.Equal(t,
		[]string{vesta.CmdAddUser, vesta.CmdAddDomain, vesta.CmdChangeUserShell, vesta.CmdDeleteUser},
		m.Commands())
	assert.Contains(t, err.Error(), "rolled back")
}

func TestAddService_RollbackFailure(t *testing.T) {
	m := vesta.NewMockCaller().
		Respond(vesta.CmdAddDomain, "Error").
		Respond(vesta.CmdDeleteUser, "Error")
	p, _ := newProvisioner(m, provision.Options{RollbackOnFailure: true})

	_, err := p.AddService(context.Background(), addRequest())
	var pe *provision.PartialError
	require.True(t, errors.As(err, &pe))
	assert.False(t, pe.RolledBack)
	assert.Error(t, pe.RollbackErr)
}

func TestAddService_ValidationBeforeNetwork(t *testing.T) {
	cases := map[string]provision.AddRequest{
		"bad domain":   {Domain: "not a domain", Package: "default", UseModule: true},
		"test domain":  {Domain: "test.example.com", Package: "default", UseModule: true},
		"no package":   {Domain: "example.com", UseModule: true},
		"bad username": {Domain: "example.com", Package: "default", Username: "1Bad", UseModule: true},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			m := vesta.NewMockCaller()
			p, _ := newProvisioner(m, provision.Options{})
			_, err := p.AddService(context.Background(), req)
			var ve *provision.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.NotEmpty(t, ve.Fields)
			assert.ErrorIs(t, err, provision.ErrAPIInternal)
			assert.Empty(t, m.Calls())
		})
	}
}

func TestAddService_WithoutModule(t *testing.T) {
	m := vesta.NewMockCaller()
	p, _ := newProvisioner(m, provision.Options{})
	req := addRequest()
	req.UseModule = false
	req.Username = ""

	fields, err := p.AddService(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, fields, 3)
	assert.Empty(t, m.Calls())
}

func stored() provision.Service {
	return provision.Service{Domain: "example.com", Username: "alice", Password: "oldpassword", ShellAccess: false}
}

func TestEditService_NoChangesNoCalls(t *testing.T) {
	m := vesta.NewMockCaller()
	p, _ := newProvisioner(m, provision.Options{})
	off := false

	for _, req := range []provision.EditRequest{
		{UseModule: true},
		{Password: "oldpassword", ShellAccess: &off, UseModule: true},
	} {
		fields, err := p.EditService(context.Background(), stored(), req)
		require.NoError(t, err)
		pw, _ := fields.Get(provision.FieldPassword)
		assert.Equal(t, "oldpassword", pw)
	}
	assert.Empty(t, m.Calls())
}

func TestEditService_PasswordAndShell(t *testing.T) {
	m := vesta.NewMockCaller()
	p, _ := newProvisioner(m, provision.Options{})
	on := true

	fields, err := p.EditService(context.Background(), stored(), provision.EditRequest{
		Password: "newpassword", ShellAccess: &on, UseModule: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []vesta.RecordedCall{
		{Command: vesta.CmdChangeUserPassword, Args: []string{"alice", "newpassword"}},
		{Command: vesta.CmdChangeUserShell, Args: []string{"alice", "bash"}},
	}, m.Calls())
	pw, _ := fields.Get(provision.FieldPassword)
	assert.Equal(t, "newpassword", pw)
}

func TestEditService_DisableShell(t *testing.T) {
	m := vesta.NewMockCaller()
	p, _ := newProvisioner(m, provision.Options{})
	cur := stored()
	cur.ShellAccess = true
	off := false

	_, err := p.EditService(context.Background(), cur, provision.EditRequest{ShellAccess: &off, UseModule: true})
	require.NoError(t, err)
	assert.Equal(t, []vesta.RecordedCall{{Command: vesta.CmdChangeUserShell, Args: []string{"alice", "nologin"}}}, m.Calls())
}

func TestEditService_FirstFailureAborts(t *testing.T) {
	m := vesta.NewMockCaller().Respond(vesta.CmdChangeUserPassword, "Error")
	p, _ := newProvisioner(m, provision.Options{})
	on := true

	_, err := p.EditService(context.Background(), stored(), provision.EditRequest{
		Password: "newpassword", ShellAccess: &on, UseModule: true,
	})
	assert.ErrorIs(t, err, provision.ErrAPIInternal)
	assert.Equal(t, []string{vesta.CmdChangeUserPassword}, m.Commands())
}

func TestEditService_Validation(t *testing.T) {
	m := vesta.NewMockCaller()
	p, _ := newProvisioner(m, provision.Options{})

	_, err := p.EditService(context.Background(), stored(), provision.EditRequest{Password: "short", UseModule: true})
	var ve *provision.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, provision.FieldPassword)

	_, err = p.EditService(context.Background(), provision.Service{}, provision.EditRequest{UseModule: true})
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, provision.FieldUsername)

	_, err = p.EditService(context.Background(), stored(), provision.EditRequest{Domain: "testing.org"})
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, provision.FieldDomain)

	assert.Empty(t, m.Calls())
}

func TestEditService_WithoutModule(t *testing.T) {
	m := vesta.NewMockCaller()
	p, _ := newProvisioner(m, provision.Options{})

	fields, err := p.EditService(context.Background(), stored(), provision.EditRequest{Domain: "example.org", Password: "newpassword"})
	require.NoError(t, err)
	d, _ := fields.Get(provision.FieldDomain)
	assert.Equal(t, "example.org", d)
	assert.Empty(t, m.Calls())
}

func TestSingleCommandOperations(t *testing.T) {
	ctx := context.Background()
	m := vesta.NewMockCaller()
	p, rec := newProvisioner(m, provision.Options{})

	require.NoError(t, p.SuspendService(ctx, "alice"))
	require.NoError(t, p.UnsuspendService(ctx, "alice"))
	require.NoError(t, p.ChangeServicePackage(ctx, "alice", "gold"))
	require.NoError(t, p.CancelService(ctx, "alice"))

	assert.Equal(t, []vesta.RecordedCall{
		{Command: vesta.CmdSuspendUser, Args: []string{"alice"}},
		{Command: vesta.CmdUnsuspendUser, Args: []string{"alice"}},
		{Command: vesta.CmdChangeUserPackage, Args: []string{"alice", "gold"}},
		{Command: vesta.CmdDeleteUser, Args: []string{"alice"}},
	}, m.Calls())
	assert.Len(t, rec.entries, 4)
}

func TestSingleCommandOperations_Rejected(t *testing.T) {
	ctx := context.Background()
	m := vesta.NewMockCaller().
		Respond(vesta.CmdSuspendUser, "Error: 3").
		Respond(vesta.CmdUnsuspendUser, "").
		Respond(vesta.CmdDeleteUser, "OK ").
		Respond(vesta.CmdChangeUserPackage, "Error")
	p, _ := newProvisioner(m, provision.Options{})

	assert.ErrorIs(t, p.SuspendService(ctx, "alice"), provision.ErrRejected)
	assert.ErrorIs(t, p.UnsuspendService(ctx, "alice"), provision.ErrRejected)
	assert.ErrorIs(t, p.CancelService(ctx, "alice"), provision.ErrRejected)
	assert.ErrorIs(t, p.ChangeServicePackage(ctx, "alice", "gold"), provision.ErrRejected)
}

func TestChangeServicePackage_RequiresPackage(t *testing.T) {
	m := vesta.NewMockCaller()
	p, _ := newProvisioner(m, provision.Options{})
	var ve *provision.ValidationError
	assert.True(t, errors.As(p.ChangeServicePackage(context.Background(), "alice", ""), &ve))
	assert.Empty(t, m.Calls())
}

func TestGetUsage(t *testing.T) {
	m := vesta.NewMockCaller().Respond(vesta.CmdListUser, `{"alice":{"WEB_DOMAINS":"3"}}`)
	p, rec := newProvisioner(m, provision.Options{})

	usage, err := p.ServiceUsage(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "3", usage.String(vesta.FieldWebDomains))
	require.Len(t, rec.entries, 1)
	assert.Equal(t, calllog.DirectionOutput, rec.entries[0].Direction)
}

func TestGetUsage_Failures(t *testing.T) {
	for _, body := range []string{"{}", "", "Error", `{"bob":{"WEB_DOMAINS":"1"}}`} {
		m := vesta.NewMockCaller().Respond(vesta.CmdListUser, body)
		p, _ := newProvisioner(m, provision.Options{})
		_, err := p.GetUsage(context.Background(), "alice")
		assert.ErrorIs(t, err, provision.ErrRejected, "body %q", body)
	}
}

type brokenRecorder struct{}

func (brokenRecorder) Record(context.Context, calllog.Entry) error { return errors.New("db down") }

func TestRecorderFailureIsNotFatal(t *testing.T) {
	p := provision.New(host, vesta.NewMockCaller(), brokenRecorder{}, provision.Options{})
	assert.NoError(t, p.SuspendService(context.Background(), "alice"))
}
