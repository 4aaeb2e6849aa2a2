package api

import (
	"context"
)

// MockClient for testing
type MockClient struct {
	CreateServiceFunc    func(ctx context.Context, req *CreateServiceRequest) (*CreateServiceResponse, error)
	ListServicesFunc     func(ctx context.Context, status string) ([]Service, error)
	GetServiceFunc       func(ctx context.Context, id string) (*Service, error)
	UpdateServiceFunc    func(ctx context.Context, id string, req *UpdateServiceRequest) (*Service, error)
	SuspendServiceFunc   func(ctx context.Context, id string) (*Service, error)
	UnsuspendServiceFunc func(ctx context.Context, id string) (*Service, error)
	ChangePackageFunc    func(ctx context.Context, id, pkg string) (*Service, error)
	CancelServiceFunc    func(ctx context.Context, id string) error
	ServiceUsageFunc     func(ctx context.Context, id string) (Usage, error)
	ListServersFunc      func(ctx context.Context) ([]Server, error)
}

func (m *MockClient) CreateService(ctx context.Context, req *CreateServiceRequest) (*CreateServiceResponse, error) {
	if m.CreateServiceFunc != nil {
		return m.CreateServiceFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockClient) ListServices(ctx context.Context, status string) ([]Service, error) {
	if m.ListServicesFunc != nil {
		return m.ListServicesFunc(ctx, status)
	}
	return nil, nil
}

func (m *MockClient) GetService(ctx context.Context, id string) (*Service, error) {
	if m.GetServiceFunc != nil {
		return m.GetServiceFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockClient) UpdateService(ctx context.Context, id string, req *UpdateServiceRequest) (*Service, error) {
	if m.UpdateServiceFunc != nil {
		return m.UpdateServiceFunc(ctx, id, req)
	}
	return nil, nil
}

func (m *MockClient) SuspendService(ctx context.Context, id string) (*Service, error) {
	if m.SuspendServiceFunc != nil {
		return m.SuspendServiceFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockClient) UnsuspendService(ctx context.Context, id string) (*Service, error) {
	if m.UnsuspendServiceFunc != nil {
		return m.UnsuspendServiceFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockClient) ChangePackage(ctx context.Context, id, pkg string) (*Service, error) {
	if m.ChangePackageFunc != nil {
		return m.ChangePackageFunc(ctx, id, pkg)
	}
	return nil, nil
}

func (m *MockClient) CancelService(ctx context.Context, id string) error {
	if m.CancelServiceFunc != nil {
		return m.CancelServiceFunc(ctx, id)
	}
	return nil
}

func (m *MockClient) ServiceUsage(ctx context.Context, id string) (Usage, error) {
	if m.ServiceUsageFunc != nil {
		return m.ServiceUsageFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockClient) ListServers(ctx context.Context) ([]Server, error) {
	if m.ListServersFunc != nil {
		return m.ListServersFunc(ctx)
	}
	return nil, nil
}
