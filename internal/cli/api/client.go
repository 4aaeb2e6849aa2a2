package api

import (
	"context"
)

// Client is the interface for interacting with the provisioner API
type Client interface {
	CreateService(ctx context.Context, req *CreateServiceRequest) (*CreateServiceResponse, error)
	ListServices(ctx context.Context, status string) ([]Service, error)
	GetService(ctx context.Context, id string) (*Service, error)
	UpdateService(ctx context.Context, id string, req *UpdateServiceRequest) (*Service, error)
	SuspendService(ctx context.Context, id string) (*Service, error)
	UnsuspendService(ctx context.Context, id string) (*Service, error)
	ChangePackage(ctx context.Context, id, pkg string) (*Service, error)
	CancelService(ctx context.Context, id string) error
	ServiceUsage(ctx context.Context, id string) (Usage, error)

	ListServers(ctx context.Context) ([]Server, error)
}
