package api

import (
	"time"
)

type Service struct {
	ServiceID   string    `json:"service_id"`
	ServerID    string    `json:"server_id"`
	Status      string    `json:"status"`
	Domain      string    `json:"domain"`
	Username    string    `json:"username"`
	Package     string    `json:"package"`
	ShellAccess bool      `json:"shell_access"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

type Server struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	HostName string `json:"host_name"`
	Port     int    `json:"port"`
	UseSSL   bool   `json:"use_ssl"`
}

// Field is a persisted value; Encrypted values arrive sealed.
type Field struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Encrypted bool   `json:"encrypted"`
}

type CreateServiceRequest struct {
	ServerID    string `json:"server_id,omitempty"`
	Domain      string `json:"domain"`
	Package     string `json:"package"`
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	ShellAccess bool   `json:"shell_access"`
	UseModule   *bool  `json:"use_module,omitempty"`
}

type CreateServiceResponse struct {
	Service Service `json:"service"`
	Fields  []Field `json:"fields"`
}

type UpdateServiceRequest struct {
	Domain      string `json:"domain,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	ShellAccess *bool  `json:"shell_access,omitempty"`
	UseModule   *bool  `json:"use_module,omitempty"`
}

// Usage is the panel's v-list-user record for one account
type Usage map[string]any
