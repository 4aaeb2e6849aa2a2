package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockClient is an in-memory registry for testing
type MockClient struct {
	mu       sync.RWMutex
	services map[string]*ServiceRecord
}

func NewMock() *MockClient {
	return &MockClient{services: make(map[string]*ServiceRecord)}
}

func (m *MockClient) GetService(_ context.Context, serviceID string) (*ServiceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.services[serviceID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MockClient) CreateService(_ context.Context, record *ServiceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[record.ServiceID]; ok {
		return &ConditionalCheckFailed{ServiceID: record.ServiceID}
	}
	cp := *record
	m.services[record.ServiceID] = &cp
	return nil
}

func (m *MockClient) PutService(_ context.Context, record *ServiceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[record.ServiceID]; !ok {
		return ErrNotFound
	}
	record.UpdatedAt = time.Now().UTC()
	cp := *record
	m.services[record.ServiceID] = &cp
	return nil
}

func (m *MockClient) UpdateStatus(_ context.Context, serviceID string, status ServiceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.services[serviceID]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockClient) TransitionStatus(_ context.Context, serviceID string, from, to ServiceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.services[serviceID]
	if !ok || r.Status != from {
		return ErrStatusChanged
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockClient) UpdatePackage(_ context.Context, serviceID, pkg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.services[serviceID]
	if !ok {
		return ErrNotFound
	}
	r.Package = pkg
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockClient) ListAll(_ context.Context) ([]*ServiceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []*ServiceRecord
	for _, r := range m.services {
		cp := *r
		records = append(records, &cp)
	}
	sortByCreation(records)
	return records, nil
}

func (m *MockClient) ListByStatus(_ context.Context, status ServiceStatus) ([]*ServiceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*ServiceRecord
	for _, r := range m.services {
		if r.Status == status {
			cp := *r
			result = append(result, &cp)
		}
	}
	sortByCreation(result)
	return result, nil
}

func (m *MockClient) DeleteService(_ context.Context, serviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services, serviceID)
	return nil
}

func sortByCreation(records []*ServiceRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ServiceID < records[j].ServiceID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}

// ConditionalCheckFailed is returned when a conditional write fails
type ConditionalCheckFailed struct {
	ServiceID string
}

func (e *ConditionalCheckFailed) Error() string {
	return "service already exists: " + e.ServiceID
}
