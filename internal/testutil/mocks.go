package testutil

import (
	"context"
	"fmt"
	"sync"

	domainQueue "github.com/cassiomorais/posqueue/internal/domain/queue"
	"github.com/cassiomorais/posqueue/internal/infrastructure/transport"
	"github.com/cassiomorais/posqueue/internal/repository/memory"
)

// --- Store Mock ---

// MockStore is a memory store whose operations can be overridden per test.
type MockStore struct {
	*memory.Store

	mu       sync.Mutex
	putCalls int

	PutFunc          func(ctx context.Context, t *domainQueue.Transaction) error
	GetFunc          func(ctx context.Context, localID string) (*domainQueue.Transaction, error)
	GetAllFunc       func(ctx context.Context) ([]*domainQueue.Transaction, error)
	ListByStatusFunc func(ctx context.Context, statuses ...domainQueue.Status) ([]*domainQueue.Transaction, error)
	DeleteFunc       func(ctx context.Context, localID string) error
}

func NewMockStore() *MockStore {
	return &MockStore{Store: memory.NewStore()}
}

func (m *MockStore) Put(ctx context.Context, t *domainQueue.Transaction) error {
	m.mu.Lock()
	m.putCalls++
	m.mu.Unlock()
	if m.PutFunc != nil {
		return m.PutFunc(ctx, t)
	}
	return m.Store.Put(ctx, t)
}

func (m *MockStore) Get(ctx context.Context, localID string) (*domainQueue.Transaction, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, localID)
	}
	return m.Store.Get(ctx, localID)
}

func (m *MockStore) GetAll(ctx context.Context) ([]*domainQueue.Transaction, error) {
	if m.GetAllFunc != nil {
		return m.GetAllFunc(ctx)
	}
	return m.Store.GetAll(ctx)
}

func (m *MockStore) ListByStatus(ctx context.Context, statuses ...domainQueue.Status) ([]*domainQueue.Transaction, error) {
	if m.ListByStatusFunc != nil {
		return m.ListByStatusFunc(ctx, statuses...)
	}
	return m.Store.ListByStatus(ctx, statuses...)
}

func (m *MockStore) Delete(ctx context.Context, localID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, localID)
	}
	return m.Store.Delete(ctx, localID)
}

// PutCalls returns how many times Put was called.
func (m *MockStore) PutCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putCalls
}

// --- Submitter Mock ---

// MockSubmitter records every request. By default it accepts each one and
// answers with remote ids srv-1, srv-2, ...
type MockSubmitter struct {
	mu       sync.Mutex
	requests []transport.Request

	SubmitFunc func(ctx context.Context, req transport.Request) (*transport.Response, error)
}

func NewMockSubmitter() *MockSubmitter {
	return &MockSubmitter{}
}

func (m *MockSubmitter) Submit(ctx context.Context, req transport.Request) (*transport.Response, error) {
	m.mu.Lock()
	req.Payload = append([]byte(nil), req.Payload...)
	m.requests = append(m.requests, req)
	n := len(m.requests)
	m.mu.Unlock()

	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, req)
	}
	return &transport.Response{RemoteID: fmt.Sprintf("srv-%d", n), StatusCode: 201}, nil
}

func (m *MockSubmitter) Requests() []transport.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transport.Request(nil), m.requests...)
}

func (m *MockSubmitter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// --- Token Source Mock ---

type MockTokenSource struct {
	mu    sync.Mutex
	token string
	calls int

	TokenFunc func() (string, bool)
}

func NewMockTokenSource(token string) *MockTokenSource {
	return &MockTokenSource{token: token}
}

func (m *MockTokenSource) Token() (string, bool) {
	m.mu.Lock()
	m.calls++
	tok := m.token
	m.mu.Unlock()
	if m.TokenFunc != nil {
		return m.TokenFunc()
	}
	return tok, tok != ""
}

func (m *MockTokenSource) Set(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

func (m *MockTokenSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Lease Mock ---

type MockLease struct {
	mu       sync.Mutex
	held     bool
	extends  int
	releases int

	AcquireFunc func(ctx context.Context) (bool, error)
	ExtendFunc  func(ctx context.Context) error
}

func NewMockLease() *MockLease {
	return &MockLease{}
}

func (m *MockLease) Acquire(ctx context.Context) (bool, error) {
	if m.AcquireFunc != nil {
		ok, err := m.AcquireFunc(ctx)
		m.mu.Lock()
		m.held = ok && err == nil
		m.mu.Unlock()
		return ok, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held = true
	return true, nil
}

func (m *MockLease) Extend(ctx context.Context) error {
	m.mu.Lock()
	m.extends++
	m.mu.Unlock()
	if m.ExtendFunc != nil {
		return m.ExtendFunc(ctx)
	}
	return nil
}

func (m *MockLease) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		m.releases++
	}
	m.held = false
	return nil
}

func (m *MockLease) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

func (m *MockLease) Extends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extends
}

func (m *MockLease) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}
