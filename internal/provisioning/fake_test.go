package provisioning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// memoryStore is an in-memory backend enforcing the same unique constraints
// as the real schema: one identity per email, one employee per user and per
// code, one role row per user and role.
type memoryStore struct {
	mu sync.Mutex

	identities map[string]Identity
	types      map[string]EmployeeType
	roles      map[string]string
	employees  []Employee
	userRoles  map[RoleAssignment]bool
	balances   []LeaveBalance
	documents  []string

	createIdentityErr error
	insertErr         error
	assignRoleErr     error
	leaveErr          error
	invisibleFor      int
	getCalls          int
	deleted           []string
	insertCalls       int
	typeLookups       int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		identities: map[string]Identity{},
		types:      map[string]EmployeeType{},
		roles:      map[string]string{},
		userRoles:  map[RoleAssignment]bool{},
	}
}

func (m *memoryStore) addType(id, name, prefix, role string) {
	m.types[name] = EmployeeType{ID: id, Name: name, CodePrefix: prefix}
	if role != "" {
		m.roles[id] = role
	}
}

func (m *memoryStore) CreateIdentity(ctx context.Context, p Profile) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createIdentityErr != nil {
		return Identity{}, m.createIdentityErr
	}
	for _, existing := range m.identities {
		if existing.Email == NormalizeEmail(p.Email) {
			return Identity{}, errors.New("status 422: email_exists")
		}
	}
	identity := Identity{ID: uuid.NewString(), Email: NormalizeEmail(p.Email)}
	m.identities[identity.ID] = identity
	return identity, nil
}

func (m *memoryStore) GetIdentity(ctx context.Context, id string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.invisibleFor > 0 {
		m.invisibleFor--
		return Identity{}, ErrNotFound
	}
	identity, ok := m.identities[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return identity, nil
}

func (m *memoryStore) FindIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.identities {
		if identity.Email == NormalizeEmail(email) {
			return identity, nil
		}
	}
	return Identity{}, ErrNotFound
}

func (m *memoryStore) DeleteIdentity(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.identities, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memoryStore) EmployeeTypeByName(ctx context.Context, name string) (EmployeeType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typeLookups++
	t, ok := m.types[name]
	if !ok {
		return EmployeeType{}, fmt.Errorf("%w: employee type %q", ErrNotFound, name)
	}
	return t, nil
}

func (m *memoryStore) LatestEmployeeCode(ctx context.Context, typeID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var codes []string
	for _, e := range m.employees {
		if e.EmployeeTypeID == typeID {
			codes = append(codes, e.Code)
		}
	}
	if len(codes) == 0 {
		return "", false, nil
	}
	sort.Strings(codes)
	return codes[len(codes)-1], true, nil
}

func (m *memoryStore) InsertEmployee(ctx context.Context, e Employee) (Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if m.insertErr != nil {
		return Employee{}, m.insertErr
	}
	for _, existing := range m.employees {
		if existing.UserID == e.UserID || existing.Code == e.Code {
			return Employee{}, fmt.Errorf("%w: 23505", ErrDuplicate)
		}
	}
	e.ID = uuid.NewString()
	m.employees = append(m.employees, e)
	return e, nil
}

func (m *memoryStore) EmployeeByUserID(ctx context.Context, userID string) (Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.employees {
		if e.UserID == userID {
			return e, nil
		}
	}
	return Employee{}, ErrNotFound
}

func (m *memoryStore) RoleForType(ctx context.Context, typeID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[typeID]
	if !ok {
		return "", ErrNotFound
	}
	return role, nil
}

func (m *memoryStore) AssignRole(ctx context.Context, a RoleAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assignRoleErr != nil {
		return m.assignRoleErr
	}
	if m.userRoles[a] {
		return fmt.Errorf("%w: user_roles", ErrDuplicate)
	}
	m.userRoles[a] = true
	return nil
}

func (m *memoryStore) CreateLeaveBalance(ctx context.Context, b LeaveBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leaveErr != nil {
		return m.leaveErr
	}
	m.balances = append(m.balances, b)
	return nil
}

func (m *memoryStore) CreateDocumentsRecord(ctx context.Context, employeeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, employeeID)
	return nil
}

func (m *memoryStore) employeesOfType(typeID string) []Employee {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Employee
	for _, e := range m.employees {
		if e.EmployeeTypeID == typeID {
			out = append(out, e)
		}
	}
	return out
}

type recordingRecorder struct {
	statuses []string
}

func (r *recordingRecorder) ObserveProvision(status string, elapsed time.Duration) {
	r.statuses = append(r.statuses, status)
}

type stubLocker struct {
	locked   []string
	released int
	err      error
}

func (l *stubLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.locked = append(l.locked, key)
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}
