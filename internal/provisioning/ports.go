package provisioning

import (
	"context"
	"time"
)

// IdentityStore is the authentication side of the backend.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, p Profile) (Identity, error)
	GetIdentity(ctx context.Context, id string) (Identity, error)
	FindIdentityByEmail(ctx context.Context, email string) (Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
}

// RecordStore is the tabular side of the backend. Lookups that match no row
// return ErrNotFound; inserts rejected on a unique constraint return ErrDuplicate.
type RecordStore interface {
	EmployeeTypeByName(ctx context.Context, name string) (EmployeeType, error)
	LatestEmployeeCode(ctx context.Context, typeID string) (code string, found bool, err error)
	InsertEmployee(ctx context.Context, e Employee) (Employee, error)
	EmployeeByUserID(ctx context.Context, userID string) (Employee, error)
	RoleForType(ctx context.Context, typeID string) (string, error)
	AssignRole(ctx context.Context, a RoleAssignment) error
	CreateLeaveBalance(ctx context.Context, b LeaveBalance) error
	CreateDocumentsRecord(ctx context.Context, employeeID string) error
}

// AtomicRecordStore is implemented by stores that can derive the next code
// and insert the employee in one serialized transaction.
type AtomicRecordStore interface {
	InsertWithNextCode(ctx context.Context, e Employee, scheme CodeScheme) (Employee, error)
}

// RPCRecordStore is implemented by stores exposing the server-side
// create-employee function that resolves the type, derives the code and
// inserts the row in one call.
type RPCRecordStore interface {
	CreateEmployeeRPC(ctx context.Context, userID string, p Profile) error
}

// Locker serializes code derivation per employee type across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}

// Recorder receives per-profile outcomes for metrics.
type Recorder interface {
	ObserveProvision(status string, elapsed time.Duration)
}
