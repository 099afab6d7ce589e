// Package pgstore talks to the employee tables over a direct PostgreSQL
// connection. Unlike the REST repository it can derive the next employee
// code and insert the row inside one serialized transaction.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/modeer/staffprov/internal/platform/db"
	"github.com/modeer/staffprov/internal/provisioning"
)

const uniqueViolation = "23505"

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements provisioning.RecordStore and provisioning.AtomicRecordStore.
type Store struct {
	db    dbtx
	begin db.TxBeginner
}

// New wraps a pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, begin: pool}
}

func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", provisioning.ErrNotFound, what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s: %s (%s)", provisioning.ErrDuplicate, what, pgErr.Message, pgErr.ConstraintName)
	}
	return fmt.Errorf("pgstore: %s: %w", what, err)
}

const selectTypeByName = `
SELECT id::text, name, COALESCE(code_prefix, '')
FROM employee_types
WHERE name = $1
LIMIT 1`

// EmployeeTypeByName resolves a type by exact name.
func (s *Store) EmployeeTypeByName(ctx context.Context, name string) (provisioning.EmployeeType, error) {
	var t provisioning.EmployeeType
	err := s.db.QueryRow(ctx, selectTypeByName, name).Scan(&t.ID, &t.Name, &t.CodePrefix)
	if err != nil {
		return provisioning.EmployeeType{}, mapErr(err, fmt.Sprintf("employee type %q", name))
	}
	return t, nil
}

const selectLatestCode = `
SELECT employee_code
FROM employees
WHERE employee_type_id = $1
ORDER BY employee_code DESC
LIMIT 1`

// LatestEmployeeCode returns the highest code among employees of typeID.
func (s *Store) LatestEmployeeCode(ctx context.Context, typeID string) (string, bool, error) {
	return latestCode(ctx, s.db, typeID)
}

func latestCode(ctx context.Context, q dbtx, typeID string) (string, bool, error) {
	var code string
	err := q.QueryRow(ctx, selectLatestCode, typeID).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapErr(err, "latest employee code")
	}
	return code, true, nil
}

const insertEmployee = `
INSERT INTO employees (
    user_id, employee_type_id, employee_code, full_name, phone, email,
    base_salary, daily_salary, hire_date, date_of_birth, address, gender,
    qualification_level, qualification_name, is_active
) VALUES (
    $1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''),
    $7, $8, $9, NULLIF($10, '')::date, NULLIF($11, ''), NULLIF($12, ''),
    NULLIF($13, ''), NULLIF($14, ''), $15
)
RETURNING id::text`

// InsertEmployee creates the employee row and returns it with its id.
func (s *Store) InsertEmployee(ctx context.Context, e provisioning.Employee) (provisioning.Employee, error) {
	return insert(ctx, s.db, e)
}

func insert(ctx context.Context, q dbtx, e provisioning.Employee) (provisioning.Employee, error) {
	var hireDate *time.Time
	if !e.HireDate.IsZero() {
		d := e.HireDate
		hireDate = &d
	}
	err := q.QueryRow(ctx, insertEmployee,
		e.UserID, e.EmployeeTypeID, e.Code, e.FullName, e.Phone, e.Email,
		e.BaseSalary, e.DailySalary, hireDate, e.DateOfBirth, e.Address, e.Gender,
		e.QualificationLevel, e.QualificationName, e.IsActive,
	).Scan(&e.ID)
	if err != nil {
		return provisioning.Employee{}, mapErr(err, "insert employee")
	}
	return e, nil
}

// InsertWithNextCode derives the next code and inserts e while holding a
// transaction-scoped advisory lock keyed by the employee type. The
// transaction is ReadCommitted so the read after the lock sees the previous
// holder's committed row.
func (s *Store) InsertWithNextCode(ctx context.Context, e provisioning.Employee, scheme provisioning.CodeScheme) (provisioning.Employee, error) {
	var out provisioning.Employee
	err := db.WithTx(ctx, s.begin, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", lockKey(e.EmployeeTypeID)); err != nil {
			return mapErr(err, "advisory lock")
		}
		last, found, err := latestCode(ctx, tx, e.EmployeeTypeID)
		if err != nil {
			return err
		}
		code, err := scheme.Next(last, found)
		if err != nil {
			return err
		}
		e.Code = code
		out, err = insert(ctx, tx, e)
		return err
	})
	if err != nil {
		return provisioning.Employee{}, err
	}
	return out, nil
}

func lockKey(typeID string) string {
	return "employee_code:" + typeID
}

const selectEmployeeByUser = `
SELECT id::text, employee_type_id::text, employee_code, full_name
FROM employees
WHERE user_id = $1
LIMIT 1`

// EmployeeByUserID returns the employee bound to an identity.
func (s *Store) EmployeeByUserID(ctx context.Context, userID string) (provisioning.Employee, error) {
	e := provisioning.Employee{UserID: userID}
	err := s.db.QueryRow(ctx, selectEmployeeByUser, userID).Scan(&e.ID, &e.EmployeeTypeID, &e.Code, &e.FullName)
	if err != nil {
		return provisioning.Employee{}, mapErr(err, "employee for user "+userID)
	}
	return e, nil
}

// RoleForType resolves the role name bound to an employee type.
func (s *Store) RoleForType(ctx context.Context, typeID string) (string, error) {
	var role string
	err := s.db.QueryRow(ctx, `SELECT role_name FROM employee_type_roles WHERE employee_type_id = $1 LIMIT 1`, typeID).Scan(&role)
	if err != nil {
		return "", mapErr(err, "role for employee type "+typeID)
	}
	if role == "" {
		return "", fmt.Errorf("%w: role for employee type %s", provisioning.ErrNotFound, typeID)
	}
	return role, nil
}

// AssignRole inserts the user_roles association row.
func (s *Store) AssignRole(ctx context.Context, a provisioning.RoleAssignment) error {
	_, err := s.db.Exec(ctx, `INSERT INTO user_roles (user_id, role_name) VALUES ($1, $2)`, a.UserID, a.RoleName)
	return mapErr(err, "assign role")
}

// CreateLeaveBalance inserts the yearly leave allowance.
func (s *Store) CreateLeaveBalance(ctx context.Context, b provisioning.LeaveBalance) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO leave_balance (
    employee_id, year,
    annual_leave_total, annual_leave_used,
    sick_leave_total, sick_leave_used,
    emergency_leave_total, emergency_leave_used
) VALUES ($1, $2, $3, 0, $4, 0, $5, 0)`,
		b.EmployeeID, b.Year, b.AnnualLeaveTotal, b.SickLeaveTotal, b.EmergencyLeaveTotal)
	return mapErr(err, "leave balance")
}

// CreateDocumentsRecord inserts the empty documents checklist.
func (s *Store) CreateDocumentsRecord(ctx context.Context, employeeID string) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO employee_documents (employee_id, documents_complete, documents_verified)
VALUES ($1, false, false)`, employeeID)
	return mapErr(err, "employee documents")
}

var (
	_ provisioning.RecordStore       = (*Store)(nil)
	_ provisioning.AtomicRecordStore = (*Store)(nil)
)
