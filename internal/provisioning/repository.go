package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modeer/staffprov/internal/platform/supabase"
)

// Repository provides Supabase backed identity and record storage.
type Repository struct {
	client *supabase.Client
}

// NewRepository constructs a repository.
func NewRepository(client *supabase.Client) *Repository {
	return &Repository{client: client}
}

// mapErr translates client sentinels into provisioning ones while keeping
// the upstream error text for diagnostics.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, supabase.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case errors.Is(err, supabase.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

// CreateIdentity registers a pre-confirmed identity for p.
func (r *Repository) CreateIdentity(ctx context.Context, p Profile) (Identity, error) {
	user, err := r.client.CreateUser(ctx, supabase.CreateUserParams{
		Email:        p.Email,
		Password:     p.Password,
		EmailConfirm: true,
		UserMetadata: map[string]any{"full_name": p.FullName},
	})
	if err != nil {
		return Identity{}, err
	}
	return Identity{ID: user.ID, Email: user.Email}, nil
}

// GetIdentity reads an identity by id.
func (r *Repository) GetIdentity(ctx context.Context, id string) (Identity, error) {
	user, err := r.client.GetUser(ctx, id)
	if err != nil {
		return Identity{}, mapErr(err)
	}
	return Identity{ID: user.ID, Email: user.Email}, nil
}

// FindIdentityByEmail looks an identity up by email.
func (r *Repository) FindIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	user, err := r.client.FindUserByEmail(ctx, email)
	if err != nil {
		return Identity{}, mapErr(err)
	}
	return Identity{ID: user.ID, Email: user.Email}, nil
}

// DeleteIdentity removes an identity.
func (r *Repository) DeleteIdentity(ctx context.Context, id string) error {
	return mapErr(r.client.DeleteUser(ctx, id))
}

type employeeTypeRow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CodePrefix string `json:"code_prefix"`
}

// EmployeeTypeByName resolves a type by exact name.
func (r *Repository) EmployeeTypeByName(ctx context.Context, name string) (EmployeeType, error) {
	var rows []employeeTypeRow
	q := supabase.NewQuery().Select("id,name,code_prefix").Eq("name", name).Limit(1)
	if err := r.client.Select(ctx, "employee_types", q, &rows); err != nil {
		return EmployeeType{}, mapErr(err)
	}
	if len(rows) == 0 {
		return EmployeeType{}, fmt.Errorf("%w: employee type %q", ErrNotFound, name)
	}
	return EmployeeType{ID: rows[0].ID, Name: rows[0].Name, CodePrefix: rows[0].CodePrefix}, nil
}

// LatestEmployeeCode returns the highest code among employees of typeID.
func (r *Repository) LatestEmployeeCode(ctx context.Context, typeID string) (string, bool, error) {
	var rows []struct {
		EmployeeCode string `json:"employee_code"`
	}
	q := supabase.NewQuery().
		Select("employee_code").
		Eq("employee_type_id", typeID).
		Order("employee_code", true).
		Limit(1)
	if err := r.client.Select(ctx, "employees", q, &rows); err != nil {
		return "", false, mapErr(err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].EmployeeCode, true, nil
}

type employeeRow struct {
	ID                 string      `json:"id,omitempty"`
	UserID             string      `json:"user_id"`
	EmployeeTypeID     string      `json:"employee_type_id"`
	EmployeeCode       string      `json:"employee_code"`
	FullName           string      `json:"full_name"`
	Phone              *string     `json:"phone"`
	Email              *string     `json:"email"`
	BaseSalary         json.Number `json:"base_salary"`
	DailySalary        json.Number `json:"daily_salary"`
	HireDate           string      `json:"hire_date,omitempty"`
	DateOfBirth        *string     `json:"date_of_birth"`
	Address            *string     `json:"address"`
	Gender             *string     `json:"gender"`
	QualificationLevel *string     `json:"qualification_level"`
	QualificationName  *string     `json:"qualification_name"`
	IsActive           bool        `json:"is_active"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toEmployeeRow(e Employee) employeeRow {
	row := employeeRow{
		UserID:             e.UserID,
		EmployeeTypeID:     e.EmployeeTypeID,
		EmployeeCode:       e.Code,
		FullName:           e.FullName,
		Phone:              optional(e.Phone),
		Email:              optional(e.Email),
		BaseSalary:         json.Number(e.BaseSalary.String()),
		DailySalary:        json.Number(e.DailySalary.StringFixed(2)),
		DateOfBirth:        optional(e.DateOfBirth),
		Address:            optional(e.Address),
		Gender:             optional(e.Gender),
		QualificationLevel: optional(e.QualificationLevel),
		QualificationName:  optional(e.QualificationName),
		IsActive:           e.IsActive,
	}
	if !e.HireDate.IsZero() {
		row.HireDate = e.HireDate.Format("2006-01-02")
	}
	return row
}

// InsertEmployee creates the employee row and returns it with its id.
func (r *Repository) InsertEmployee(ctx context.Context, e Employee) (Employee, error) {
	var rows []struct {
		ID           string `json:"id"`
		EmployeeCode string `json:"employee_code"`
	}
	if err := r.client.Insert(ctx, "employees", toEmployeeRow(e), &rows); err != nil {
		return Employee{}, mapErr(err)
	}
	if len(rows) == 0 {
		return Employee{}, fmt.Errorf("%w: insert employees returned no rows", supabase.ErrMalformedResponse)
	}
	e.ID = rows[0].ID
	e.Code = rows[0].EmployeeCode
	return e, nil
}

// EmployeeByUserID returns the employee bound to an identity.
func (r *Repository) EmployeeByUserID(ctx context.Context, userID string) (Employee, error) {
	var rows []struct {
		ID             string `json:"id"`
		EmployeeTypeID string `json:"employee_type_id"`
		EmployeeCode   string `json:"employee_code"`
		FullName       string `json:"full_name"`
	}
	q := supabase.NewQuery().Select("id,employee_type_id,employee_code,full_name").Eq("user_id", userID).Limit(1)
	if err := r.client.Select(ctx, "employees", q, &rows); err != nil {
		return Employee{}, mapErr(err)
	}
	if len(rows) == 0 {
		return Employee{}, fmt.Errorf("%w: employee for user %s", ErrNotFound, userID)
	}
	row := rows[0]
	return Employee{ID: row.ID, UserID: userID, EmployeeTypeID: row.EmployeeTypeID, Code: row.EmployeeCode, FullName: row.FullName}, nil
}

// RoleForType resolves the role name bound to an employee type.
func (r *Repository) RoleForType(ctx context.Context, typeID string) (string, error) {
	var rows []struct {
		RoleName string `json:"role_name"`
	}
	q := supabase.NewQuery().Select("role_name").Eq("employee_type_id", typeID).Limit(1)
	if err := r.client.Select(ctx, "employee_type_roles", q, &rows); err != nil {
		return "", mapErr(err)
	}
	if len(rows) == 0 || rows[0].RoleName == "" {
		return "", fmt.Errorf("%w: role for employee type %s", ErrNotFound, typeID)
	}
	return rows[0].RoleName, nil
}

// AssignRole inserts the user_roles association row.
func (r *Repository) AssignRole(ctx context.Context, a RoleAssignment) error {
	row := map[string]string{"user_id": a.UserID, "role_name": a.RoleName}
	return mapErr(r.client.Insert(ctx, "user_roles", row, nil))
}

// CreateLeaveBalance inserts the yearly leave allowance.
func (r *Repository) CreateLeaveBalance(ctx context.Context, b LeaveBalance) error {
	row := map[string]any{
		"employee_id":           b.EmployeeID,
		"year":                  b.Year,
		"annual_leave_total":    b.AnnualLeaveTotal,
		"annual_leave_used":     0,
		"sick_leave_total":      b.SickLeaveTotal,
		"sick_leave_used":       0,
		"emergency_leave_total": b.EmergencyLeaveTotal,
		"emergency_leave_used":  0,
	}
	return mapErr(r.client.Insert(ctx, "leave_balance", row, nil))
}

// CreateDocumentsRecord inserts the empty documents checklist.
func (r *Repository) CreateDocumentsRecord(ctx context.Context, employeeID string) error {
	row := map[string]any{
		"employee_id":        employeeID,
		"documents_complete": false,
		"documents_verified": false,
	}
	return mapErr(r.client.Insert(ctx, "employee_documents", row, nil))
}

// CreateEmployeeRPC calls create_employee_after_signup.
func (r *Repository) CreateEmployeeRPC(ctx context.Context, userID string, p Profile) error {
	params := map[string]any{
		"p_user_id":            userID,
		"p_employee_type_name": NormalizeTypeName(p.EmployeeType),
		"p_full_name":          p.FullName,
		"p_phone":              p.Phone,
		"p_email":              p.Email,
		"p_base_salary":        json.Number(p.BaseSalary.String()),
	}
	return mapErr(r.client.RPC(ctx, "create_employee_after_signup", params, nil))
}

var (
	_ IdentityStore  = (*Repository)(nil)
	_ RecordStore    = (*Repository)(nil)
	_ RPCRecordStore = (*Repository)(nil)
)
