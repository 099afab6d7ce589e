package provisioning

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// Profile is one roster entry. Email is the natural key across all steps.
type Profile struct {
	Email              string          `json:"email" yaml:"email" validate:"required,email"`
	Password           string          `json:"password" yaml:"password" validate:"required,min=6"`
	FullName           string          `json:"full_name" yaml:"full_name" validate:"required,max=200"`
	Phone              string          `json:"phone" yaml:"phone" validate:"omitempty,max=50"`
	EmployeeType       string          `json:"employee_type" yaml:"employee_type" validate:"required"`
	BaseSalary         decimal.Decimal `json:"base_salary" yaml:"base_salary"`
	DateOfBirth        string          `json:"date_of_birth,omitempty" yaml:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Address            string          `json:"address,omitempty" yaml:"address,omitempty"`
	Gender             string          `json:"gender,omitempty" yaml:"gender,omitempty" validate:"omitempty,oneof=male female"`
	QualificationLevel string          `json:"qualification_level,omitempty" yaml:"qualification_level,omitempty"`
	QualificationName  string          `json:"qualification_name,omitempty" yaml:"qualification_name,omitempty"`
}

// Identity is the authentication account created for a profile.
type Identity struct {
	ID    string
	Email string
}

// EmployeeType is read-only reference data resolved by name.
type EmployeeType struct {
	ID         string
	Name       string
	CodePrefix string
}

// Employee is the row inserted into the employees table.
type Employee struct {
	ID                 string
	UserID             string
	EmployeeTypeID     string
	Code               string
	FullName           string
	Phone              string
	Email              string
	BaseSalary         decimal.Decimal
	DailySalary        decimal.Decimal
	HireDate           time.Time
	DateOfBirth        string
	Address            string
	Gender             string
	QualificationLevel string
	QualificationName  string
	IsActive           bool
}

// RoleAssignment grants a named role to an identity.
type RoleAssignment struct {
	UserID   string
	RoleName string
}

// LeaveBalance is the yearly allowance row created with every new employee.
type LeaveBalance struct {
	EmployeeID          string
	Year                int
	AnnualLeaveTotal    int
	SickLeaveTotal      int
	EmergencyLeaveTotal int
}

// Default leave allowances for a newly hired employee.
const (
	DefaultAnnualLeave    = 21
	DefaultSickLeave      = 15
	DefaultEmergencyLeave = 7
)

// NewLeaveBalance builds the default allowance for employeeID in year.
func NewLeaveBalance(employeeID string, year int) LeaveBalance {
	return LeaveBalance{
		EmployeeID:          employeeID,
		Year:                year,
		AnnualLeaveTotal:    DefaultAnnualLeave,
		SickLeaveTotal:      DefaultSickLeave,
		EmergencyLeaveTotal: DefaultEmergencyLeave,
	}
}

// daysPerMonth divides the monthly base salary into the daily rate.
var daysPerMonth = decimal.NewFromInt(30)

// DailySalary derives the daily rate from a monthly base salary.
func DailySalary(base decimal.Decimal) decimal.Decimal {
	return base.Div(daysPerMonth).Round(2)
}

// NormalizeTypeName trims and NFC-normalizes an employee type name so that
// visually identical Arabic names compare equal.
func NormalizeTypeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
