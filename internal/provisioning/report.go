package provisioning

import "time"

// Status tags the outcome of one profile.
type Status string

const (
	StatusSuccess              Status = "success"
	StatusSuccessWithWarning   Status = "success-with-warning"
	StatusFailedIdentity       Status = "failed-at-identity"
	StatusFailedTypeLookup     Status = "failed-at-type-lookup"
	StatusFailedCodeDerivation Status = "failed-at-code-derivation"
	StatusFailedRecordInsert   Status = "failed-at-record-insert"
	// StatusIdentityCreated marks a profile that finished the identity-only pass.
	StatusIdentityCreated Status = "identity-created"
)

// Succeeded reports whether the status counts towards the success total:
// exactly success and success-with-warning.
func (s Status) Succeeded() bool {
	switch s {
	case StatusSuccess, StatusSuccessWithWarning:
		return true
	}
	return false
}

// Report is the per-profile outcome persisted in the run artifact.
type Report struct {
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	UserID       string   `json:"user_id,omitempty"`
	EmployeeID   string   `json:"employee_id,omitempty"`
	EmployeeCode string   `json:"employee_code,omitempty"`
	Status       Status   `json:"status"`
	Diagnostic   string   `json:"diagnostic,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	Duplicate    bool     `json:"duplicate,omitempty"`
	RolledBack   bool     `json:"rolled_back,omitempty"`
}

func newReport(p Profile) Report {
	return Report{Name: p.FullName, Email: p.Email}
}

func (r *Report) fail(status Status, diagnostic string) {
	r.Status = status
	r.Diagnostic = diagnostic
}

func (r *Report) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// finish settles the success status once every fatal step has passed.
func (r *Report) finish() {
	if len(r.Warnings) > 0 {
		r.Status = StatusSuccessWithWarning
		return
	}
	r.Status = StatusSuccess
}

// Summary aggregates the reports of one run.
type Summary struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	// IdentitiesCreated counts profiles left at identity-created, waiting
	// for the records pass. They are neither succeeded nor failed.
	IdentitiesCreated int      `json:"identities_created,omitempty"`
	Reports           []Report `json:"reports"`
}

// Add appends a report and updates the counters.
func (s *Summary) Add(r Report) {
	s.Reports = append(s.Reports, r)
	s.Total++
	switch {
	case r.Status.Succeeded():
		s.Succeeded++
	case r.Status == StatusIdentityCreated:
		s.IdentitiesCreated++
	default:
		s.Failed++
	}
}
