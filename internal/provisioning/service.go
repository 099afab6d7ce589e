package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Options tunes the Sequencer.
type Options struct {
	// VisibilityTimeout bounds the wait for a new identity to become
	// readable before the employee insert. Zero disables the wait.
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	// RollbackIdentity deletes a freshly created identity when a later
	// fatal step fails. Off by default: orphaned identities are left for
	// the records pass to pick up.
	RollbackIdentity bool
	// UseRPC replaces type lookup, code derivation and insert with the
	// store's server-side create-employee function.
	UseRPC bool
}

// Option customises a Sequencer.
type Option func(*Sequencer)

// WithOptions sets the tuning options.
func WithOptions(opts Options) Option {
	return func(s *Sequencer) { s.opts = opts }
}

// WithLocker serializes code derivation through l.
func WithLocker(l Locker) Option {
	return func(s *Sequencer) { s.locker = l }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = logger }
}

// WithRecorder reports outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Sequencer) { s.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// Sequencer runs the ordered provisioning steps for one profile at a time.
type Sequencer struct {
	identities IdentityStore
	records    RecordStore
	schemes    SchemeResolver
	locker     Locker
	recorder   Recorder
	logger     *slog.Logger
	opts       Options
	now        func() time.Time
}

// NewSequencer builds a Sequencer over the given stores.
func NewSequencer(identities IdentityStore, records RecordStore, schemes SchemeResolver, opts ...Option) *Sequencer {
	s := &Sequencer{
		identities: identities,
		records:    records,
		schemes:    schemes,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.opts.PollInterval <= 0 {
		s.opts.PollInterval = 250 * time.Millisecond
	}
	return s
}

// Provision runs every step for p: identity, type lookup, code derivation,
// employee insert and role assignment. It never returns an error; the
// outcome is carried by the report status.
func (s *Sequencer) Provision(ctx context.Context, p Profile) Report {
	start := s.now()
	report := s.createIdentity(ctx, p)
	if report.Status == StatusIdentityCreated {
		identity := Identity{ID: report.UserID, Email: p.Email}
		if err := s.waitVisible(ctx, identity.ID); err != nil {
			report.fail(StatusFailedRecordInsert, fmt.Sprintf("employee record creation failed: %v", err))
			s.rollback(ctx, &report)
		} else {
			report = s.provisionRecord(ctx, p, identity, true)
		}
	}
	s.observe(report, start)
	return report
}

// CreateIdentity runs only the identity step. A successful report carries
// StatusIdentityCreated and the new user id.
func (s *Sequencer) CreateIdentity(ctx context.Context, p Profile) Report {
	start := s.now()
	report := s.createIdentity(ctx, p)
	s.observe(report, start)
	return report
}

// ProvisionRecord runs the record steps for an identity that already exists.
// Identities are never rolled back on this path.
func (s *Sequencer) ProvisionRecord(ctx context.Context, p Profile, identity Identity) Report {
	start := s.now()
	report := s.provisionRecord(ctx, p, identity, false)
	s.observe(report, start)
	return report
}

func (s *Sequencer) createIdentity(ctx context.Context, p Profile) Report {
	report := newReport(p)
	logger := s.logger.With(slog.String("email", p.Email))
	identity, err := s.identities.CreateIdentity(ctx, p)
	if err != nil {
		logger.Error("create identity", slog.Any("error", err))
		report.fail(StatusFailedIdentity, fmt.Sprintf("identity creation failed: %v", err))
		return report
	}
	logger.Info("identity created", slog.String("user_id", identity.ID))
	report.UserID = identity.ID
	report.Status = StatusIdentityCreated
	return report
}

func (s *Sequencer) provisionRecord(ctx context.Context, p Profile, identity Identity, owned bool) Report {
	report := newReport(p)
	report.UserID = identity.ID
	logger := s.logger.With(slog.String("email", p.Email), slog.String("user_id", identity.ID))

	failed := func(status Status, diagnostic string) Report {
		logger.Error("provisioning failed", slog.String("status", string(status)), slog.String("diagnostic", diagnostic))
		report.fail(status, diagnostic)
		if owned {
			s.rollback(ctx, &report)
		}
		return report
	}

	if s.opts.UseRPC {
		if rpc, ok := s.records.(RPCRecordStore); ok {
			return s.provisionViaRPC(ctx, rpc, p, identity, &report, failed)
		}
		logger.Warn("record store has no rpc support, falling back to steps")
	}

	employeeType, err := s.records.EmployeeTypeByName(ctx, NormalizeTypeName(p.EmployeeType))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return failed(StatusFailedTypeLookup, fmt.Sprintf("employee type not found: %q", p.EmployeeType))
		}
		return failed(StatusFailedTypeLookup, fmt.Sprintf("employee type lookup failed: %v", err))
	}

	scheme, err := s.schemes.For(employeeType)
	if err != nil {
		return failed(StatusFailedCodeDerivation, fmt.Sprintf("code derivation failed: %v", err))
	}

	employee := s.employeeFor(p, identity, employeeType)
	inserted, duplicate, status, diag := s.insertWithCode(ctx, employee, scheme)
	if status != "" {
		return failed(status, diag)
	}
	if duplicate {
		existing, status, diag := s.existingRecord(ctx, identity, inserted.Code)
		if status != "" {
			return failed(status, diag)
		}
		logger.Warn("employee record already exists")
		report.Duplicate = true
		inserted = existing
	} else {
		logger.Info("employee record created", slog.String("employee_id", inserted.ID), slog.String("code", inserted.Code))
	}
	report.EmployeeID = inserted.ID
	report.EmployeeCode = inserted.Code

	if !duplicate && inserted.ID != "" {
		s.createExtras(ctx, inserted, &report, logger)
	}
	s.assignRole(ctx, employeeType, identity, &report, logger)
	report.finish()
	return report
}

// insertWithCode derives the next code and inserts the employee. A non-empty
// status means a fatal failure described by diag.
func (s *Sequencer) insertWithCode(ctx context.Context, e Employee, scheme CodeScheme) (inserted Employee, duplicate bool, status Status, diag string) {
	if atomic, ok := s.records.(AtomicRecordStore); ok {
		inserted, err := atomic.InsertWithNextCode(ctx, e, scheme)
		switch {
		case err == nil:
			return inserted, false, "", ""
		case errors.Is(err, ErrDuplicate):
			return e, true, "", ""
		case errors.Is(err, ErrCodeFormat):
			return Employee{}, false, StatusFailedCodeDerivation, fmt.Sprintf("code derivation failed: %v", err)
		default:
			return Employee{}, false, StatusFailedRecordInsert, fmt.Sprintf("employee record creation failed: %v", err)
		}
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, e.EmployeeTypeID)
		if err != nil {
			return Employee{}, false, StatusFailedCodeDerivation, fmt.Sprintf("code derivation failed: lock: %v", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release code lock", slog.Any("error", err))
			}
		}()
	}

	last, found, err := s.records.LatestEmployeeCode(ctx, e.EmployeeTypeID)
	if err != nil {
		return Employee{}, false, StatusFailedCodeDerivation, fmt.Sprintf("code derivation failed: %v", err)
	}
	code, err := scheme.Next(last, found)
	if err != nil {
		return Employee{}, false, StatusFailedCodeDerivation, fmt.Sprintf("code derivation failed: %v", err)
	}
	e.Code = code

	inserted, err = s.records.InsertEmployee(ctx, e)
	switch {
	case err == nil:
		return inserted, false, "", ""
	case errors.Is(err, ErrDuplicate):
		return e, true, "", ""
	default:
		return Employee{}, false, StatusFailedRecordInsert, fmt.Sprintf("employee record creation failed: %v", err)
	}
}

func (s *Sequencer) provisionViaRPC(ctx context.Context, rpc RPCRecordStore, p Profile, identity Identity, report *Report, failed func(Status, string) Report) Report {
	err := rpc.CreateEmployeeRPC(ctx, identity.ID, p)
	switch {
	case err == nil:
		if existing, err := s.records.EmployeeByUserID(ctx, identity.ID); err == nil {
			report.EmployeeID = existing.ID
			report.EmployeeCode = existing.Code
		}
	case errors.Is(err, ErrDuplicate):
		existing, status, diag := s.existingRecord(ctx, identity, "")
		if status != "" {
			return failed(status, diag)
		}
		report.Duplicate = true
		report.EmployeeID = existing.ID
		report.EmployeeCode = existing.Code
	default:
		return failed(StatusFailedRecordInsert, fmt.Sprintf("employee record creation failed: %v", err))
	}
	report.finish()
	return *report
}

// existingRecord confirms that a unique-constraint conflict came from the
// identity's own employee row. Any other conflict, such as a code already
// held by another employee, is a failed insert.
func (s *Sequencer) existingRecord(ctx context.Context, identity Identity, code string) (Employee, Status, string) {
	existing, err := s.records.EmployeeByUserID(ctx, identity.ID)
	switch {
	case err == nil:
		return existing, "", ""
	case errors.Is(err, ErrNotFound):
		if code != "" {
			return Employee{}, StatusFailedRecordInsert, fmt.Sprintf("employee code collision: %s is held by another employee", code)
		}
		return Employee{}, StatusFailedRecordInsert, "employee code collision: insert conflicted but no record exists for this identity"
	default:
		return Employee{}, StatusFailedRecordInsert, fmt.Sprintf("employee record creation failed: read back after conflict: %v", err)
	}
}

func (s *Sequencer) employeeFor(p Profile, identity Identity, t EmployeeType) Employee {
	now := s.now()
	return Employee{
		UserID:             identity.ID,
		EmployeeTypeID:     t.ID,
		FullName:           p.FullName,
		Phone:              p.Phone,
		Email:              p.Email,
		BaseSalary:         p.BaseSalary,
		DailySalary:        DailySalary(p.BaseSalary),
		HireDate:           time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		DateOfBirth:        p.DateOfBirth,
		Address:            p.Address,
		Gender:             p.Gender,
		QualificationLevel: p.QualificationLevel,
		QualificationName:  p.QualificationName,
		IsActive:           true,
	}
}

func (s *Sequencer) createExtras(ctx context.Context, e Employee, report *Report, logger *slog.Logger) {
	if err := s.records.CreateLeaveBalance(ctx, NewLeaveBalance(e.ID, s.now().Year())); err != nil {
		logger.Warn("create leave balance", slog.Any("error", err))
		report.warn(fmt.Sprintf("leave balance creation failed: %v", err))
	}
	if err := s.records.CreateDocumentsRecord(ctx, e.ID); err != nil {
		logger.Warn("create documents record", slog.Any("error", err))
		report.warn(fmt.Sprintf("documents record creation failed: %v", err))
	}
}

func (s *Sequencer) assignRole(ctx context.Context, t EmployeeType, identity Identity, report *Report, logger *slog.Logger) {
	role, err := s.records.RoleForType(ctx, t.ID)
	if err != nil {
		logger.Warn("resolve role", slog.Any("error", err))
		if errors.Is(err, ErrNotFound) {
			report.warn(fmt.Sprintf("no role bound to employee type %q", t.Name))
			return
		}
		report.warn(fmt.Sprintf("role lookup failed: %v", err))
		return
	}
	err = s.records.AssignRole(ctx, RoleAssignment{UserID: identity.ID, RoleName: role})
	switch {
	case err == nil:
		logger.Info("role assigned", slog.String("role", role))
	case errors.Is(err, ErrDuplicate):
		logger.Info("role already assigned", slog.String("role", role))
	default:
		logger.Warn("assign role", slog.Any("error", err))
		report.warn(fmt.Sprintf("role assignment failed: %v", err))
	}
}

// waitVisible polls the identity until it can be read back or the
// visibility timeout elapses.
func (s *Sequencer) waitVisible(ctx context.Context, id string) error {
	if s.opts.VisibilityTimeout <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.VisibilityTimeout)
	defer cancel()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		_, err := s.identities.GetIdentity(ctx, id)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w after %s", ErrNotVisible, s.opts.VisibilityTimeout)
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w after %s", ErrNotVisible, s.opts.VisibilityTimeout)
		case <-ticker.C:
		}
	}
}

func (s *Sequencer) rollback(ctx context.Context, report *Report) {
	if !s.opts.RollbackIdentity || report.UserID == "" {
		return
	}
	if err := s.identities.DeleteIdentity(context.WithoutCancel(ctx), report.UserID); err != nil {
		s.logger.Warn("rollback identity", slog.String("user_id", report.UserID), slog.Any("error", err))
		report.warn(fmt.Sprintf("identity rollback failed: %v", err))
		return
	}
	report.RolledBack = true
}

func (s *Sequencer) observe(report Report, start time.Time) {
	if s.recorder == nil {
		return
	}
	s.recorder.ObserveProvision(string(report.Status), s.now().Sub(start))
}
