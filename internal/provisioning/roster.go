package provisioning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Roster is the externally supplied list of profiles to provision.
type Roster struct {
	// CodeSeeds maps employee type names to the first code of that type.
	CodeSeeds map[string]string `json:"code_seeds,omitempty" yaml:"code_seeds,omitempty"`
	Profiles  []Profile         `json:"profiles" yaml:"profiles" validate:"required,min=1,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadRoster reads a YAML or JSON roster and validates every profile.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = "json"
	case ".yaml", ".yml", "":
		format = "yaml"
	default:
		return nil, fmt.Errorf("roster: unsupported file extension %q", filepath.Ext(path))
	}
	return ParseRoster(data, format)
}

// ParseRoster decodes a roster in the given format ("yaml" or "json").
func ParseRoster(data []byte, format string) (*Roster, error) {
	var roster Roster
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&roster); err != nil {
			return nil, fmt.Errorf("roster: decode json: %w", err)
		}
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&roster); err != nil {
			return nil, fmt.Errorf("roster: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("roster: unsupported format %q", format)
	}
	if err := roster.normalize(); err != nil {
		return nil, err
	}
	return &roster, nil
}

func (r *Roster) normalize() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("roster: %w", describeValidation(err))
	}
	seen := make(map[string]int, len(r.Profiles))
	for i := range r.Profiles {
		p := &r.Profiles[i]
		if err := normalizeProfile(p); err != nil {
			return fmt.Errorf("roster: %w", err)
		}
		if prev, dup := seen[p.Email]; dup {
			return fmt.Errorf("roster: profile %d repeats email %s from profile %d", i+1, p.Email, prev+1)
		}
		seen[p.Email] = i
	}
	if len(r.CodeSeeds) > 0 {
		seeds := make(map[string]string, len(r.CodeSeeds))
		for name, seed := range r.CodeSeeds {
			seeds[NormalizeTypeName(name)] = strings.TrimSpace(seed)
		}
		r.CodeSeeds = seeds
	}
	return nil
}

// ValidateProfile checks and normalizes a single profile submitted outside
// a roster file.
func ValidateProfile(p Profile) (Profile, error) {
	p.Email = strings.TrimSpace(p.Email)
	if err := validate.Struct(p); err != nil {
		return Profile{}, describeValidation(err)
	}
	if err := normalizeProfile(&p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func normalizeProfile(p *Profile) error {
	p.Email = NormalizeEmail(p.Email)
	p.EmployeeType = NormalizeTypeName(p.EmployeeType)
	p.FullName = strings.TrimSpace(p.FullName)
	if p.BaseSalary.IsNegative() {
		return fmt.Errorf("profile %s: base_salary must not be negative", p.Email)
	}
	return nil
}

// Find returns the profile with the given email.
func (r *Roster) Find(email string) (Profile, bool) {
	want := NormalizeEmail(email)
	for _, p := range r.Profiles {
		if p.Email == want {
			return p, true
		}
	}
	return Profile{}, false
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
