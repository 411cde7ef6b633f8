// Package experiment models experiments and the analysis-window policy.
package experiment

import (
	"time"

	"github.com/terrorizer1980/jetstream/internal/config"
	jserrors "github.com/terrorizer1980/jetstream/internal/errors"
)

// Experiment is the immutable description of an experiment under analysis.
//
// The definition is owned by an external configuration collaborator; once an
// analysis run begins it is read-only.
type Experiment struct {
	// ID is the experiment slug.
	ID string

	// StartDate is the first enrollment date (UTC midnight).
	StartDate time.Time

	// EndDate is the last date of the experiment, nil while undecided.
	EndDate *time.Time

	// Branches is the ordered list of branch names.
	Branches []string

	// ControlBranch is the branch comparisons are made against; empty means
	// no branch-pair comparisons are produced.
	ControlBranch string

	// EnrollmentCriteria is an opaque reference interpreted by the raw
	// dataset collaborator.
	EnrollmentCriteria string
}

// FromConfig builds an Experiment from a validated configuration.
func FromConfig(cfg *config.ExperimentConfig) (*Experiment, error) {
	if cfg.ID == "" {
		return nil, jserrors.NewConfigError("", "experiment id is required")
	}
	if cfg.StartDate.IsZero() {
		return nil, jserrors.NewConfigError(cfg.ID, "experiment start date is required")
	}
	if len(cfg.Branches) < 2 {
		return nil, jserrors.NewConfigError(cfg.ID, "experiment requires at least two branches")
	}

	exp := &Experiment{
		ID:                 cfg.ID,
		StartDate:          cfg.StartDate.Time,
		Branches:           append([]string(nil), cfg.Branches...),
		ControlBranch:      cfg.ControlBranch,
		EnrollmentCriteria: cfg.EnrollmentCriteria,
	}
	if cfg.EndDate != nil && !cfg.EndDate.IsZero() {
		end := cfg.EndDate.Time
		exp.EndDate = &end
	}
	return exp, nil
}

// HasBranch reports whether name is one of the experiment's branches.
func (e *Experiment) HasBranch(name string) bool {
	for _, b := range e.Branches {
		if b == name {
			return true
		}
	}
	return false
}

// Ended reports whether the experiment's end date has passed as of the
// given date.
func (e *Experiment) Ended(asOf time.Time) bool {
	return e.EndDate != nil && asOf.After(*e.EndDate)
}

// Enrollment is one analysis unit's enrollment record. Branch assignment is
// immutable once created.
type Enrollment struct {
	UnitID     string
	Branch     string
	EnrolledAt time.Time
}
