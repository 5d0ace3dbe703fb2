package exercises

import (
	"errors"
	"time"
)

var (
	ErrExerciseNotFound   = errors.New("exercise not found")
	ErrWorkoutPlanMissing = errors.New("workout plan not found")
)

type Exercise struct {
	ID            int       `json:"id"`
	WorkoutPlanID int       `json:"workout_plan_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Sets          int       `json:"sets,omitempty"`
	Reps          string    `json:"reps,omitempty"`
	RestSeconds   int       `json:"rest_seconds,omitempty"`
	Order         int       `json:"order"`
	CreatedAt     time.Time `json:"created_at"`
}

func validateName(name string) error {
	if len(name) == 0 || len(name) > 100 {
		return errors.New("name must be between 1 and 100 characters")
	}
	return nil
}

func validateSets(sets int) error {
	if sets < 1 || sets > 20 {
		return errors.New("sets must be between 1 and 20")
	}
	return nil
}

func validateReps(reps string) error {
	if len(reps) > 50 {
		return errors.New("reps must be at most 50 characters")
	}
	return nil
}

func validateRestSeconds(restSeconds int) error {
	if restSeconds < 0 || restSeconds > 600 {
		return errors.New("rest_seconds must be between 0 and 600")
	}
	return nil
}

func validateOrder(order int) error {
	if order < 0 {
		return errors.New("order must be non-negative")
	}
	return nil
}

// UpdateParams carries a partial update, nil fields stay untouched.
type UpdateParams struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Sets        *int    `json:"sets"`
	Reps        *string `json:"reps"`
	RestSeconds *int    `json:"rest_seconds"`
	Order       *int    `json:"order"`
}

func (p UpdateParams) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Sets == nil &&
		p.Reps == nil && p.RestSeconds == nil && p.Order == nil
}

func (p UpdateParams) validate() error {
	if p.Name != nil {
		if err := validateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Sets != nil {
		if err := validateSets(*p.Sets); err != nil {
			return err
		}
	}
	if p.Reps != nil {
		if err := validateReps(*p.Reps); err != nil {
			return err
		}
	}
	if p.RestSeconds != nil {
		if err := validateRestSeconds(*p.RestSeconds); err != nil {
			return err
		}
	}
	if p.Order != nil {
		if err := validateOrder(*p.Order); err != nil {
			return err
		}
	}
	return nil
}
