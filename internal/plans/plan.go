package plans

import (
	"errors"
	"fmt"
	"time"
)

var ErrPlanNotFound = errors.New("workout plan not found")

const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

type WorkoutPlan struct {
	ID            int        `json:"id"`
	OwnerID       int        `json:"owner_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Difficulty    string     `json:"difficulty,omitempty"`
	DurationWeeks int        `json:"duration_weeks,omitempty"`
	IsPublic      bool       `json:"is_public"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

func validDifficulty(difficulty string) bool {
	switch difficulty {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	default:
		return false
	}
}

func validateTitle(title string) error {
	if len(title) == 0 || len(title) > 100 {
		return errors.New("title must be between 1 and 100 characters")
	}
	return nil
}

func validateDifficulty(difficulty string) error {
	if difficulty != "" && !validDifficulty(difficulty) {
		return fmt.Errorf(
			"difficulty must be one of: %s, %s, %s",
			DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced,
		)
	}
	return nil
}

func validateDurationWeeks(weeks int) error {
	if weeks < 1 || weeks > 52 {
		return errors.New("duration_weeks must be between 1 and 52")
	}
	return nil
}

// UpdateParams carries a partial update, nil fields stay untouched.
type UpdateParams struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Difficulty    *string `json:"difficulty"`
	DurationWeeks *int    `json:"duration_weeks"`
	IsPublic      *bool   `json:"is_public"`
}

func (p UpdateParams) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Difficulty == nil &&
		p.DurationWeeks == nil && p.IsPublic == nil
}

func (p UpdateParams) validate() error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Difficulty != nil {
		if err := validateDifficulty(*p.Difficulty); err != nil {
			return err
		}
	}
	if p.DurationWeeks != nil {
		if err := validateDurationWeeks(*p.DurationWeeks); err != nil {
			return err
		}
	}
	return nil
}
