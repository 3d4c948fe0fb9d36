package project

import (
	"time"
	"unicode/utf8"

	"civicfund/pkg/apperr"
)

const (
	MinTitleLength       = 3
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
)

// Limits 可配置的金额范围
type Limits struct {
	MinGoal int64
	MaxGoal int64
}

func DefaultLimits() Limits {
	return Limits{MinGoal: 100, MaxGoal: 100_000_000_00}
}

func validateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	if n < MinTitleLength || n > MaxTitleLength {
		return apperr.Newf(apperr.CodeValidation,
			"title must be between %d and %d characters", MinTitleLength, MaxTitleLength).
			WithMetadata("field", "title")
	}
	return nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return apperr.Newf(apperr.CodeValidation,
			"description must be at most %d characters", MaxDescriptionLength).
			WithMetadata("field", "description")
	}
	return nil
}

func (l Limits) validateGoal(goal int64) error {
	if goal < l.MinGoal || goal > l.MaxGoal {
		return apperr.Newf(apperr.CodeValidation,
			"funding goal must be between %d and %d", l.MinGoal, l.MaxGoal).
			WithMetadata("field", "funding_goal")
	}
	return nil
}

func validateDeadline(deadline, now time.Time) error {
	if !deadline.After(now) {
		return apperr.New(apperr.CodeValidation, "funding deadline must be in the future").
			WithMetadata("field", "funding_deadline")
	}
	return nil
}
