package core

import "time"

var (
	ErrDeadlineInPast       = NewBadRequestError("deadline cannot be earlier than today")
	ErrDeadlineAfterSubject = NewBadRequestError("deadline cannot be later than the subject deadline")
)

// LeaveResult is returned when a user leaves a subject or a team.
// Deleted reports whether leaving removed the whole subject or team.
type LeaveResult struct {
	Success bool `json:"success"`
	Deleted bool `json:"deleted"`
}

// ParseDeadline parses an optional deadline; nil or blank input yields nil.
func ParseDeadline(field string, s *string) (*time.Time, error) {
	if s == nil || CleanString(*s) == "" {
		return nil, nil
	}
	t, err := ParseDate(*s)
	if err != nil {
		return nil, NewValidationError(err, FieldError{Field: field, Error: "invalid date"})
	}
	return &t, nil
}

// CheckDeadline compares dates only: deadline may be today at the earliest,
// and no later than limit's date when a limit is set.
func CheckDeadline(deadline time.Time, limit *time.Time) error {
	day := DateOf(deadline)
	if day.Before(Today()) {
		return ErrDeadlineInPast
	}
	if limit != nil && day.After(DateOf(*limit)) {
		return ErrDeadlineAfterSubject
	}
	return nil
}
