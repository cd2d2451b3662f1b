package appointments

import "errors"

var (
	ErrNotFound         = errors.New("appointment not found")
	ErrInvalidName      = errors.New("patient name is required")
	ErrMissingContact   = errors.New("either phone or email is required")
	ErrInvalidDate      = errors.New("appointment date must be YYYY-MM-DD")
	ErrInvalidTime      = errors.New("appointment time is required")
	ErrInvalidType      = errors.New("appointment type is required")
	ErrInvalidStatus    = errors.New("status is required")
	ErrNegativeReminder = errors.New("reminder count cannot decrease")
)
