package queue

import (
	"fmt"
	"strings"
)

// Status is the persisted state of a submission job.
type Status int

const (
	New Status = iota
	Assigned
	InProgress
	Success
	UnknownFailure
	InvalidInput
	SystemRegistrationFailed
	DatabaseRegistrationFailed
	RunRegistrationFailed
	StatisticsRegistrationFailed
)

var statusNames = [...]string{
	New:                          "new",
	Assigned:                     "assigned",
	InProgress:                   "in_progress",
	Success:                      "success",
	UnknownFailure:               "unknown_failure",
	InvalidInput:                 "invalid_input",
	SystemRegistrationFailed:     "system_registration_failed",
	DatabaseRegistrationFailed:   "database_registration_failed",
	RunRegistrationFailed:        "run_registration_failed",
	StatisticsRegistrationFailed: "statistics_registration_failed",
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	return s >= New && int(s) < len(statusNames)
}

// Terminal reports whether s ends a job: success or any failure.
func (s Status) Terminal() bool {
	return s >= Success && s.Valid()
}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText renders the status name, so maps keyed by Status encode
// with readable keys.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus accepts a status name or its numeric value.
func ParseStatus(v string) (Status, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for i, name := range statusNames {
		if name == v || fmt.Sprint(i) == v {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, v)
}

// predecessors lists the states a job may be in when moving to s.
// Transitions only go forward; New is never a target.
func predecessors(s Status) []int {
	switch {
	case s == Assigned:
		return []int{int(New)}
	case s == InProgress:
		return []int{int(Assigned)}
	case s.Terminal():
		return []int{int(Assigned), int(InProgress)}
	}
	return nil
}
