package models

import (
	"fmt"
	"time"
)

// TimestampFormat is the fixed string layout used for next_step_date and
// insert_date everywhere a date crosses a process boundary.
const TimestampFormat = "2006-01-02T15-04"

// Account types.
const (
	AccountTypeEmployee = "employee"
	AccountTypeStudent  = "student"
)

// EndStep is the terminal sentinel; a record whose next_step reaches it is
// deleted by the end-step effector rather than advanced further.
const EndStep = "end"

// EventRecord is one user's position in the deprovisioning chain. One record
// per active username; descriptive fields are set at insert and only change by
// re-insertion.
type EventRecord struct {
	Username    string `dynamodbav:"username" json:"username"`
	UniversalID string `dynamodbav:"universal_id" json:"universal_id"`
	AccountType string `dynamodbav:"account_type" json:"account_type"`
	FirstName   string `dynamodbav:"firstname" json:"firstname"`
	LastName    string `dynamodbav:"lastname" json:"lastname"`
	MgrFirst    string `dynamodbav:"mgr_first" json:"mgr_first"`
	MgrLast     string `dynamodbav:"mgr_last" json:"mgr_last"`
	MgrEmail    string `dynamodbav:"mgr_email" json:"mgr_email"`
	InsertDate  string `dynamodbav:"insert_date" json:"insert_date"`

	PreviousStep string `dynamodbav:"previous_step" json:"previous_step"`
	NextStep     string `dynamodbav:"next_step" json:"next_step"`
	NextStepDate string `dynamodbav:"next_step_date" json:"next_step_date"`

	// FailedLambdas maps effector name to failure count. An absent key means
	// no failure. HasFailedLambdas mirrors len(FailedLambdas) > 0 as the
	// string "true" so the failed-index GSI can key on it.
	FailedLambdas    map[string]int `dynamodbav:"failed_lambdas,omitempty" json:"failed_lambdas,omitempty"`
	HasFailedLambdas string         `dynamodbav:"has_failed_lambdas,omitempty" json:"has_failed_lambdas,omitempty"`
}

// StepPrefix returns the step-name prefix for an account type ("emp" or
// "stu"), or "" for anything unrecognized.
func StepPrefix(accountType string) string {
	switch accountType {
	case AccountTypeEmployee:
		return "emp"
	case AccountTypeStudent:
		return "stu"
	default:
		return ""
	}
}

// FirstStep returns the initial step seeded at insert, e.g. "emp-1".
func FirstStep(accountType string) string {
	return StepPrefix(accountType) + "-1"
}

// ParseStepDate parses a next_step_date / insert_date value.
func ParseStepDate(s string) (time.Time, error) {
	t, err := time.Parse(TimestampFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad step date %q: %w", s, err)
	}
	return t, nil
}

// FormatStepDate renders t in the wire layout.
func FormatStepDate(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}
