package domain

import "fmt"

// ValidationError reports a score declaration that breaks a static rule.
type ValidationError struct {
	Group  string
	Test   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Test != "" {
		return fmt.Sprintf("invalid declaration for test %s in group %s: %s", e.Test, e.Group, e.Reason)
	}
	return fmt.Sprintf("invalid declaration for group %s: %s", e.Group, e.Reason)
}

// ModeViolationError reports a test whose sign does not match its group's scoring mode.
type ModeViolationError struct {
	Group       string
	Test        string
	Subtractive bool
}

func (e *ModeViolationError) Error() string {
	if e.Subtractive {
		return fmt.Sprintf("cannot add non-subtractive test %s to subtractive group %s", e.Test, e.Group)
	}
	return fmt.Sprintf("cannot add subtractive test %s to non-subtractive group %s", e.Test, e.Group)
}

// ConsistencyError reports a group or results state change that contradicts earlier state.
type ConsistencyError struct {
	Group  string
	Reason string
}

func (e *ConsistencyError) Error() string {
	if e.Group == "" {
		return e.Reason
	}
	return fmt.Sprintf("test group %s: %s", e.Group, e.Reason)
}

// IntegrityError reports an outcome event that does not identify a real test case.
type IntegrityError struct {
	Subject string
	Reason  string
}

func (e *IntegrityError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("unresolvable test outcome: %s", e.Reason)
	}
	return fmt.Sprintf("unresolvable test outcome %q: %s", e.Subject, e.Reason)
}

func formatMax(points *int) string {
	if points == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *points)
}
