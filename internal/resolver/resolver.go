package resolver

import (
	"fmt"

	"autograde/internal/annotation"
	"autograde/internal/domain"
	"autograde/internal/engine"
)

// Resolver maps an outcome event to its group and test declarations.
// It is the only place that looks inside synthetic fixture-failure records.
type Resolver struct {
	registry *annotation.Registry
}

// New creates a Resolver backed by the given registry
func New(registry *annotation.Registry) *Resolver {
	if registry == nil {
		registry = annotation.NewRegistry()
	}
	return &Resolver{registry: registry}
}

// ResolveGroup returns the group name and its declared maximum (nil if additive)
func (r *Resolver) ResolveGroup(subject engine.Subject) (string, *int, error) {
	tc, err := realTest(subject)
	if err != nil {
		return "", nil, err
	}
	name := tc.GroupName()
	return name, r.registry.GroupMaxScore(name), nil
}

// ResolveTest returns the test method name and its declared score (nil if ungraded)
func (r *Resolver) ResolveTest(subject engine.Subject) (string, *int, error) {
	tc, err := realTest(subject)
	if err != nil {
		return "", nil, err
	}
	name := tc.MethodName()
	return name, r.registry.TestScore(tc.GroupName(), name), nil
}

func realTest(subject engine.Subject) (engine.TestCase, error) {
	switch s := subject.(type) {
	case nil:
		return nil, &domain.IntegrityError{Reason: "no test subject"}
	case *engine.ErrorHolder:
		if s == nil || s.RealTest == nil {
			return nil, &domain.IntegrityError{Subject: describe(subject), Reason: "fixture failure carries no test case"}
		}
		subject = s.RealTest
	}

	tc, ok := subject.(engine.TestCase)
	if !ok {
		return nil, &domain.IntegrityError{Subject: describe(subject), Reason: fmt.Sprintf("%T is not a test case", subject)}
	}
	if tc.GroupName() == "" || tc.MethodName() == "" {
		return nil, &domain.IntegrityError{Subject: tc.ID(), Reason: "test case has no group or method name"}
	}
	return tc, nil
}

func describe(subject engine.Subject) string {
	if h, ok := subject.(*engine.ErrorHolder); ok && h == nil {
		return ""
	}
	return subject.ID()
}
