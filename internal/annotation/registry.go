package annotation

import (
	"fmt"

	"autograde/internal/domain"
)

// Visibility controls whether a test is shown to students
type Visibility string

const (
	VisibilityVisible Visibility = "visible"
	VisibilityHidden  Visibility = "hidden"
)

// TestSpec holds the grading metadata declared for one test method
type TestSpec struct {
	Group      string
	Name       string
	Score      *int // nil means the test is not graded
	SortKey    string
	Visibility Visibility
	Tags       []string
}

// GroupSpec holds the grading metadata declared for one test group
type GroupSpec struct {
	Name     string
	MaxScore *int // nil means additive scoring
	Tests    []TestSpec
}

// TestOption sets one piece of metadata on a test declaration
type TestOption func(*TestSpec) error

// WithScore sets the test's point value. Negative values are penalties.
func WithScore(points int) TestOption {
	return func(t *TestSpec) error {
		t.Score = domain.Points(points)
		return nil
	}
}

// WithSortKey sets the presentation sort key
func WithSortKey(key string) TestOption {
	return func(t *TestSpec) error {
		t.SortKey = key
		return nil
	}
}

// WithVisibility sets the test visibility
func WithVisibility(v Visibility) TestOption {
	return func(t *TestSpec) error {
		switch v {
		case VisibilityVisible, VisibilityHidden:
			t.Visibility = v
			return nil
		}
		return fmt.Errorf("visibility must be %q or %q, got %q", VisibilityVisible, VisibilityHidden, v)
	}
}

// WithTags sets free-form labels
func WithTags(tags ...string) TestOption {
	return func(t *TestSpec) error {
		t.Tags = append([]string(nil), tags...)
		return nil
	}
}

type groupEntry struct {
	maxScore *int
	tests    map[string]*TestSpec
	order    []string
}

// Registry stores score declarations keyed by group and test name.
// It is filled before a run and only read during it.
type Registry struct {
	groups map[string]*groupEntry
	order  []string
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]*groupEntry)}
}

func (r *Registry) entry(group string) *groupEntry {
	e, ok := r.groups[group]
	if !ok {
		e = &groupEntry{tests: make(map[string]*TestSpec)}
		r.groups[group] = e
		r.order = append(r.order, group)
	}
	return e
}

// DeclareTest registers or updates a test method declaration.
// A positive score is rejected when the group already has a maximum.
func (r *Registry) DeclareTest(group, name string, opts ...TestOption) error {
	if group == "" || name == "" {
		return &domain.ValidationError{Group: group, Test: name, Reason: "group and test name are required"}
	}

	var spec TestSpec
	if existing := r.lookup(group, name); existing != nil {
		spec = *existing
	} else {
		spec = TestSpec{Group: group, Name: name, Visibility: VisibilityVisible}
	}
	for _, opt := range opts {
		if err := opt(&spec); err != nil {
			return &domain.ValidationError{Group: group, Test: name, Reason: err.Error()}
		}
	}

	e := r.entry(group)
	if e.maxScore != nil && spec.Score != nil && *spec.Score > 0 {
		return &domain.ValidationError{
			Group:  group,
			Test:   name,
			Reason: fmt.Sprintf("positive score %d in group with max_score %d", *spec.Score, *e.maxScore),
		}
	}

	if _, ok := e.tests[name]; !ok {
		e.order = append(e.order, name)
	}
	e.tests[name] = &spec
	return nil
}

// DeclareGroupMax makes the group subtractive with the given maximum.
// All tests already declared in the group must have non-positive scores.
func (r *Registry) DeclareGroupMax(group string, points int) error {
	if group == "" {
		return &domain.ValidationError{Reason: "group name is required"}
	}
	e := r.entry(group)
	if e.maxScore != nil && *e.maxScore != points {
		return &domain.ValidationError{
			Group:  group,
			Reason: fmt.Sprintf("max_score already declared as %d, cannot redeclare as %d", *e.maxScore, points),
		}
	}
	for _, name := range e.order {
		t := e.tests[name]
		if t.Score != nil && *t.Score > 0 {
			return &domain.ValidationError{
				Group:  group,
				Test:   name,
				Reason: "test method with positive score in group with max_score not allowed",
			}
		}
	}
	e.maxScore = domain.Points(points)
	return nil
}

func (r *Registry) lookup(group, name string) *TestSpec {
	e, ok := r.groups[group]
	if !ok {
		return nil
	}
	return e.tests[name]
}

// HasGroup reports whether anything was declared for the group
func (r *Registry) HasGroup(group string) bool {
	_, ok := r.groups[group]
	return ok
}

// GroupMaxScore returns the declared group maximum, or nil
func (r *Registry) GroupMaxScore(group string) *int {
	e, ok := r.groups[group]
	if !ok || e.maxScore == nil {
		return nil
	}
	return domain.Points(*e.maxScore)
}

// TestScore returns the declared test score, or nil if the test is ungraded
func (r *Registry) TestScore(group, name string) *int {
	t := r.lookup(group, name)
	if t == nil || t.Score == nil {
		return nil
	}
	return domain.Points(*t.Score)
}

// Test returns a copy of the test declaration
func (r *Registry) Test(group, name string) (TestSpec, bool) {
	t := r.lookup(group, name)
	if t == nil {
		return TestSpec{}, false
	}
	return cloneTest(t), true
}

// Tests returns the group's test declarations in declaration order
func (r *Registry) Tests(group string) []TestSpec {
	e, ok := r.groups[group]
	if !ok {
		return nil
	}
	tests := make([]TestSpec, 0, len(e.order))
	for _, name := range e.order {
		tests = append(tests, cloneTest(e.tests[name]))
	}
	return tests
}

// Groups returns every group declaration in declaration order
func (r *Registry) Groups() []GroupSpec {
	groups := make([]GroupSpec, 0, len(r.order))
	for _, name := range r.order {
		groups = append(groups, GroupSpec{
			Name:     name,
			MaxScore: r.GroupMaxScore(name),
			Tests:    r.Tests(name),
		})
	}
	return groups
}

func cloneTest(t *TestSpec) TestSpec {
	c := *t
	if t.Score != nil {
		c.Score = domain.Points(*t.Score)
	}
	c.Tags = append([]string(nil), t.Tags...)
	return c
}
