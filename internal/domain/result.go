package domain

import (
	"fmt"
	"time"
)

// Results is the grade tree of one grading run
type Results struct {
	groups        map[string]*Group
	order         []string
	executionTime *time.Duration
}

// NewResults creates an empty Results
func NewResults() *Results {
	return &Results{groups: make(map[string]*Group)}
}

// HasGroup reports whether a group with the given name exists
func (r *Results) HasGroup(name string) bool {
	_, ok := r.groups[name]
	return ok
}

// Group returns the named group
func (r *Results) Group(name string) (*Group, bool) {
	g, ok := r.groups[name]
	return g, ok
}

// Groups returns all groups in the order they were created
func (r *Results) Groups() []*Group {
	groups := make([]*Group, 0, len(r.order))
	for _, name := range r.order {
		groups = append(groups, r.groups[name])
	}
	return groups
}

// AddGroup creates a new group; the name must not be taken.
func (r *Results) AddGroup(name string, declaredMax *int) (*Group, error) {
	if r.HasGroup(name) {
		return nil, &ConsistencyError{Group: name, Reason: "test group already exists"}
	}
	g := NewGroup(name, declaredMax)
	r.groups[name] = g
	r.order = append(r.order, name)
	return g, nil
}

// EnsureGroup returns the named group, creating it if needed. An existing group
// must have been created with the same declared maximum.
func (r *Results) EnsureGroup(name string, declaredMax *int) (*Group, error) {
	if g, ok := r.groups[name]; ok {
		if !samePoints(g.declaredMax, declaredMax) {
			return nil, &ConsistencyError{
				Group:  name,
				Reason: fmt.Sprintf("exists with max_score of %s instead of %s", formatMax(g.declaredMax), formatMax(declaredMax)),
			}
		}
		return g, nil
	}
	return r.AddGroup(name, declaredMax)
}

// Score returns the total score across all groups
func (r *Results) Score() int {
	points := 0
	for _, g := range r.groups {
		points += g.Score()
	}
	return points
}

// MaxScore returns the total maximum score across all groups
func (r *Results) MaxScore() int {
	points := 0
	for _, g := range r.groups {
		points += g.MaxScore()
	}
	return points
}

// SetExecutionTime finalizes the run duration. It can only be set once.
func (r *Results) SetExecutionTime(d time.Duration) error {
	if r.executionTime != nil {
		return &ConsistencyError{Reason: "execution time already finalized"}
	}
	r.executionTime = &d
	return nil
}

// ExecutionTime returns the run duration once finalized
func (r *Results) ExecutionTime() (time.Duration, bool) {
	if r.executionTime == nil {
		return 0, false
	}
	return *r.executionTime, true
}
