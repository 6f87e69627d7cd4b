package domain

// Group aggregates the tests of one test group.
//
// A group with a declared maximum is subtractive: it starts at the maximum and
// each failing penalty test takes points away, floored at zero. A group without
// one is additive and builds its score up from zero.
type Group struct {
	Name string

	declaredMax   *int
	tests         []Test
	totalScore    int
	totalMaxScore int
}

// NewGroup creates an empty group; a nil declaredMax makes it additive
func NewGroup(name string, declaredMax *int) *Group {
	return &Group{Name: name, declaredMax: copyPoints(declaredMax)}
}

// DeclaredMaxScore returns the declared maximum, if any
func (g *Group) DeclaredMaxScore() (int, bool) {
	if g.declaredMax == nil {
		return 0, false
	}
	return *g.declaredMax, true
}

// SetDeclaredMaxScore changes the scoring mode. Only allowed while the group is empty.
func (g *Group) SetDeclaredMaxScore(points *int) error {
	if len(g.tests) > 0 {
		return &ConsistencyError{Group: g.Name, Reason: "cannot modify max_score after tests have been added to group"}
	}
	g.declaredMax = copyPoints(points)
	return nil
}

// IsSubtractive reports whether the group has a declared maximum
func (g *Group) IsSubtractive() bool {
	return g.declaredMax != nil
}

// Score returns the points earned by the group
func (g *Group) Score() int {
	if g.IsSubtractive() {
		return max(0, *g.declaredMax+g.totalScore)
	}
	return g.totalScore
}

// MaxScore returns the points available in the group
func (g *Group) MaxScore() int {
	if g.IsSubtractive() {
		return *g.declaredMax
	}
	return g.totalMaxScore
}

// Tests returns the group's tests in the order they were added
func (g *Group) Tests() []Test {
	tests := make([]Test, len(g.tests))
	copy(tests, g.tests)
	return tests
}

// AddTest appends a test and updates the running totals.
func (g *Group) AddTest(test Test) error {
	if g.IsSubtractive() && (test.Score > 0 || test.MaxScore > 0) {
		return &ModeViolationError{Group: g.Name, Test: test.Name, Subtractive: true}
	}
	if !g.IsSubtractive() && (test.Score < 0 || test.MaxScore < 0) {
		return &ModeViolationError{Group: g.Name, Test: test.Name, Subtractive: false}
	}
	g.totalScore += test.Score
	g.totalMaxScore += test.MaxScore
	g.tests = append(g.tests, test)
	return nil
}

func copyPoints(points *int) *int {
	if points == nil {
		return nil
	}
	p := *points
	return &p
}

func samePoints(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
