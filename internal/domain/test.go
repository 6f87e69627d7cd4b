package domain

// Test is the graded outcome of a single test method
type Test struct {
	Name     string  // Test method name
	Score    int     // Points actually awarded (a penalty is negative)
	MaxScore int     // Declared point value, negative for penalty tests
	Output   *string // Captured output, nil when capture was off
}

// IsSubtractive reports whether the test carries a penalty instead of credit
func (t Test) IsSubtractive() bool {
	return t.MaxScore < 0
}

// Points returns a pointer to n, for optional declared scores.
func Points(n int) *int {
	return &n
}
