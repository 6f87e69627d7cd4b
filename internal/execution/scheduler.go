package execution

// Scheduler distributes package directories across workers
type Scheduler interface {
	Schedule(dirs []string, workerCount int) [][]string
}

// RoundRobinScheduler distributes packages evenly across workers
type RoundRobinScheduler struct{}

// NewRoundRobinScheduler creates a new RoundRobinScheduler
func NewRoundRobinScheduler() *RoundRobinScheduler {
	return &RoundRobinScheduler{}
}

// Schedule distributes packages evenly across workers using round-robin.
// It never returns more lanes than there are packages.
func (s *RoundRobinScheduler) Schedule(dirs []string, workerCount int) [][]string {
	if workerCount <= 0 {
		workerCount = 1
	}
	if len(dirs) > 0 && workerCount > len(dirs) {
		workerCount = len(dirs)
	}

	distribution := make([][]string, workerCount)
	for i := range distribution {
		distribution[i] = make([]string, 0)
	}

	for i, dir := range dirs {
		workerIndex := i % workerCount
		distribution[workerIndex] = append(distribution[workerIndex], dir)
	}

	return distribution
}
