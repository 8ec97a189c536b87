package executor

import "sync"

// Metrics tracks step execution counters for one executor instance.
type Metrics struct {
	StepsExecuted   int
	StepsSuccessful int
	StepsFailed     int
	StepsReused     int

	mu sync.Mutex // Protects counter updates
}

func (m *Metrics) recordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StepsExecuted++
	m.StepsSuccessful++
}

func (m *Metrics) recordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StepsExecuted++
	m.StepsFailed++
}

func (m *Metrics) recordReuse() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StepsExecuted++
	m.StepsReused++
}

// Copy returns a snapshot without the mutex.
func (m *Metrics) Copy() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		StepsExecuted:   m.StepsExecuted,
		StepsSuccessful: m.StepsSuccessful,
		StepsFailed:     m.StepsFailed,
		StepsReused:     m.StepsReused,
	}
}
