package logic

// MismatchCounter counts consecutive actuator mismatches.
type MismatchCounter struct {
	threshold   int
	consecutive int
	total       int
}

// NewMismatchCounter creates a counter that escalates once threshold
// consecutive mismatches have been seen. A threshold <= 0 never escalates.
func NewMismatchCounter(threshold int) *MismatchCounter {
	return &MismatchCounter{threshold: threshold}
}

// Record registers the outcome of one verified command and reports whether
// the fault should be escalated.
func (m *MismatchCounter) Record(ok bool) bool {
	if ok {
		m.consecutive = 0
		return false
	}
	m.consecutive++
	m.total++
	return m.threshold > 0 && m.consecutive >= m.threshold
}

// Consecutive returns the current run of mismatches.
func (m *MismatchCounter) Consecutive() int {
	return m.consecutive
}

// Total returns every mismatch seen since startup.
func (m *MismatchCounter) Total() int {
	return m.total
}
