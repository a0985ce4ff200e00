package mqtt

import (
	"log"

	"github.com/sweeney/valve-controller/internal/logic"
)

// Mirror forwards controller events to a Publisher. CYCLE events are
// skipped unless Cycles is set; everything else is published.
type Mirror struct {
	pub    Publisher
	Cycles bool
}

// NewMirror creates a Mirror publishing to pub.
func NewMirror(pub Publisher) *Mirror {
	return &Mirror{pub: pub}
}

// Observe publishes e. Errors are logged, never returned to the controller.
func (m *Mirror) Observe(e logic.Event) {
	if e.Type == logic.EventCycle && !m.Cycles {
		return
	}
	if err := m.pub.Publish(e); err != nil {
		log.Printf("mqtt: publish %s: %v", e.Type, err)
	}
}
