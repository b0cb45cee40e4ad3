// Package progress defines the lifecycle events reported by the fetch engine.
//
// Reporting is a plain synchronous callback contract: the engine invokes the
// sink at defined milestones and never depends on its behavior. A sink that
// panics is swallowed so observers can never break a fetch.
package progress

// Phase denotes the type of milestone represented by an Event.
type Phase string

// Supported progress phases.
const (
	PhaseStarting   Phase = "starting"
	PhaseExtracting Phase = "extracting"
	PhaseComplete   Phase = "complete"
)

// Event captures a single milestone of engine progress.
type Event struct {
	// Phase denotes which lifecycle milestone occurred.
	Phase Phase
	// Message is a short human-readable description.
	Message string
	// URL scopes the event to a page when applicable.
	URL string
	// BatchID identifies the batch the event belongs to, if any.
	BatchID string
	// Completed and Total carry coarse batch counters when known.
	Completed int
	Total     int
}

// Sink consumes events. Implementations may be invoked concurrently and
// must tolerate events for URLs they have never seen.
type Sink func(Event)

// Notify delivers evt to sink, swallowing a nil sink and any panic.
func Notify(sink Sink, evt Event) {
	if sink == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	sink(evt)
}
