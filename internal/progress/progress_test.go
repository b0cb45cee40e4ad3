package progress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotifyDeliversEvent(t *testing.T) {
	t.Parallel()

	var got []Event
	sink := func(evt Event) { got = append(got, evt) }

	Notify(sink, Event{Phase: PhaseStarting, URL: "https://example.com", Total: 3})

	require.Len(t, got, 1)
	require.Equal(t, PhaseStarting, got[0].Phase)
	require.Equal(t, 3, got[0].Total)
}

func TestNotifyNilSink(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() {
		Notify(nil, Event{Phase: PhaseComplete})
	})
}

func TestNotifySwallowsPanic(t *testing.T) {
	t.Parallel()

	sink := func(Event) { panic("observer bug") }

	require.NotPanics(t, func() {
		Notify(sink, Event{Phase: PhaseExtracting, URL: "https://example.com"})
	})
}
