package session

// State is the session state.
type State int

const (
	// Idle sends wake probes and waits for the server to confirm a wake word.
	Idle State = iota
	// Recording streams microphone audio until silence or the maximum
	// duration, then waits for the upload acknowledgment.
	Recording
	// Playing renders the server's reply until its end-of-stream sentinel.
	Playing
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Playing:
		return "playing"
	default:
		return "unknown"
	}
}

// Event drives a state transition.
type Event int

const (
	// EventWakeConfirmed: the server answered a wake probe with WAKE_CONFIRMED.
	EventWakeConfirmed Event = iota
	// EventRecordingDone: the recording ended and its sentinel was sent.
	EventRecordingDone
	// EventAckReceived: the server acknowledged the upload.
	EventAckReceived
	// EventAckTimeout: no acknowledgment arrived within the ack window.
	EventAckTimeout
	// EventEndOfStream: the reply's sentinel frame was received.
	EventEndOfStream
	// EventLinkDown: the connection or link failed and was re-established.
	EventLinkDown
	// EventStale: nothing moved for the stale timeout and the connection was
	// re-established.
	EventStale
)

// String returns the snake_case event name.
func (e Event) String() string {
	switch e {
	case EventWakeConfirmed:
		return "wake_confirmed"
	case EventRecordingDone:
		return "recording_done"
	case EventAckReceived:
		return "ack_received"
	case EventAckTimeout:
		return "ack_timeout"
	case EventEndOfStream:
		return "end_of_stream"
	case EventLinkDown:
		return "link_down"
	case EventStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Next returns the state that follows s on e, and whether e is valid in s.
// Invalid events leave the state unchanged.
//
// EventRecordingDone keeps the machine in Recording: the upload is complete
// but the acknowledgment is still outstanding.
func Next(s State, e Event) (State, bool) {
	switch e {
	case EventLinkDown, EventStale:
		return Idle, true
	}
	switch s {
	case Idle:
		if e == EventWakeConfirmed {
			return Recording, true
		}
	case Recording:
		switch e {
		case EventRecordingDone:
			return Recording, true
		case EventAckReceived:
			return Playing, true
		case EventAckTimeout:
			return Idle, true
		}
	case Playing:
		if e == EventEndOfStream {
			return Idle, true
		}
	}
	return s, false
}
