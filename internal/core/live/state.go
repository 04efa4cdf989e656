package live

// State is the lifecycle state of a [Manager].
type State int

const (
	// Idle means no session and no acquired resources.
	Idle State = iota

	// Starting means audio contexts, microphone and the remote session are
	// being acquired.
	Starting

	// Active means audio is streaming in both directions.
	Active

	// Stopping means teardown is in progress.
	Stopping
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Event drives a state transition.
type Event int

const (
	// EventStart is a user-initiated start.
	EventStart Event = iota

	// EventReady means every resource was acquired and the handshake finished.
	EventReady

	// EventFail means acquisition failed part way.
	EventFail

	// EventStop is a user-initiated stop.
	EventStop

	// EventRemoteError is the remote session's error callback.
	EventRemoteError

	// EventRemoteClose is the remote session's close callback.
	EventRemoteClose

	// EventReleased means teardown finished releasing resources.
	EventReleased
)

// String returns the name of the event.
func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventReady:
		return "ready"
	case EventFail:
		return "fail"
	case EventStop:
		return "stop"
	case EventRemoteError:
		return "remote_error"
	case EventRemoteClose:
		return "remote_close"
	case EventReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Effect is a side effect the [Manager] performs after a transition, in order.
type Effect int

const (
	// EffectAcquire opens audio contexts, microphone and remote session.
	EffectAcquire Effect = iota

	// EffectActivate marks the session live.
	EffectActivate

	// EffectTeardown releases every resource of the current session.
	EffectTeardown

	// EffectRestart fires [EventStart] once teardown has completed.
	EffectRestart
)

// Transition maps (state, event) to the next state and the effects to run.
// Events that make no sense in a state leave it unchanged with no effects,
// which is what makes repeated stops harmless.
func Transition(s State, e Event) (State, []Effect) {
	switch s {
	case Idle:
		if e == EventStart {
			return Starting, []Effect{EffectAcquire}
		}
	case Starting:
		switch e {
		case EventReady:
			return Active, []Effect{EffectActivate}
		case EventFail, EventStop, EventRemoteError, EventRemoteClose:
			return Stopping, []Effect{EffectTeardown}
		case EventStart:
			return Stopping, []Effect{EffectTeardown, EffectRestart}
		}
	case Active:
		switch e {
		case EventStop, EventRemoteError, EventRemoteClose:
			return Stopping, []Effect{EffectTeardown}
		case EventStart:
			return Stopping, []Effect{EffectTeardown, EffectRestart}
		}
	case Stopping:
		if e == EventReleased {
			return Idle, nil
		}
	}
	return s, nil
}
