package live

import (
	"reflect"
	"testing"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		event   Event
		to      State
		effects []Effect
	}{
		{"idle start", Idle, EventStart, Starting, []Effect{EffectAcquire}},
		{"idle stop is a no-op", Idle, EventStop, Idle, nil},
		{"idle remote error ignored", Idle, EventRemoteError, Idle, nil},
		{"starting ready", Starting, EventReady, Active, []Effect{EffectActivate}},
		{"starting fail", Starting, EventFail, Stopping, []Effect{EffectTeardown}},
		{"active stop", Active, EventStop, Stopping, []Effect{EffectTeardown}},
		{"active remote error", Active, EventRemoteError, Stopping, []Effect{EffectTeardown}},
		{"active remote close", Active, EventRemoteClose, Stopping, []Effect{EffectTeardown}},
		{"active restart", Active, EventStart, Stopping, []Effect{EffectTeardown, EffectRestart}},
		{"active ready ignored", Active, EventReady, Active, nil},
		{"stopping released", Stopping, EventReleased, Idle, nil},
		{"stopping stop ignored", Stopping, EventStop, Stopping, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to, effects := Transition(tt.from, tt.event)
			if to != tt.to {
				t.Errorf("Transition(%v, %v) state = %v, want %v", tt.from, tt.event, to, tt.to)
			}
			if !reflect.DeepEqual(effects, tt.effects) {
				t.Errorf("Transition(%v, %v) effects = %v, want %v", tt.from, tt.event, effects, tt.effects)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	if Active.String() != "active" {
		t.Errorf("Active.String() = %q", Active.String())
	}
	if State(42).String() != "unknown" {
		t.Errorf("State(42).String() = %q", State(42).String())
	}
}

func TestReleaseTwice(t *testing.T) {
	sc := &sessionContext{asm: newTestAssembler()}
	if sc.release() {
		t.Error("release of a never-activated session reported active")
	}
	if sc.release() {
		t.Error("second release reported active")
	}
	if sc.session != nil || sc.track != nil || sc.input != nil || sc.output != nil || sc.player != nil || sc.capture != nil {
		t.Error("resource references not cleared")
	}
	if sc.sender() != nil {
		t.Error("sender should be nil after release")
	}
}
