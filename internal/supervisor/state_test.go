package supervisor

import "testing"

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StateIdle, StateRunning},
		{StateIdle, StateErrored},
		{StateRunning, StateStopping},
		{StateRunning, StateStopped},
		{StateRunning, StateErrored},
		{StateStopping, StateStopped},
	}
	for _, tr := range allowed {
		if !canTransition(tr.from, tr.to) {
			t.Fatalf("%v -> %v should be allowed", tr.from, tr.to)
		}
	}
	denied := []struct{ from, to State }{
		{StateStopped, StateRunning},
		{StateStopped, StateStopping},
		{StateErrored, StateRunning},
		{StateStopping, StateRunning},
		{StateIdle, StateStopping},
		{StateIdle, StateStopped},
	}
	for _, tr := range denied {
		if canTransition(tr.from, tr.to) {
			t.Fatalf("%v -> %v should be denied", tr.from, tr.to)
		}
	}
}

func TestTransitionNoopOnIllegal(t *testing.T) {
	p := &ManagedProcess{state: StateStopped}
	if p.transition(StateRunning) {
		t.Fatalf("terminal state accepted a transition")
	}
	if p.state != StateStopped {
		t.Fatalf("state mutated by illegal transition: %v", p.state)
	}
}

func TestStateStrings(t *testing.T) {
	want := map[State]string{
		StateIdle:     "idle",
		StateRunning:  "running",
		StateStopping: "stopping",
		StateStopped:  "stopped",
		StateErrored:  "errored",
	}
	for st, s := range want {
		if st.String() != s {
			t.Fatalf("State(%d).String() = %q, want %q", st, st.String(), s)
		}
	}
}
