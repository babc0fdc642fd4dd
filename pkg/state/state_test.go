package state

import "testing"

func TestAllEnumeratedStatesAreValid(t *testing.T) {
	for _, s := range AllStates() {
		if !s.IsValid() {
			t.Errorf("state %q reported invalid", s)
		}
	}
}

func TestTerminalStatesRejectEveryTransition(t *testing.T) {
	for _, term := range []PipelineState{Completed, Failed, GaveUp} {
		if !term.IsTerminal() {
			t.Errorf("%q expected terminal", term)
		}
		for _, to := range AllStates() {
			if CanTransition(term, to) {
				t.Errorf("terminal state %q allowed transition to %q", term, to)
			}
		}
	}
}

func TestDeclaredTransitions(t *testing.T) {
	cases := []struct {
		from, to PipelineState
		want     bool
	}{
		{ReceivedTask, AnalyzingTask, true},
		{ReceivedTask, Planning, false},
		{VerificationPassed, Completed, true},
		{VerificationPassed, ReadyForExecution, true},
		{VerificationPassed, Planning, false},
		{VerificationFailed, GaveUp, true},
		{Executing, Completed, false},
		{Completed, Failed, false},
	}
	for _, c := range cases {
		got := CanTransition(c.from, c.to)
		if got != c.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestNonTerminalStatesHaveAtLeastOneOutgoingTransition(t *testing.T) {
	for _, s := range AllStates() {
		if s.IsTerminal() {
			continue
		}
		found := false
		for _, to := range AllStates() {
			if CanTransition(s, to) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("non-terminal state %q has no outgoing transition", s)
		}
	}
}
