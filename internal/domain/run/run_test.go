package run

import "testing"

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusStopped, StatusFailed, StatusCompleted} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if StatusRunning.Terminal() {
		t.Error("running should not be terminal")
	}
	if Status("unknown").Terminal() {
		t.Error("unknown status should not be terminal")
	}
}

func TestControlSubjects(t *testing.T) {
	if got := ControlSubject("r1"); got != "run.r1.control" {
		t.Errorf("ControlSubject = %q", got)
	}
	if got := InstanceControlSubject("r1", "inst-a"); got != "run.r1.control.inst-a" {
		t.Errorf("InstanceControlSubject = %q", got)
	}
}
