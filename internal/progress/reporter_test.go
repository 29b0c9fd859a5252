package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestCounterStartsOnce(t *testing.T) {
	var buf bytes.Buffer
	r := &CIReporter{Out: &buf}
	step := Counter(r, "repaired")

	step(1, 3)
	step(2, 3)
	step(3, 3)
	r.Finish()

	out := buf.String()
	if n := strings.Count(out, "Repairing 3 document(s)"); n != 1 {
		t.Errorf("expected Start once, got %d times:\n%s", n, out)
	}
	if !strings.Contains(out, "[3/3] repaired 3/3") {
		t.Errorf("missing final update:\n%s", out)
	}
	if !strings.HasSuffix(out, "Repairs complete\n") {
		t.Errorf("missing finish line:\n%s", out)
	}
}

func TestCIReporterFinishWithoutWork(t *testing.T) {
	var buf bytes.Buffer
	r := &CIReporter{Out: &buf}
	r.Finish()
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestNewReporterInCI(t *testing.T) {
	t.Setenv("CI", "true")
	if _, ok := NewReporter().(*CIReporter); !ok {
		t.Error("expected CIReporter when CI is set")
	}
}
