package pipeline

import (
	"errors"
	"strings"
	"testing"
)

func TestCollector(t *testing.T) {
	c := newCollector([]string{"s", "m", "l", ""})
	c.succeed(2, "derived/l/a.jpg")
	if !c.fail(1, errors.New("one")) {
		t.Error("first failure not reported as first")
	}
	if c.fail(0, errors.New("two")) {
		t.Error("second failure reported as first")
	}

	pending, written, first := c.snapshot()
	if strings.Join(pending, ",") != "" || len(pending) != 1 {
		t.Errorf("pending = %q, want the passthrough alias only", pending)
	}
	if strings.Join(written, ",") != "derived/l/a.jpg" {
		t.Errorf("written = %v", written)
	}
	if first == nil || first.Error() != "one" {
		t.Errorf("first = %v", first)
	}
	if c.failures != 2 {
		t.Errorf("failures = %d", c.failures)
	}
}
