package progress

import "testing"

// Tests run with stderr redirected to a non-terminal, so Start is a
// no-op; the point here is that calling the rest of the API without a
// terminal attached never panics.
func TestSpinner_NonTerminalIsSilent(t *testing.T) {
	s := New("working")
	s.Start()
	s.UpdateText("still working")
	s.Stop()
}

func TestSpinner_SuccessAndFailAreSafeBeforeStart(t *testing.T) {
	s := New("working")
	s.Success("done")

	s2 := New("working")
	s2.Fail("broke")
}
