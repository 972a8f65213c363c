package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
)

func TestPercentage(t *testing.T) {
	testCases := []struct {
		p    Progress
		want float64
	}{
		{Progress{Current: 0, Total: 8}, 0},
		{Progress{Current: 4, Total: 8}, 50},
		{Progress{Current: 8, Total: 8}, 100},
		{Progress{Current: 0, Total: 0}, 100},
	}

	for _, tc := range testCases {
		if got := tc.p.Percentage(); got != tc.want {
			t.Errorf("%+v.Percentage() = %v, want %v", tc.p, got, tc.want)
		}
	}
}

func TestLoggerThrottlesDraws(t *testing.T) {
	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "progress_test",
		Level:  hclog.Debug,
		Output: &buf,
	})

	l := NewLogger(logger, 25)
	l.Init(Progress{Phase: PhaseBackup, Total: 100})
	for i := 0; i < 100; i++ {
		l.Step()
		l.Draw(Progress{Phase: PhaseBackup, Current: i, Total: 100})
	}
	l.Clear()

	if n := strings.Count(buf.String(), "Progress"); n != 3 {
		t.Errorf("logged %d progress lines, want 3:\n%s", n, buf.String())
	}
	if l.steps != 100 {
		t.Errorf("steps = %d, want 100", l.steps)
	}
}

func TestRecorder(t *testing.T) {
	var ind Indicator = &Recorder{}
	ind.Init(Progress{Total: 2})
	ind.Draw(Progress{Current: 1, Total: 2})
	ind.Step()
	ind.Clear()

	r := ind.(*Recorder)
	if len(r.Inits) != 1 || len(r.Draws) != 1 || r.Steps != 1 || r.Clears != 1 {
		t.Errorf("Recorder = %+v", r)
	}
}
