package window

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestStepTransitions(t *testing.T) {
	w, err := New(0, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, out := Step(w, Back); got.Start != 0 || out != Continue {
		t.Fatalf("Back at zero = %d, %v", got.Start, out)
	}
	fwd, _ := Step(w, Forward)
	if fwd.Start != 100 {
		t.Fatalf("Forward start = %d, want 100", fwd.Start)
	}
	back, _ := Step(fwd, Back)
	if back.Start != w.Start {
		t.Fatalf("Forward then Back = %d, want %d", back.Start, w.Start)
	}
	partial := Window{Start: 30, Size: 100}
	if got, _ := Step(partial, Back); got.Start != 0 {
		t.Fatalf("Back from 30 = %d, want 0", got.Start)
	}
	if _, out := Step(w, Confirm); out != Accepted {
		t.Fatalf("Confirm outcome = %v", out)
	}
	if _, out := Step(w, Cancel); out != Rejected {
		t.Fatalf("Cancel outcome = %v", out)
	}
	if got, out := Step(w, Signal(42)); got != w || out != Continue {
		t.Fatalf("unknown signal changed state: %+v %v", got, out)
	}
}

func TestForwardIsUnbounded(t *testing.T) {
	w := Window{Start: 0, Size: 10, TotalHint: 15}
	for i := 0; i < 5; i++ {
		w, _ = Step(w, Forward)
	}
	if w.Start != 50 || !w.PastEnd() {
		t.Fatalf("window = %+v, want start 50 past end", w)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(0, 0); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("New(0,0) error = %v", err)
	}
	w, err := New(-5, 10)
	if err != nil || w.Start != 0 {
		t.Fatalf("New(-5,10) = %+v, %v", w, err)
	}
	if w.String() != "lines 1 to 10" {
		t.Fatalf("String = %q", w.String())
	}
}

func TestDrive(t *testing.T) {
	start := Window{Start: 0, Size: 100, TotalHint: -1}
	tests := []struct {
		name    string
		script  Script
		wantOK  bool
		wantPos int
	}{
		{name: "confirm immediately", script: Script{Confirm}, wantOK: true, wantPos: 0},
		{name: "forward twice", script: Script{Forward, Forward, Confirm}, wantOK: true, wantPos: 200},
		{name: "forward back", script: Script{Forward, Back, Back, Confirm}, wantOK: true, wantPos: 0},
		{name: "cancel after moves", script: Script{Forward, Forward, Back, Cancel}, wantOK: false, wantPos: 0},
		{name: "exhausted script cancels", script: Script{Forward}, wantOK: false, wantPos: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			script := tc.script
			got, ok, err := Drive(context.Background(), start, &script)
			if err != nil {
				t.Fatalf("Drive: %v", err)
			}
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && got.Start != tc.wantPos {
				t.Fatalf("start = %d, want %d", got.Start, tc.wantPos)
			}
		})
	}
}

func TestDriveStopsOnContextAndErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	script := Script{Confirm}
	if _, ok, err := Drive(ctx, Window{Size: 1}, &script); ok || !errors.Is(err, context.Canceled) {
		t.Fatalf("Drive with cancelled ctx = %v, %v", ok, err)
	}
	boom := errors.New("boom")
	p := PrompterFunc(func(context.Context, Window) (Signal, error) { return Confirm, boom })
	if _, ok, err := Drive(context.Background(), Window{Size: 1}, p); ok || !errors.Is(err, boom) {
		t.Fatalf("Drive with failing prompter = %v, %v", ok, err)
	}
}

func TestTerminalPrompter(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal("Import", strings.NewReader("n\nx\nn\np\nv\n"), &out)
	got, ok, err := Drive(context.Background(), Window{Start: 0, Size: 5000, TotalHint: -1}, term)
	if err != nil || !ok {
		t.Fatalf("Drive = %v, %v", ok, err)
	}
	if got.Start != 5000 {
		t.Fatalf("start = %d, want 5000", got.Start)
	}
	if !strings.Contains(out.String(), "lines 5001 to 10000") {
		t.Fatalf("prompt output missing range: %q", out.String())
	}
	if !strings.Contains(out.String(), `unknown choice "x"`) {
		t.Fatalf("prompt output missing rejection: %q", out.String())
	}
}

func TestTerminalEOFCancels(t *testing.T) {
	term := NewTerminal("Export", strings.NewReader(""), &bytes.Buffer{})
	if _, ok, err := Drive(context.Background(), Window{Size: 10}, term); ok || err != nil {
		t.Fatalf("Drive at EOF = %v, %v", ok, err)
	}
	term = NewTerminal("Export", strings.NewReader("n"), &bytes.Buffer{})
	sig, err := term.Prompt(context.Background(), Window{Size: 10})
	if err != nil || sig != Forward {
		t.Fatalf("unterminated answer = %v, %v", sig, err)
	}
}
