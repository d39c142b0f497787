package window

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// Prompter shows the current window and returns the user's choice.
type Prompter interface {
	Prompt(ctx context.Context, w Window) (Signal, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, w Window) (Signal, error)

func (f PrompterFunc) Prompt(ctx context.Context, w Window) (Signal, error) {
	return f(ctx, w)
}

// Drive loops on Back and Forward until the prompter confirms or cancels. ok
// is false when the selection was cancelled; a cancelled context or a
// prompter error also yields no selection.
func Drive(ctx context.Context, start Window, p Prompter) (Window, bool, error) {
	w := start
	for {
		if err := ctx.Err(); err != nil {
			return start, false, err
		}
		sig, err := p.Prompt(ctx, w)
		if err != nil {
			return start, false, err
		}
		next, outcome := Step(w, sig)
		switch outcome {
		case Accepted:
			return next, true, nil
		case Rejected:
			return start, false, nil
		}
		w = next
	}
}

// Script replays a fixed list of signals and then cancels.
type Script []Signal

func (s *Script) Prompt(context.Context, Window) (Signal, error) {
	if len(*s) == 0 {
		return Cancel, nil
	}
	sig := (*s)[0]
	*s = (*s)[1:]
	return sig, nil
}

// Terminal prompts on a line-oriented terminal: p(revious), n(ext), v(alidate)
// and q(uit). An empty answer confirms.
type Terminal struct {
	Title string
	In    *bufio.Reader
	Out   io.Writer
}

func NewTerminal(title string, in io.Reader, out io.Writer) *Terminal {
	return &Terminal{Title: title, In: bufio.NewReader(in), Out: out}
}

func (t *Terminal) Prompt(ctx context.Context, w Window) (Signal, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Cancel, err
		}
		fmt.Fprintf(t.Out, "%s, %s [p/n/v/q]: ", t.Title, w)
		answer, err := t.In.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && answer != "") {
			if errors.Is(err, io.EOF) {
				return Cancel, nil
			}
			return Cancel, errors.Wrap(err, "read answer")
		}
		if sig, ok := ParseSignal(answer); ok {
			return sig, nil
		}
		fmt.Fprintf(t.Out, "unknown choice %q\n", strings.TrimSpace(answer))
	}
}

// ParseSignal maps a typed answer to a signal.
func ParseSignal(answer string) (Signal, bool) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "v", "valider", "confirm", "y", "yes":
		return Confirm, true
	case "p", "prev", "previous", "précédent", "back":
		return Back, true
	case "n", "next", "suivant", "forward":
		return Forward, true
	case "q", "quit", "annuler", "cancel":
		return Cancel, true
	}
	return 0, false
}
