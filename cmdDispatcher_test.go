package cmdserver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jimsnab/go-lane"
)

type (
	echoHandler  struct{}
	panicHandler struct{}
)

func (h *echoHandler) Name() string { return "ECHO" }

func (h *echoHandler) Parser() *ArgParser {
	return NewArgParserBuilder(h.Name()).
		Required("first", "The first word").
		OptionalRemainder("rest", "The remaining words").
		Build()
}

func (h *echoHandler) Execute(args *ParsedArgs) (string, error) {
	words := append([]string{}, args.List("first")...)
	words = append(words, args.List("rest")...)
	return strings.Join(words, " "), nil
}

func (h *panicHandler) Name() string { return "BOOM" }

func (h *panicHandler) Parser() *ArgParser {
	return NewArgParser(h.Name(), nil)
}

func (h *panicHandler) Execute(args *ParsedArgs) (string, error) {
	panic("handler exploded")
}

func dispatchSetup(t *testing.T) (l lane.Lane, cd *cmdDispatcher) {
	t.Helper()
	l = lane.NewTestingLane(context.Background())
	cd = newCmdDispatcher()
	return
}

func TestDispatchPingDefault(t *testing.T) {
	l, cd := dispatchSetup(t)

	output, err := cd.dispatchHandler(l, parseRequestLine("PING"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if output != "PONG" {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestDispatchPingEcho(t *testing.T) {
	l, cd := dispatchSetup(t)

	output, err := cd.dispatchHandler(l, parseRequestLine("PING hello world"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if output != "hello world" {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestDispatchCaseInsensitive(t *testing.T) {
	l, cd := dispatchSetup(t)

	output, err := cd.dispatchHandler(l, parseRequestLine("ping"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if output != "PONG" {
		t.Errorf("unexpected output: %s", output)
	}

	output, err = cd.dispatchHandler(l, parseRequestLine("PiNg mixed"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if output != "mixed" {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestDispatchCollapsesWhitespace(t *testing.T) {
	l, cd := dispatchSetup(t)

	output, err := cd.dispatchHandler(l, parseRequestLine("PING   hello    world"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if output != "hello world" {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	l, cd := dispatchSetup(t)

	_, err := cd.dispatchHandler(l, parseRequestLine("FOO bar"))
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if !strings.Contains(err.Error(), "FOO") {
		t.Errorf("offending token not named: %s", err)
	}
}

func TestDispatchNotImplemented(t *testing.T) {
	l, cd := dispatchSetup(t)

	for _, name := range []string{"GET x", "SET x y", "get x"} {
		_, err := cd.dispatchHandler(l, parseRequestLine(name))
		if !errors.Is(err, ErrNotImplemented) {
			t.Fatalf("%s: expected ErrNotImplemented, got %v", name, err)
		}
		if errors.Is(err, ErrUnknownCommand) {
			t.Errorf("%s: fault must be distinct from unknown command", name)
		}
	}
}

func TestDispatchArgumentError(t *testing.T) {
	l, cd := dispatchSetup(t)
	if err := cd.register(&echoHandler{}); err != nil {
		t.Fatal(err)
	}

	_, err := cd.dispatchHandler(l, parseRequestLine("ECHO"))
	if err == nil {
		t.Fatal("expected an argument error")
	}

	var argErr *ArgErr
	if !errors.As(err, &argErr) {
		t.Fatalf("expected *ArgErr, got %T", err)
	}
	if argErr.Message() != "Missing required argument(s): first" {
		t.Errorf("unexpected message: %s", argErr.Message())
	}
}

func TestDispatchRegisteredHandler(t *testing.T) {
	l, cd := dispatchSetup(t)
	if err := cd.register(&echoHandler{}); err != nil {
		t.Fatal(err)
	}

	output, err := cd.dispatchHandler(l, parseRequestLine("echo one two three"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if output != "one two three" {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestDispatchDuplicateRegistration(t *testing.T) {
	_, cd := dispatchSetup(t)

	if err := cd.register(&pingHandler{}); err == nil {
		t.Error("duplicate registration must fail")
	}
	if err := cd.registerPlaceholder("ping"); err == nil {
		t.Error("case-insensitive duplicate registration must fail")
	}
	if err := cd.registerPlaceholder("  "); err == nil {
		t.Error("blank command name must fail")
	}
}

func TestDispatchPanicIsolation(t *testing.T) {
	l, cd := dispatchSetup(t)
	if err := cd.register(&panicHandler{}); err != nil {
		t.Fatal(err)
	}

	output, err := cd.dispatchHandler(l, parseRequestLine("BOOM"))
	if err == nil {
		t.Fatal("expected an error from the panicking handler")
	}
	if output != "" {
		t.Errorf("unexpected output: %s", output)
	}

	// the dispatcher must still work afterward
	output, err = cd.dispatchHandler(l, parseRequestLine("PING still here"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if output != "still here" {
		t.Errorf("unexpected output: %s", output)
	}
}
