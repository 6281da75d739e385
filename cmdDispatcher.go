package cmdserver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jimsnab/go-lane"
)

var (
	// ErrUnknownCommand indicates the first token of a request line does
	// not match any registered command name.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrNotImplemented indicates a command that is declared at the
	// registry boundary but whose handler does not exist yet.
	ErrNotImplemented = errors.New("not implemented")
)

type (
	// CommandHandler is the execution unit bound to a command name. New
	// commands plug into the dispatcher as (name, argument specification,
	// execute) without touching the connection machinery. A command with
	// no arguments returns NewArgParser(name, nil) from Parser.
	CommandHandler interface {
		Name() string
		Parser() *ArgParser
		Execute(args *ParsedArgs) (string, error)
	}

	// cmdRecord is one dispatch table entry. A nil handler marks a
	// declared-but-unimplemented command.
	cmdRecord struct {
		name    string
		handler CommandHandler
	}

	cmdDispatcher struct {
		commands map[string]*cmdRecord
	}

	rawRequest struct {
		line string
		name string
		args []string
	}
)

func newCmdDispatcher() *cmdDispatcher {
	cd := &cmdDispatcher{
		commands: map[string]*cmdRecord{},
	}

	cd.register(&pingHandler{})

	// declared commands whose handlers are not written yet; dispatching
	// to one must produce a distinct not-implemented fault
	cd.registerPlaceholder("GET")
	cd.registerPlaceholder("SET")

	return cd
}

// parseRequestLine splits a request line into a command token and
// whitespace-delimited argument tokens. Runs of whitespace count as one
// separator.
func parseRequestLine(line string) rawRequest {
	req := rawRequest{line: line}

	fields := strings.Fields(line)
	if len(fields) > 0 {
		req.name = fields[0]
		req.args = fields[1:]
	}

	return req
}

func (cd *cmdDispatcher) addRecord(name string, handler CommandHandler) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return errors.New("command name cannot be empty")
	}

	if _, exists := cd.commands[key]; exists {
		return fmt.Errorf("command %s is already registered", name)
	}

	cd.commands[key] = &cmdRecord{
		name:    name,
		handler: handler,
	}
	return nil
}

func (cd *cmdDispatcher) register(handler CommandHandler) error {
	return cd.addRecord(handler.Name(), handler)
}

func (cd *cmdDispatcher) registerPlaceholder(name string) error {
	return cd.addRecord(name, nil)
}

// matchCommand resolves a command name, case-insensitive, against the
// registered set.
func (cd *cmdDispatcher) matchCommand(name string) (*cmdRecord, error) {
	trimmed := strings.TrimSpace(name)

	rec, exists := cd.commands[strings.ToLower(trimmed)]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, trimmed)
	}

	return rec, nil
}

// dispatchHandler resolves the command, validates its arguments and runs
// the handler. A handler panic is contained here so that one bad request
// cannot take down other connections.
func (cd *cmdDispatcher) dispatchHandler(l lane.Lane, req rawRequest) (output string, err error) {
	rec, err := cd.matchCommand(req.name)
	if err != nil {
		return
	}

	if rec.handler == nil {
		err = fmt.Errorf("%s: %w", rec.name, ErrNotImplemented)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.Errorf("panic in %s handler: %v", rec.name, r)
			output = ""
			err = fmt.Errorf("internal error executing %s", rec.name)
		}
	}()

	parsed, argErr := rec.handler.Parser().Parse(req.args)
	if argErr != nil {
		err = argErr
		return
	}

	l.Tracef("dispatching %s with %d arg(s)", rec.name, len(parsed.Raw()))

	return rec.handler.Execute(parsed)
}
