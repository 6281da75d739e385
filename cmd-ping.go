package cmdserver

import "strings"

type (
	pingHandler struct{}
)

func (h *pingHandler) Name() string {
	return "PING"
}

func (h *pingHandler) Parser() *ArgParser {
	return NewArgParserBuilder(h.Name()).
		OptionalRemainderWithDefault("message", "Custom response to send back to the client", "PONG").
		Build()
}

func (h *pingHandler) Execute(args *ParsedArgs) (string, error) {
	return strings.Join(args.List("message"), " "), nil
}
