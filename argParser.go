package cmdserver

import (
	"fmt"
	"strings"
)

// An argument's arity controls how many raw tokens it consumes; a
// remainder argument drains everything left and must therefore be the
// final argument of its command.
const (
	AritySingle ArgArity = iota
	ArityRemainder
)

type (
	ArgArity int

	// ArgDef describes one positional argument of a command. Defaults
	// apply when the client supplies no token for the argument.
	ArgDef struct {
		Name        string
		Description string
		Required    bool
		Arity       ArgArity
		Default     []string
	}

	// ArgParser binds raw command tokens to an ordered argument
	// specification. The specification is fixed at construction time.
	ArgParser struct {
		commandName string
		specs       []ArgDef
	}

	ArgParserBuilder struct {
		commandName string
		specs       []ArgDef
	}

	// ArgErr is an argument validation failure. It carries the rendered
	// usage text of the command that rejected the input.
	ArgErr struct {
		commandName string
		message     string
		usage       string
	}
)

func RequiredArg(name, description string) ArgDef {
	return ArgDef{
		Name:        name,
		Description: description,
		Required:    true,
		Arity:       AritySingle,
	}
}

func OptionalArg(name, description string) ArgDef {
	return ArgDef{
		Name:        name,
		Description: description,
		Arity:       AritySingle,
	}
}

func OptionalArgWithDefault(name, description, defaultValue string) ArgDef {
	return ArgDef{
		Name:        name,
		Description: description,
		Arity:       AritySingle,
		Default:     []string{defaultValue},
	}
}

func RequiredRemainderArg(name, description string) ArgDef {
	return ArgDef{
		Name:        name,
		Description: description,
		Required:    true,
		Arity:       ArityRemainder,
	}
}

func OptionalRemainderArg(name, description string) ArgDef {
	return ArgDef{
		Name:        name,
		Description: description,
		Arity:       ArityRemainder,
	}
}

func OptionalRemainderArgWithDefault(name, description string, defaultValues ...string) ArgDef {
	return ArgDef{
		Name:        name,
		Description: description,
		Arity:       ArityRemainder,
		Default:     append([]string{}, defaultValues...),
	}
}

// usageToken renders the argument for the one-line usage string, e.g.
// <key>, [message...], [limit]=10000
func (def *ArgDef) usageToken() string {
	base := def.Name
	if def.Arity == ArityRemainder {
		base = base + "..."
	}

	var token string
	if def.Required {
		token = "<" + base + ">"
	} else {
		token = "[" + base + "]"
	}

	if def.Arity == AritySingle && len(def.Default) > 0 {
		return token + "=" + def.Default[0]
	}

	return token
}

// summary renders the argument's line of the detailed usage text.
func (def *ArgDef) summary() string {
	requirement := "optional"
	if def.Required {
		requirement = "required"
	}

	arity := "single"
	if def.Arity == ArityRemainder {
		arity = "variadic"
	}

	text := fmt.Sprintf("%s (%s %s): %s", def.Name, requirement, arity, def.Description)

	if len(def.Default) > 0 {
		var rendered string
		if def.Arity == AritySingle {
			rendered = def.Default[0]
		} else {
			rendered = strings.Join(def.Default, " ")
		}
		text = text + fmt.Sprintf(" [default: %s]", rendered)
	}

	return text
}

func NewArgParser(commandName string, specs []ArgDef) *ArgParser {
	return &ArgParser{
		commandName: commandName,
		specs:       specs,
	}
}

func NewArgParserBuilder(commandName string) *ArgParserBuilder {
	return &ArgParserBuilder{commandName: commandName}
}

func (b *ArgParserBuilder) Arg(def ArgDef) *ArgParserBuilder {
	b.specs = append(b.specs, def)
	return b
}

func (b *ArgParserBuilder) Required(name, description string) *ArgParserBuilder {
	return b.Arg(RequiredArg(name, description))
}

func (b *ArgParserBuilder) Optional(name, description string) *ArgParserBuilder {
	return b.Arg(OptionalArg(name, description))
}

func (b *ArgParserBuilder) OptionalWithDefault(name, description, defaultValue string) *ArgParserBuilder {
	return b.Arg(OptionalArgWithDefault(name, description, defaultValue))
}

func (b *ArgParserBuilder) RequiredRemainder(name, description string) *ArgParserBuilder {
	return b.Arg(RequiredRemainderArg(name, description))
}

func (b *ArgParserBuilder) OptionalRemainder(name, description string) *ArgParserBuilder {
	return b.Arg(OptionalRemainderArg(name, description))
}

func (b *ArgParserBuilder) OptionalRemainderWithDefault(name, description string, defaultValues ...string) *ArgParserBuilder {
	return b.Arg(OptionalRemainderArgWithDefault(name, description, defaultValues...))
}

func (b *ArgParserBuilder) Build() *ArgParser {
	return NewArgParser(b.commandName, b.specs)
}

func (ap *ArgParser) CommandName() string {
	return ap.commandName
}

// Usage renders the one-line usage string, e.g.
// "Usage: PING [message...]"
func (ap *ArgParser) Usage() string {
	if len(ap.specs) == 0 {
		return "Usage: " + ap.commandName
	}

	tokens := make([]string, 0, len(ap.specs))
	for _, spec := range ap.specs {
		tokens = append(tokens, spec.usageToken())
	}

	return fmt.Sprintf("Usage: %s %s", ap.commandName, strings.Join(tokens, " "))
}

// UsageWithDetails renders the usage line plus one summary line per
// argument.
func (ap *ArgParser) UsageWithDetails() string {
	sections := []string{ap.Usage()}

	if len(ap.specs) > 0 {
		details := []string{"Arguments:"}
		for _, spec := range ap.specs {
			details = append(details, "  "+spec.summary())
		}
		sections = append(sections, strings.Join(details, "\n"))
	}

	return strings.Join(sections, "\n")
}

func (ap *ArgParser) errorf(format string, args ...any) *ArgErr {
	return &ArgErr{
		commandName: ap.commandName,
		message:     fmt.Sprintf(format, args...),
		usage:       ap.UsageWithDetails(),
	}
}

// Parse binds raw tokens to the argument specification, in declaration
// order. Tokens are trimmed and empty tokens dropped before binding.
// Leftover tokens are rejected before missing required arguments are
// reported; all missing arguments are reported together.
func (ap *ArgParser) Parse(tokens []string) (*ParsedArgs, *ArgErr) {
	raw := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token != "" {
			raw = append(raw, token)
		}
	}

	queue := append([]string{}, raw...)
	values := make(map[string][]string, len(ap.specs))
	missing := []string{}

	for index := range ap.specs {
		spec := &ap.specs[index]

		switch spec.Arity {
		case AritySingle:
			if len(queue) > 0 {
				values[spec.Name] = []string{queue[0]}
				queue = queue[1:]
			} else if spec.Default != nil {
				values[spec.Name] = append([]string{}, spec.Default...)
			} else {
				if spec.Required {
					missing = append(missing, spec.Name)
				}
				values[spec.Name] = []string{}
			}

		case ArityRemainder:
			if index != len(ap.specs)-1 {
				return nil, ap.errorf("Argument '%s' captures the remaining input and must be the final argument", spec.Name)
			}

			if len(queue) > 0 {
				values[spec.Name] = queue
				queue = nil
			} else if spec.Default != nil {
				values[spec.Name] = append([]string{}, spec.Default...)
			} else {
				if spec.Required {
					missing = append(missing, spec.Name)
				}
				values[spec.Name] = []string{}
			}
		}
	}

	if len(queue) > 0 {
		return nil, ap.errorf("Unexpected argument(s) starting at '%s'", strings.Join(queue, " "))
	}

	if len(missing) > 0 {
		return nil, ap.errorf("Missing required argument(s): %s", strings.Join(missing, ", "))
	}

	order := make([]string, 0, len(ap.specs))
	for _, spec := range ap.specs {
		order = append(order, spec.Name)
	}

	return &ParsedArgs{
		commandName: ap.commandName,
		raw:         raw,
		order:       order,
		values:      values,
	}, nil
}

func (e *ArgErr) Error() string {
	return e.message + "\n" + e.usage
}

func (e *ArgErr) Message() string {
	return e.message
}

func (e *ArgErr) Usage() string {
	return e.usage
}

func (e *ArgErr) Command() string {
	return e.commandName
}
