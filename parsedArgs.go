package cmdserver

import "strings"

type (
	// ParsedArgs is the immutable result of binding raw tokens to a
	// command's argument specification. Every declared argument name has
	// an entry in the value table; an empty list means an absent optional
	// argument with no default.
	ParsedArgs struct {
		commandName string
		raw         []string
		order       []string
		values      map[string][]string
	}
)

func (pa *ParsedArgs) CommandName() string {
	return pa.commandName
}

func (pa *ParsedArgs) Raw() []string {
	return pa.raw
}

// Names returns the argument names in declaration order.
func (pa *ParsedArgs) Names() []string {
	return pa.order
}

func (pa *ParsedArgs) Has(name string) bool {
	return len(pa.values[name]) > 0
}

// Get returns the first bound value of the named argument.
func (pa *ParsedArgs) Get(name string) (value string, exists bool) {
	list := pa.values[name]
	if len(list) == 0 {
		return
	}
	return list[0], true
}

func (pa *ParsedArgs) GetOr(name, fallback string) string {
	if value, exists := pa.Get(name); exists {
		return value
	}
	return fallback
}

func (pa *ParsedArgs) GetAll(name string) (values []string, exists bool) {
	values, exists = pa.values[name]
	return
}

func (pa *ParsedArgs) GetJoined(name, separator string) (joined string, exists bool) {
	list, exists := pa.values[name]
	if !exists {
		return
	}
	return strings.Join(list, separator), true
}

// List returns the bound values of the named argument, or an empty
// slice if the argument is absent.
func (pa *ParsedArgs) List(name string) []string {
	return pa.values[name]
}

func (pa *ParsedArgs) String() string {
	if len(pa.order) == 0 {
		return pa.commandName + ": <no arguments>"
	}

	lines := []string{pa.commandName + " arguments:"}
	for _, name := range pa.order {
		rendered := "<none>"
		if list := pa.values[name]; len(list) > 0 {
			rendered = strings.Join(list, " ")
		}
		lines = append(lines, "  "+name+": "+rendered)
	}

	return strings.Join(lines, "\n")
}
