package scope

import (
	"fmt"
	"strings"
)

// Describe renders a Scope as a human-readable expression, used by
// logging and the CLI's inspect subcommand so an InvalidScope's two
// conflicting operands can be read by an operator instead of only being
// detectable programmatically.
func Describe(s Scope) string {
	switch v := s.(type) {
	case Any:
		return "AnyScope"

	case TaintedScope:
		names := make([]string, len(v.Taints))
		for i, t := range v.Taints {
			names[i] = describeTaint(t)
		}
		return fmt.Sprintf("TaintScope(%s, [%s])", Describe(v.Inner), strings.Join(names, ", "))

	case Union:
		parts := make([]string, len(v.Children))
		for i, c := range v.Children {
			parts[i] = Describe(c)
		}
		return fmt.Sprintf("UnionScope(%s)", strings.Join(parts, ", "))

	case Node:
		return fmt.Sprintf("NodeScope(%s)", v.UUID)

	case Process:
		return fmt.Sprintf("ProcessScope(%s, worker=%d)", Describe(v.Parent), v.Wid)

	case Exact:
		return fmt.Sprintf("ExactScope(%s, %s)", Describe(v.Parent), v.Proc)

	case Invalid:
		return fmt.Sprintf("InvalidScope(%s, %s)", Describe(v.Left), Describe(v.Right))

	default:
		return "UnknownScope"
	}
}

func describeTaint(t Taint) string {
	switch v := t.(type) {
	case DefaultEnabledTaint:
		return "DefaultEnabledTaint"
	case ProcessorTypeTaint:
		return fmt.Sprintf("ProcessorTypeTaint(%d)", v.T)
	default:
		return fmt.Sprintf("Taint(tag=%d)", t.Tag())
	}
}
