package runtime

import (
	"fmt"
	"strings"

	"github.com/latticeml/lattice/pkg/compiler"
)

// Dot renders a compiled symbol sequence as a Graphviz digraph. Application
// entries draw as ellipses and train entries as boxes; edges are annotated
// with the producer port feeding each argument slot, and dataless ordering
// edges draw dashed.
func Dot(name string, symbols []compiler.Symbol) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", name)
	b.WriteString("\trankdir=LR;\n")
	for position, symbol := range symbols {
		shape := "ellipse"
		if _, ok := symbol.Instruction.(*compiler.Train); ok {
			shape = "box"
		}
		fmt.Fprintf(&b, "\ts%d [label=%q shape=%s];\n", position, symbol.Instruction.String(), shape)
		for slot, argument := range symbol.Arguments {
			switch argument.Kind {
			case compiler.ArgumentReference:
				fmt.Fprintf(&b, "\ts%d -> s%d [label=\"%d:%d\"];\n",
					argument.Position, position, argument.Port, slot)
			case compiler.ArgumentLiteral:
				fmt.Fprintf(&b, "\tl%d_%d [label=%q shape=plaintext];\n",
					position, slot, fmt.Sprint(argument.Value))
				fmt.Fprintf(&b, "\tl%d_%d -> s%d [label=\"%d\"];\n", position, slot, position, slot)
			}
		}
		for _, producer := range symbol.After {
			fmt.Fprintf(&b, "\ts%d -> s%d [style=dashed];\n", producer, position)
		}
	}
	b.WriteString("}\n")
	return b.String()
}
