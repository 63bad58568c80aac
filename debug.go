package vtrie

import (
	"fmt"
	"strings"
)

const indentStep = "  "

// Dump renders the base tree's node structure for debugging. The output
// format is unstable; do not parse it.
func (t *Tree) Dump() string {
	t.mu.Lock()
	root := t.root
	t.mu.Unlock()
	return dumpNode(root)
}

func dumpNode(root *node) string {
	var buf strings.Builder
	if root == nil {
		buf.WriteString("<empty>\n")
		return buf.String()
	}
	dumpSubtree(&buf, "", root)
	return buf.String()
}

func dumpSubtree(buf *strings.Builder, indent string, n *node) {
	fmt.Fprintf(buf, "%s%q", indent, n.prefix)
	if n.leaf != nil {
		fmt.Fprintf(buf, " = %s @%d", loggableValue(n.leaf.value), n.leaf.ts)
	}
	fmt.Fprintf(buf, " (maxTs=%d)\n", n.maxTs)
	for _, e := range n.edges {
		dumpSubtree(buf, indent+indentStep, e.child)
	}
}

func loggableValue(v []byte) string {
	const maxShown = 32
	if len(v) > maxShown {
		return fmt.Sprintf("%q... (%d bytes)", v[:maxShown], len(v))
	}
	return fmt.Sprintf("%q", v)
}
