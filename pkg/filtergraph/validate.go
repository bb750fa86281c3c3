package filtergraph

import (
	"fmt"
	"strconv"
	"strings"
)

// Validate checks the labeling invariants of the graph:
//   - every node has a chain and an output label
//   - a consumed label is a media input stream or was produced by an earlier node
//   - no label is produced twice or consumed twice
//   - every produced label is either consumed or one of the terminals
//   - every terminal is produced and left unconsumed
//
// Consuming only labels produced earlier also rules out cycles.
func (g *Graph) Validate(terminals ...Label) error {
	produced := make(map[Label]int)
	consumed := make(map[Label]int)

	for i, n := range g.Nodes {
		if len(n.Chain) == 0 {
			return fmt.Errorf("node %d: empty filter chain", i)
		}
		if n.Output == "" {
			return fmt.Errorf("node %d (%s): missing output label", i, n.Chain[0].Name)
		}

		for _, in := range n.Inputs {
			if idx, ok := parseInputStream(in); ok {
				if idx < 0 || idx >= g.MediaInputs {
					return fmt.Errorf("node %d: input %s references media %d, only %d bound", i, in, idx, g.MediaInputs)
				}
			} else if _, ok := produced[in]; !ok {
				return fmt.Errorf("node %d: label %s consumed before it is produced", i, in)
			}

			if prev, ok := consumed[in]; ok {
				return fmt.Errorf("node %d: label %s already consumed by node %d", i, in, prev)
			}
			consumed[in] = i
		}

		if prev, ok := produced[n.Output]; ok {
			return fmt.Errorf("node %d: label %s already produced by node %d", i, n.Output, prev)
		}
		if _, ok := parseInputStream(n.Output); ok {
			return fmt.Errorf("node %d: output %s collides with a media input label", i, n.Output)
		}
		produced[n.Output] = i
	}

	isTerminal := make(map[Label]bool, len(terminals))
	for _, t := range terminals {
		if _, ok := produced[t]; !ok {
			return fmt.Errorf("terminal %s is never produced", t)
		}
		if by, ok := consumed[t]; ok {
			return fmt.Errorf("terminal %s is consumed by node %d", t, by)
		}
		isTerminal[t] = true
	}

	for _, n := range g.Nodes {
		if _, ok := consumed[n.Output]; !ok && !isTerminal[n.Output] {
			return fmt.Errorf("label %s is produced but never consumed", n.Output)
		}
	}

	return nil
}

// parseInputStream recognises "N:v" / "N:a" media input labels
func parseInputStream(l Label) (int, bool) {
	s := string(l)
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return 0, false
	}
	kind := StreamKind(s[i+1:])
	if kind != StreamVideo && kind != StreamAudio {
		return 0, false
	}
	idx, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, false
	}
	return idx, true
}
