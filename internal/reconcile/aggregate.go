package reconcile

import "github.com/aardg/massabalans/internal/orderline"

// Aggregate folds lines sharing a natural key into one fact whose quantity is
// the sum of the group, negative corrections included. Facts keep the order in
// which their key first appeared.
func Aggregate(lines []orderline.OrderLine) []orderline.OrderLine {
	facts, _ := aggregate(lines)
	return facts
}

func aggregate(lines []orderline.OrderLine) ([]orderline.OrderLine, int) {
	index := make(map[orderline.NaturalKey]int, len(lines))
	counts := make([]int, 0, len(lines))
	facts := make([]orderline.OrderLine, 0, len(lines))

	for _, line := range lines {
		key := line.Key()
		if pos, ok := index[key]; ok {
			facts[pos].Quantity += line.Quantity
			counts[pos]++
			continue
		}
		index[key] = len(facts)
		facts = append(facts, line)
		counts = append(counts, 1)
	}

	duplicateGroups := 0
	for _, c := range counts {
		if c > 1 {
			duplicateGroups++
		}
	}
	return facts, duplicateGroups
}

// collapse keeps one fact per merge identity. The last fact in input order
// wins; its position is that of the identity's first appearance.
func collapse(facts []orderline.OrderLine) ([]orderline.OrderLine, int) {
	index := make(map[orderline.MatchKey]int, len(facts))
	out := make([]orderline.OrderLine, 0, len(facts))
	superseded := 0

	for _, fact := range facts {
		key := fact.MatchKey()
		if pos, ok := index[key]; ok {
			out[pos] = fact
			superseded++
			continue
		}
		index[key] = len(out)
		out = append(out, fact)
	}
	return out, superseded
}
