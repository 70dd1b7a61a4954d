package derive

import (
	"sort"

	"github.com/goldline/ratedesk/pkg/model"
)

// Graph answers "how many units of `to` for one unit of `from`" using
// published pivots: direct edge, reciprocal edge, or one intermediate hop.
type Graph struct {
	edges map[model.CurrencyCode]map[model.CurrencyCode]float64
	nodes []model.CurrencyCode
}

// NewGraph indexes pivots. Later duplicates overwrite earlier ones.
func NewGraph(pivots []model.Pivot) *Graph {
	g := &Graph{edges: make(map[model.CurrencyCode]map[model.CurrencyCode]float64)}
	seen := make(map[model.CurrencyCode]bool)
	for _, p := range pivots {
		if !model.IsUsableRate(p.Rate) || p.From == p.To {
			continue
		}
		if g.edges[p.From] == nil {
			g.edges[p.From] = make(map[model.CurrencyCode]float64)
		}
		g.edges[p.From][p.To] = p.Rate
		for _, c := range []model.CurrencyCode{p.From, p.To} {
			if !seen[c] {
				seen[c] = true
				g.nodes = append(g.nodes, c)
			}
		}
	}
	// USD first, then alphabetical, so two-hop choices are deterministic
	sort.Slice(g.nodes, func(i, j int) bool {
		a, b := g.nodes[i], g.nodes[j]
		if (a == model.USD) != (b == model.USD) {
			return a == model.USD
		}
		return a < b
	})
	return g
}

// edge returns a one-step rate: direct or reciprocal.
func (g *Graph) edge(from, to model.CurrencyCode) (float64, bool) {
	if r, ok := g.edges[from][to]; ok {
		return r, true
	}
	if r, ok := g.edges[to][from]; ok {
		return 1 / r, true
	}
	return 0, false
}

// Rate resolves from→to with at most two hops. Identity is always 1.
func (g *Graph) Rate(from, to model.CurrencyCode) (float64, bool) {
	if from == to {
		return 1, true
	}
	if r, ok := g.edge(from, to); ok {
		return r, true
	}
	for _, mid := range g.nodes {
		if mid == from || mid == to {
			continue
		}
		a, ok := g.edge(from, mid)
		if !ok {
			continue
		}
		b, ok := g.edge(mid, to)
		if !ok {
			continue
		}
		return a * b, true
	}
	return 0, false
}
