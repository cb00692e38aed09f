// Package ranking scores banks by their position in the loan network.
package ranking

import (
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"

	gknet "github.com/nvandessel/gkmerge/internal/network"
)

// PageRankConfig holds configuration for PageRank computation.
type PageRankConfig struct {
	// DampingFactor (d) is the probability of following an edge vs. teleporting.
	// Standard value: 0.85.
	DampingFactor float64

	// Tolerance is the convergence threshold. Default: 1e-6.
	Tolerance float64
}

// DefaultPageRankConfig returns the default PageRank configuration.
func DefaultPageRankConfig() PageRankConfig {
	return PageRankConfig{
		DampingFactor: 0.85,
		Tolerance:     1e-6,
	}
}

// ComputePageRank scores every bank of net by weighted PageRank along the
// direction losses travel: a loan u->v (u owes v) passes rank from the
// debtor u to the creditor v in proportion to the loan's share of u's
// interbank liabilities. Banks that many failing debtors can reach score
// high. Scores are normalized so the highest is 1.
func ComputePageRank(net *gknet.Network, config PageRankConfig) map[gknet.BankID]float64 {
	ids := net.Banks()
	scores := make(map[gknet.BankID]float64, len(ids))
	if len(ids) == 0 {
		return scores
	}

	g := simple.NewWeightedDirectedGraph(0, 0)
	for _, id := range ids {
		g.AddNode(simple.Node(int64(id)))
	}
	for _, l := range net.Links() {
		if l.Weight > 0 {
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(int64(l.From)), simple.Node(int64(l.To)), l.Weight))
		}
	}

	maxScore := 0.0
	for id, score := range network.PageRankSparse(g, config.DampingFactor, config.Tolerance) {
		scores[gknet.BankID(id)] = score
		maxScore = max(maxScore, score)
	}
	if maxScore > 0 {
		for id, score := range scores {
			scores[id] = score / maxScore
		}
	}
	return scores
}
