// Package visualization renders interbank networks in various output formats.
package visualization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"strings"

	"github.com/nvandessel/gkmerge/internal/network"
	"github.com/nvandessel/gkmerge/internal/ranking"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ParseFormat converts a flag value into a Format. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatJSON, nil
	case FormatDOT, FormatJSON, FormatHTML:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (valid: dot, json, html)", s)
}

// Bank colors by state.
const (
	colorSolvent   = "steelblue"
	colorMerged    = "goldenrod"
	colorDefaulted = "tomato"
	colorAsset     = "lightgray"
)

func bankColor(b *network.Bank) string {
	switch {
	case b.Defaulted():
		return colorDefaulted
	case b.MergeState() > 1:
		return colorMerged
	default:
		return colorSolvent
	}
}

// RenderDOT produces a Graphviz DOT representation of the network. Loans
// point from debtor to creditor; common-asset holdings are dashed edges
// from the bank to the asset.
func RenderDOT(net *network.Network) string {
	var b strings.Builder
	b.WriteString("digraph gkmerge {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=circle, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	ranks := ranking.ComputePageRank(net, ranking.DefaultPageRankConfig())
	for _, id := range net.Banks() {
		bank, _ := net.Bank(id)
		capital, _ := net.Capital(id, false)
		fmt.Fprintf(&b, "  %q [label=%q, fillcolor=%q, tooltip=\"capital=%.2f merge_state=%d rank=%.2f\"];\n",
			bankNode(id), fmt.Sprint(id), bankColor(bank), capital, bank.MergeState(), ranks[id])
	}
	for _, id := range net.Assets() {
		asset, _ := net.Asset(id)
		fmt.Fprintf(&b, "  %q [shape=box, fillcolor=%q, tooltip=\"price=%.4f\"];\n",
			assetNode(id), colorAsset, asset.Price())
	}
	b.WriteString("\n")

	for _, l := range net.Links() {
		fmt.Fprintf(&b, "  %q -> %q [label=\"%.2f\", penwidth=%.2f];\n",
			bankNode(l.From), bankNode(l.To), l.Weight, penWidth(l.Weight))
	}
	for _, id := range net.Banks() {
		for _, inv := range sortedInvestments(net, id) {
			fmt.Fprintf(&b, "  %q -> %q [style=dashed, label=\"%.2f\", arrowhead=none];\n",
				bankNode(id), assetNode(inv.Asset), inv.Weight)
		}
	}

	b.WriteString("}\n")
	return b.String()
}

func bankNode(id network.BankID) string   { return fmt.Sprintf("b%d", id) }
func assetNode(id network.AssetID) string { return fmt.Sprintf("a%d", id) }

// penWidth scales loan size logarithmically into [1, 5].
func penWidth(w float64) float64 {
	return math.Min(5, 1+math.Log1p(math.Max(w, 0))/2)
}

// BankNode is a bank in the JSON graph.
type BankNode struct {
	ID         network.BankID `json:"id"`
	Capital    float64        `json:"capital"`
	Assets     float64        `json:"assets"`
	Defaulted  bool           `json:"defaulted"`
	MergeState int            `json:"merge_state"`
	InDegree   int            `json:"in_degree"`
	OutDegree  int            `json:"out_degree"`
	// Rank is the bank's weighted PageRank along the loan direction,
	// normalized so the highest-ranked bank has 1.
	Rank float64 `json:"rank"`
}

// AssetNode is a common asset in the JSON graph.
type AssetNode struct {
	ID    network.AssetID `json:"id"`
	Price float64         `json:"price"`
}

// Investment is a bank's holding of a common asset.
type Investment struct {
	Bank   network.BankID  `json:"bank"`
	Asset  network.AssetID `json:"asset"`
	Weight float64         `json:"weight"`
}

// Graph is the JSON representation of a network.
type Graph struct {
	Banks       []BankNode     `json:"banks"`
	Assets      []AssetNode    `json:"assets,omitempty"`
	Links       []network.Link `json:"links"`
	Investments []Investment   `json:"investments,omitempty"`
	BankCount   int            `json:"bank_count"`
	LinkCount   int            `json:"link_count"`
	MeanDegree  float64        `json:"mean_degree"`
	MergeRound  int            `json:"merge_round"`
	Defaulted   float64        `json:"defaulted_fraction"`
}

// RenderJSON collects the network into a Graph ready for json.Marshal.
func RenderJSON(net *network.Network) Graph {
	g := Graph{
		Banks:      make([]BankNode, 0, net.NumBanks()),
		Links:      net.Links(),
		BankCount:  net.NumBanks(),
		LinkCount:  net.NumLinks(),
		MeanDegree: net.MeanDegree(),
		MergeRound: net.MergeRound(),
		Defaulted:  net.DefaultedFraction(),
	}
	ranks := ranking.ComputePageRank(net, ranking.DefaultPageRankConfig())
	for _, id := range net.Banks() {
		bank, _ := net.Bank(id)
		capital, _ := net.Capital(id, false)
		g.Banks = append(g.Banks, BankNode{
			ID:         id,
			Capital:    capital,
			Assets:     bank.AssetsTotal(),
			Defaulted:  bank.Defaulted(),
			MergeState: bank.MergeState(),
			InDegree:   len(net.Predecessors(id)),
			OutDegree:  len(net.Successors(id)),
			Rank:       ranks[id],
		})
		g.Investments = append(g.Investments, sortedInvestments(net, id)...)
	}
	for _, id := range net.Assets() {
		asset, _ := net.Asset(id)
		g.Assets = append(g.Assets, AssetNode{ID: id, Price: asset.Price()})
	}
	if g.Links == nil {
		g.Links = []network.Link{}
	}
	return g
}

func sortedInvestments(net *network.Network, id network.BankID) []Investment {
	var out []Investment
	held := net.Investments(id)
	for _, a := range net.Assets() {
		if w, ok := held[a]; ok {
			out = append(out, Investment{Bank: id, Asset: a, Weight: w})
		}
	}
	return out
}

// htmlSize is the side of the square SVG canvas.
const htmlSize = 640

type point struct{ X, Y float64 }

type htmlNode struct {
	point
	ID    network.BankID
	R     float64
	Color string
	Title string
}

type htmlEdge struct {
	From, To point
	Width    float64
}

// htmlTemplateData holds data passed to the HTML template.
// GraphJSON is pre-sanitized JSON (via json.HTMLEscape) safe for inline <script>.
type htmlTemplateData struct {
	Title     string
	Size      int
	Nodes     []htmlNode
	Edges     []htmlEdge
	Summary   Graph
	GraphJSON template.JS
}

// RenderHTML produces a self-contained HTML page drawing the network as an
// SVG with banks on a circle. The JSON graph is embedded for scripting.
func RenderHTML(net *network.Network, title string) ([]byte, error) {
	graph := RenderJSON(net)
	graphJSON, err := json.Marshal(graph)
	if err != nil {
		return nil, fmt.Errorf("marshal graph data: %w", err)
	}
	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, graphJSON)

	tmplBytes, err := templates.ReadFile("templates/graph.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read HTML template: %w", err)
	}
	tmpl, err := template.New("graph").Parse(string(tmplBytes))
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	pos := circleLayout(net.Banks(), htmlSize)
	data := htmlTemplateData{
		Title:     title,
		Size:      htmlSize,
		Summary:   graph,
		GraphJSON: template.JS(escaped.String()), // #nosec G203
	}
	for _, bn := range graph.Banks {
		bank, _ := net.Bank(bn.ID)
		data.Nodes = append(data.Nodes, htmlNode{
			point: pos[bn.ID],
			ID:    bn.ID,
			R:     nodeRadius(bn.Rank),
			Color: bankColor(bank),
			Title: fmt.Sprintf("bank %d: capital %.2f, merge state %d, rank %.2f", bn.ID, bn.Capital, bn.MergeState, bn.Rank),
		})
	}
	for _, l := range graph.Links {
		data.Edges = append(data.Edges, htmlEdge{From: pos[l.From], To: pos[l.To], Width: penWidth(l.Weight) / 2})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

// nodeRadius maps a normalized rank onto [4, 12].
func nodeRadius(rank float64) float64 {
	return 4 + 8*math.Max(0, math.Min(rank, 1))
}

// circleLayout places ids evenly on a circle inside a size x size canvas,
// starting at the top and going clockwise.
func circleLayout(ids []network.BankID, size int) map[network.BankID]point {
	out := make(map[network.BankID]point, len(ids))
	c := float64(size) / 2
	r := c * 0.9
	for i, id := range ids {
		theta := 2*math.Pi*float64(i)/float64(len(ids)) - math.Pi/2
		out[id] = point{X: c + r*math.Cos(theta), Y: c + r*math.Sin(theta)}
	}
	return out
}
