package visualization

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nvandessel/gkmerge/internal/network"
)

// testNetwork builds 0 -> 1 -> 2 with one common asset held by bank 2.
func testNetwork(t *testing.T) *network.Network {
	t.Helper()
	n := network.New(network.WithSeed(1))
	for i := 0; i < 3; i++ {
		n.CreateBank(network.BalanceSheet{AssetsE: 50, LiabilitiesE: 40})
	}
	if err := n.AddOrUpdateLink(0, 1, 10, true); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := n.AddOrUpdateLink(1, 2, 5, true); err != nil {
		t.Fatalf("link: %v", err)
	}
	a, err := n.AddAsset(1)
	if err != nil {
		t.Fatalf("asset: %v", err)
	}
	if err := n.AddOrUpdateInvestment(2, a, 8, true); err != nil {
		t.Fatalf("investment: %v", err)
	}
	return n
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatJSON, "DOT": FormatDOT, "html": FormatHTML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("svg"); err == nil {
		t.Error("ParseFormat(svg) should fail")
	}
}

func TestRenderDOT_Empty(t *testing.T) {
	dot := RenderDOT(network.New())
	if !strings.Contains(dot, "digraph gkmerge") {
		t.Error("expected digraph header")
	}
	if !strings.HasSuffix(strings.TrimSpace(dot), "}") {
		t.Error("expected closing brace")
	}
}

func TestRenderDOT_Network(t *testing.T) {
	n := testNetwork(t)
	if err := n.ShockID(0); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Cascade(0, network.Simultaneous, 0, 0, false); err != nil {
		t.Fatal(err)
	}

	dot := RenderDOT(n)
	for _, want := range []string{
		`"b0" -> "b1" [label="10.00"`,
		`"b1" -> "b2" [label="5.00"`,
		`"b2" -> "a0" [style=dashed`,
		`"a0" [shape=box`,
		`"b0" [label="0", fillcolor="tomato"`,
		`"b2" [label="2", fillcolor="steelblue"`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}

func TestRenderDOT_MergedBank(t *testing.T) {
	n := testNetwork(t)
	if _, err := n.Merge(1, 2); err != nil {
		t.Fatal(err)
	}
	if dot := RenderDOT(n); !strings.Contains(dot, `"b1" [label="1", fillcolor="goldenrod"`) {
		t.Errorf("merged bank not highlighted:\n%s", dot)
	}
}

func TestRenderJSON(t *testing.T) {
	g := RenderJSON(testNetwork(t))

	if g.BankCount != 3 || g.LinkCount != 2 {
		t.Errorf("counts = %d banks, %d links", g.BankCount, g.LinkCount)
	}
	if len(g.Assets) != 1 || len(g.Investments) != 1 {
		t.Fatalf("assets = %v, investments = %v", g.Assets, g.Investments)
	}
	if inv := g.Investments[0]; inv.Bank != 2 || inv.Weight != 8 {
		t.Errorf("investment = %+v", inv)
	}
	if b := g.Banks[1]; b.InDegree != 1 || b.OutDegree != 1 {
		t.Errorf("bank 1 degrees = in %d, out %d", b.InDegree, b.OutDegree)
	}
	if g.Banks[2].Rank != 1 || g.Banks[0].Rank >= g.Banks[1].Rank {
		t.Errorf("ranks = %v, %v, %v; want increasing to 1 at the sink", g.Banks[0].Rank, g.Banks[1].Rank, g.Banks[2].Rank)
	}
	// bank 0: assets 50, liabilities 40 + 10
	if g.Banks[0].Capital != 0 {
		t.Errorf("bank 0 capital = %v, want 0", g.Banks[0].Capital)
	}

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"links":[{"from":0,"to":1,"weight":10}`) {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestRenderJSON_EmptyLinks(t *testing.T) {
	data, _ := json.Marshal(RenderJSON(network.New()))
	if !strings.Contains(string(data), `"links":[]`) {
		t.Errorf("empty network should render links as []: %s", data)
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(testNetwork(t), "chain </script>")
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}
	s := string(html)
	if got := strings.Count(s, "<circle"); got != 3 {
		t.Errorf("got %d circles, want 3", got)
	}
	if got := strings.Count(s, "<line"); got != 2 {
		t.Errorf("got %d lines, want 2", got)
	}
	if !strings.Contains(s, `id="bank-2" cx="70.6" cy="464.0" r="12.0"`) {
		t.Error("highest-ranked bank should be drawn at full radius")
	}
	if strings.Contains(s, "chain </script>") {
		t.Error("title not escaped")
	}
	if !strings.Contains(s, "window.gkmergeGraph") {
		t.Error("graph JSON not embedded")
	}
}

func TestNodeRadius(t *testing.T) {
	for _, tt := range []struct{ rank, want float64 }{{0, 4}, {0.5, 8}, {1, 12}, {2, 12}, {-1, 4}} {
		if got := nodeRadius(tt.rank); got != tt.want {
			t.Errorf("nodeRadius(%v) = %v, want %v", tt.rank, got, tt.want)
		}
	}
}

func TestCircleLayout(t *testing.T) {
	pos := circleLayout([]network.BankID{0, 1, 2, 3}, 200)
	// r = 90 around (100, 100), first id at the top
	if p := pos[0]; p.X < 99.9 || p.X > 100.1 || p.Y < 9.9 || p.Y > 10.1 {
		t.Errorf("pos[0] = %+v, want (100, 10)", p)
	}
	if p := pos[2]; p.Y < 189.9 || p.Y > 190.1 {
		t.Errorf("pos[2] = %+v, want y 190", p)
	}
}
