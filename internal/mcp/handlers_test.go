package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/gkmerge/internal/experiment"
	"github.com/nvandessel/gkmerge/internal/network"
	"github.com/nvandessel/gkmerge/internal/store"
	"github.com/nvandessel/gkmerge/internal/visualization"
)

// buildChain builds the network 0->1->2 (0 owes 1, 1 owes 2). With default
// seeding every loan weighs 20 and every bank holds capital 4, so a shock
// to bank 0 defaults all three banks at zero recovery.
func buildChain(t *testing.T, s *Server, name string) NetworkSummary {
	t.Helper()
	_, out, err := s.handleBuild(context.Background(), nil, BuildInput{
		Name:  name,
		Links: [][2]int{{0, 1}, {1, 2}},
		Seed:  1,
	})
	if err != nil {
		t.Fatalf("handleBuild: %v", err)
	}
	return out
}

func intPtr(v int) *int { return &v }

func TestHandleBuild_Links(t *testing.T) {
	s := setupTestServer(t)

	out := buildChain(t, s, "")
	if out.Name != DefaultNetwork {
		t.Errorf("Name = %q, want %q", out.Name, DefaultNetwork)
	}
	if out.Banks != 3 || out.Links != 2 {
		t.Errorf("banks/links = %d/%d, want 3/2", out.Banks, out.Links)
	}
	if out.Seed != 1 {
		t.Errorf("Seed = %d, want 1", out.Seed)
	}
	if out.SystemAssets != 300 {
		t.Errorf("SystemAssets = %v, want 300", out.SystemAssets)
	}
}

func TestHandleBuild_Topology(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	in := BuildInput{Name: "er", Topology: "erdos_renyi", Banks: 30, P: 0.2, Seed: 42}
	_, first, err := s.handleBuild(ctx, nil, in)
	if err != nil {
		t.Fatalf("handleBuild: %v", err)
	}
	_, second, err := s.handleBuild(ctx, nil, in)
	if err != nil {
		t.Fatalf("handleBuild: %v", err)
	}
	if first.Links != second.Links {
		t.Errorf("same seed gave %d and %d links", first.Links, second.Links)
	}
	if first.Banks != 30 {
		t.Errorf("Banks = %d, want 30", first.Banks)
	}
}

func TestHandleBuild_DrawsSeed(t *testing.T) {
	s := setupTestServer(t)

	_, out, err := s.handleBuild(context.Background(), nil, BuildInput{Banks: 10, P: 0.1})
	if err != nil {
		t.Fatalf("handleBuild: %v", err)
	}
	if out.Seed == 0 {
		t.Error("expected a drawn non-zero seed")
	}
}

func TestHandleBuild_Errors(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name string
		in   BuildInput
	}{
		{"too many banks", BuildInput{Banks: 51}},
		{"unknown topology", BuildInput{Topology: "lattice", Banks: 5}},
		{"bad probability", BuildInput{Banks: 5, P: 2}},
		{"self loop", BuildInput{Links: [][2]int{{1, 1}}}},
		{"bad alpha", BuildInput{Banks: 5, Alpha: func() *float64 { v := 1.5; return &v }()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.handleBuild(context.Background(), nil, tt.in)
			if !errors.Is(err, network.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestHandleCascade_NoNetwork(t *testing.T) {
	s := setupTestServer(t)

	_, _, err := s.handleCascade(context.Background(), nil, CascadeInput{Bank: intPtr(0)})
	if !errors.Is(err, network.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestHandleCascade_Chain(t *testing.T) {
	s := setupTestServer(t)
	buildChain(t, s, "")
	ctx := context.Background()

	_, out, err := s.handleCascade(ctx, nil, CascadeInput{Bank: intPtr(0)})
	if err != nil {
		t.Fatalf("handleCascade: %v", err)
	}
	if out.Result.InitialBank != 0 {
		t.Errorf("InitialBank = %d, want 0", out.Result.InitialBank)
	}
	if out.Result.Defaulted != 3 || out.Result.DefaultedFraction != 1 {
		t.Errorf("defaulted = %d (%v), want 3 (1)", out.Result.Defaulted, out.Result.DefaultedFraction)
	}
	if len(out.Defaulted) != 3 {
		t.Errorf("Defaulted = %v, want all three banks", out.Defaulted)
	}
	if len(out.Profile) == 0 {
		t.Error("expected a cascade profile")
	}
	if out.Kept {
		t.Error("Kept should be false")
	}

	sess, _ := s.network("")
	if n := sess.net.NumDefaulted(); n != 0 {
		t.Errorf("NumDefaulted after cascade = %d, want 0", n)
	}
}

func TestHandleCascade_Sink(t *testing.T) {
	s := setupTestServer(t)
	buildChain(t, s, "")

	_, out, err := s.handleCascade(context.Background(), nil, CascadeInput{Bank: intPtr(2), Mode: "sequential"})
	if err != nil {
		t.Fatalf("handleCascade: %v", err)
	}
	if out.Result.Mode != network.Sequential {
		t.Errorf("Mode = %q, want sequential", out.Result.Mode)
	}
	if len(out.Defaulted) != 1 || out.Defaulted[0] != 2 {
		t.Errorf("Defaulted = %v, want [2]", out.Defaulted)
	}
}

func TestHandleCascade_Keep(t *testing.T) {
	s := setupTestServer(t)
	buildChain(t, s, "")
	ctx := context.Background()

	if _, _, err := s.handleCascade(ctx, nil, CascadeInput{Bank: intPtr(0), Keep: true}); err != nil {
		t.Fatalf("handleCascade: %v", err)
	}
	sess, _ := s.network("")
	if n := sess.net.NumDefaulted(); n != 3 {
		t.Errorf("NumDefaulted = %d, want 3", n)
	}

	// The next cascade starts from a clean network.
	_, out, err := s.handleCascade(ctx, nil, CascadeInput{Bank: intPtr(2)})
	if err != nil {
		t.Fatalf("handleCascade: %v", err)
	}
	if out.Result.Defaulted != 1 {
		t.Errorf("Defaulted = %d, want 1", out.Result.Defaulted)
	}
}

func TestHandleCascade_Shock(t *testing.T) {
	s := setupTestServer(t)
	buildChain(t, s, "")

	_, out, err := s.handleCascade(context.Background(), nil, CascadeInput{Shock: "max_in_degree"})
	if err != nil {
		t.Fatalf("handleCascade: %v", err)
	}
	if out.Result.Defaulted < 1 {
		t.Errorf("Defaulted = %d, want at least the shocked bank", out.Result.Defaulted)
	}
}

func TestHandleCascade_Errors(t *testing.T) {
	s := setupTestServer(t)
	buildChain(t, s, "")

	tests := []struct {
		name string
		in   CascadeInput
		want error
	}{
		{"unknown bank", CascadeInput{Bank: intPtr(9)}, network.ErrNotFound},
		{"unknown mode", CascadeInput{Bank: intPtr(0), Mode: "parallel"}, network.ErrValidation},
		{"unknown shock", CascadeInput{Shock: "smallest"}, network.ErrValidation},
		{"bad recovery rate", CascadeInput{Bank: intPtr(0), RecoveryRate: 1.5}, network.ErrValidation},
		{"sequential fire sale", CascadeInput{Bank: intPtr(0), Mode: "sequential", DeprecationFactor: 0.5}, network.ErrSequentialFireSale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.handleCascade(context.Background(), nil, tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			sess, _ := s.network("")
			if n := sess.net.NumDefaulted(); n != 0 {
				t.Errorf("NumDefaulted after failed cascade = %d, want 0", n)
			}
		})
	}
}

func TestHandleMerge_Explicit(t *testing.T) {
	s := setupTestServer(t)
	buildChain(t, s, "")

	_, out, err := s.handleMerge(context.Background(), nil, MergeInput{Acquiring: intPtr(0), Acquired: intPtr(1)})
	if err != nil {
		t.Fatalf("handleMerge: %v", err)
	}
	if len(out.Merges) != 1 {
		t.Fatalf("Merges = %v, want one merger", out.Merges)
	}
	m := out.Merges[0]
	if m.Acquiring != 0 || m.Acquired != 1 || m.AbsorbedWeight != 20 || m.MergeRound != 1 {
		t.Errorf("merge = %+v", m)
	}
	if out.Network.Banks != 2 || out.Network.Links != 1 || out.Network.MergeRound != 1 {
		t.Errorf("network = %+v, want 2 banks, 1 link, round 1", out.Network)
	}
}

func TestHandleMerge_AfterKeptCascade(t *testing.T) {
	s := setupTestServer(t)
	buildChain(t, s, "")
	ctx := context.Background()

	if _, _, err := s.handleCascade(ctx, nil, CascadeInput{Bank: intPtr(0), Keep: true}); err != nil {
		t.Fatalf("handleCascade: %v", err)
	}
	_, _, err := s.handleMerge(ctx, nil, MergeInput{Acquiring: intPtr(2), Acquired: intPtr(1)})
	if !errors.Is(err, network.ErrMergeDefaulted) {
		t.Fatalf("handleMerge error = %v, want ErrMergeDefaulted", err)
	}
	sess, _ := s.network("")
	if sess.net.NumBanks() != 3 || sess.net.NumDefaulted() != 3 {
		t.Errorf("network changed: %d banks, %d defaulted", sess.net.NumBanks(), sess.net.NumDefaulted())
	}
}

func TestHandleMerge_NeedsBothBanks(t *testing.T) {
	s := setupTestServer(t)
	buildChain(t, s, "")

	_, _, err := s.handleMerge(context.Background(), nil, MergeInput{Acquiring: intPtr(0)})
	if !errors.Is(err, network.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestHandleMerge_Random(t *testing.T) {
	s := setupTestServer(t)
	buildChain(t, s, "")
	ctx := context.Background()

	_, out, err := s.handleMerge(ctx, nil, MergeInput{Count: 2})
	if err != nil {
		t.Fatalf("handleMerge: %v", err)
	}
	if len(out.Merges) != 2 {
		t.Errorf("Merges = %d, want 2", len(out.Merges))
	}
	if out.Network.Banks != 1 || out.Network.MergeRound != 2 {
		t.Errorf("network = %+v, want 1 bank at round 2", out.Network)
	}

	_, _, err = s.handleMerge(ctx, nil, MergeInput{})
	if !errors.Is(err, network.ErrTooFewBanks) {
		t.Errorf("merge of a single bank error = %v, want ErrTooFewBanks", err)
	}
}

func TestHandleMerge_UnknownRule(t *testing.T) {
	s := setupTestServer(t)
	buildChain(t, s, "")

	_, _, err := s.handleMerge(context.Background(), nil, MergeInput{Rule: "diagonal"})
	if !errors.Is(err, network.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestHandleGraph(t *testing.T) {
	s := setupTestServer(t)
	buildChain(t, s, "")
	ctx := context.Background()

	_, out, err := s.handleGraph(ctx, nil, GraphInput{Format: "dot"})
	if err != nil {
		t.Fatalf("handleGraph dot: %v", err)
	}
	dot, ok := out.Graph.(string)
	if !ok || !strings.Contains(dot, "digraph gkmerge") {
		t.Errorf("dot graph = %v", out.Graph)
	}
	if out.Banks != 3 || out.Links != 2 {
		t.Errorf("banks/links = %d/%d, want 3/2", out.Banks, out.Links)
	}

	_, out, err = s.handleGraph(ctx, nil, GraphInput{})
	if err != nil {
		t.Fatalf("handleGraph json: %v", err)
	}
	g, ok := out.Graph.(visualization.Graph)
	if !ok {
		t.Fatalf("json graph has type %T", out.Graph)
	}
	if out.Format != "json" || len(g.Links) != 2 {
		t.Errorf("format %q with %d links", out.Format, len(g.Links))
	}

	_, out, err = s.handleGraph(ctx, nil, GraphInput{Format: "html"})
	if err != nil {
		t.Fatalf("handleGraph html: %v", err)
	}
	if html, _ := out.Graph.(string); !strings.Contains(html, "<svg") {
		t.Error("html graph has no svg")
	}

	if _, _, err := s.handleGraph(ctx, nil, GraphInput{Format: "png"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestHandleWindow(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleWindow(ctx, nil, WindowInput{})
	if err != nil {
		t.Fatalf("handleWindow: %v", err)
	}
	if out.Kind != experiment.KindContagionWindow {
		t.Errorf("Kind = %q", out.Kind)
	}
	if len(out.Summaries) != 3 {
		t.Fatalf("Summaries = %d, want 3", len(out.Summaries))
	}
	for _, sum := range out.Summaries {
		if sum.Runs != 2 {
			t.Errorf("point %v has %d runs, want 2", sum.X, sum.Runs)
		}
	}

	list, err := s.store.List(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != out.ID {
		t.Errorf("stored results = %+v, want %s", list, out.ID)
	}
}

func TestHandleWindow_Overrides(t *testing.T) {
	s := setupTestServer(t)
	lo, hi := 0.0, 0.2

	_, out, err := s.handleWindow(context.Background(), nil, WindowInput{
		Params: ExperimentInput{Banks: 10, Runs: 1, Mode: "sequential"},
		Min:    &lo,
		Max:    &hi,
		Points: 5,
	})
	if err != nil {
		t.Fatalf("handleWindow: %v", err)
	}
	if len(out.Summaries) != 5 {
		t.Fatalf("Summaries = %d, want 5", len(out.Summaries))
	}
	if last := out.Summaries[4].X; last != 0.2 {
		t.Errorf("last point = %v, want 0.2", last)
	}
	if out.Attributes["contagion_mode"] != "sequential" {
		t.Errorf("contagion_mode = %v", out.Attributes["contagion_mode"])
	}
}

func TestHandleWindow_Budget(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   WindowInput
	}{
		{"realizations", WindowInput{Params: ExperimentInput{Runs: 10}, Points: 5}},
		{"banks", WindowInput{Params: ExperimentInput{Banks: 100}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.handleWindow(ctx, nil, tt.in)
			if !errors.Is(err, experiment.ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestHandleMergers(t *testing.T) {
	s := setupTestServer(t)

	_, out, err := s.handleMergers(context.Background(), nil, MergersInput{Rule: "vertical"})
	if err != nil {
		t.Fatalf("handleMergers: %v", err)
	}
	if out.Kind != experiment.KindContinuousMergers {
		t.Errorf("Kind = %q", out.Kind)
	}
	// Checkpoints 0, 3, 6 and 9.
	if len(out.Summaries) != 4 {
		t.Fatalf("Summaries = %d, want 4", len(out.Summaries))
	}
	if out.Summaries[3].X != 9 {
		t.Errorf("last checkpoint = %v, want 9", out.Summaries[3].X)
	}
	if out.Attributes["merge_rule"] != "vertical" {
		t.Errorf("merge_rule = %v", out.Attributes["merge_rule"])
	}
}

func TestHandleMergers_Invalid(t *testing.T) {
	s := setupTestServer(t)

	_, _, err := s.handleMergers(context.Background(), nil, MergersInput{LastRound: 30})
	if !errors.Is(err, experiment.ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestHandleResults(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	_, listed, err := s.handleResults(ctx, nil, ResultsInput{})
	if err != nil {
		t.Fatalf("handleResults list: %v", err)
	}
	if listed.Results == nil || len(listed.Results) != 0 {
		t.Errorf("empty list = %v, want []", listed.Results)
	}

	_, run, err := s.handleWindow(ctx, nil, WindowInput{})
	if err != nil {
		t.Fatalf("handleWindow: %v", err)
	}

	_, listed, err = s.handleResults(ctx, nil, ResultsInput{Kind: string(experiment.KindContagionWindow)})
	if err != nil {
		t.Fatalf("handleResults list: %v", err)
	}
	if len(listed.Results) != 1 {
		t.Errorf("listed %d results, want 1", len(listed.Results))
	}
	_, listed, _ = s.handleResults(ctx, nil, ResultsInput{Kind: string(experiment.KindContinuousMergers)})
	if len(listed.Results) != 0 {
		t.Errorf("mergers filter listed %d results, want 0", len(listed.Results))
	}

	_, shown, err := s.handleResults(ctx, nil, ResultsInput{ID: run.ID})
	if err != nil {
		t.Fatalf("handleResults show: %v", err)
	}
	if shown.Result == nil || shown.Result.ID != run.ID || len(shown.Result.Summaries) != 3 {
		t.Errorf("shown = %+v", shown.Result)
	}

	_, deleted, err := s.handleResults(ctx, nil, ResultsInput{ID: run.ID, Delete: true})
	if err != nil || !deleted.Deleted {
		t.Fatalf("delete: %v, %+v", err, deleted)
	}
	_, _, err = s.handleResults(ctx, nil, ResultsInput{ID: run.ID})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("show after delete error = %v, want ErrNotFound", err)
	}
}

func TestHandleResultsResource(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	res, err := s.handleResultsResource(ctx, &sdk.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("handleResultsResource: %v", err)
	}
	if text := res.Contents[0].Text; !strings.Contains(text, "No results yet") {
		t.Errorf("empty listing = %q", text)
	}

	_, run, err := s.handleWindow(ctx, nil, WindowInput{})
	if err != nil {
		t.Fatalf("handleWindow: %v", err)
	}
	res, err = s.handleResultsResource(ctx, &sdk.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("handleResultsResource: %v", err)
	}
	if text := res.Contents[0].Text; !strings.Contains(text, run.ID) || !strings.Contains(text, "3 points x 2 runs") {
		t.Errorf("listing = %q", text)
	}

	uri := resultsURI + "/" + run.ID
	res, err = s.handleResultResource(ctx, &sdk.ReadResourceRequest{Params: &sdk.ReadResourceParams{URI: uri}})
	if err != nil {
		t.Fatalf("handleResultResource: %v", err)
	}
	text := res.Contents[0].Text
	if res.Contents[0].URI != uri || !strings.Contains(text, "# Result "+run.ID) {
		t.Errorf("result resource = %q", text)
	}
	if rows := strings.Count(text, "\n| "); rows != 4 {
		t.Errorf("table rows = %d, want header plus 3 points", rows)
	}

	_, err = s.handleResultResource(ctx, &sdk.ReadResourceRequest{Params: &sdk.ReadResourceParams{URI: resultsURI + "/missing"}})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing result error = %v, want ErrNotFound", err)
	}
	_, err = s.handleResultResource(ctx, &sdk.ReadResourceRequest{Params: &sdk.ReadResourceParams{URI: "other://x"}})
	if err == nil {
		t.Error("expected error for foreign URI")
	}
}
