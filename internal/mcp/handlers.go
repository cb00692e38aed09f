package mcp

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/gkmerge/internal/experiment"
	"github.com/nvandessel/gkmerge/internal/generators"
	"github.com/nvandessel/gkmerge/internal/network"
	"github.com/nvandessel/gkmerge/internal/ratelimit"
	"github.com/nvandessel/gkmerge/internal/store"
	"github.com/nvandessel/gkmerge/internal/visualization"
)

// defaultBuildBanks is the network size of gkmerge_build without banks.
const defaultBuildBanks = 100

const resultsURI = "gkmerge://results"

// registerTools registers all gkmerge MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolBuild,
		Description: "Generate an interbank network with homogeneous balance sheets and keep it in the session under a name",
	}, s.handleBuild)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolCascade,
		Description: "Shock one bank of a session network and propagate defaults; the cascade is undone afterwards unless keep is set",
	}, s.handleCascade)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolMerge,
		Description: "Merge two banks of a session network, or perform random mergers by rule (random, vertical, semihorizontal)",
	}, s.handleMerge)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolGraph,
		Description: "Render a session network in DOT (Graphviz), JSON, or HTML format",
	}, s.handleGraph)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolWindow,
		Description: "Run a contagion window experiment sweeping link probability or mean degree, store it and return per-point statistics",
	}, s.handleWindow)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolMergers,
		Description: "Run a continuous mergers experiment measuring contagion as banks consolidate, store it and return per-checkpoint statistics",
	}, s.handleMergers)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolResults,
		Description: "List, show or delete stored experiment results",
	}, s.handleResults)
}

// registerResources registers the stored results as MCP resources.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         resultsURI,
		Name:        "gkmerge-results",
		Description: "Stored experiment results, newest first.",
		MIMEType:    "text/markdown",
	}, s.handleResultsResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: resultsURI + "/{id}",
		Name:        "gkmerge-result",
		Description: "Per-point statistics of one stored experiment result.",
		MIMEType:    "text/markdown",
	}, s.handleResultResource)
}

func (s *Server) handleBuild(ctx context.Context, req *sdk.CallToolRequest, args BuildInput) (_ *sdk.CallToolResult, _ NetworkSummary, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolBuild, start, retErr, map[string]any{
			"name": args.Name, "topology": args.Topology, "banks": args.Banks, "links": len(args.Links), "seed": args.Seed,
		})
	}()
	if err := s.toolLimiters.Check(ratelimit.ToolBuild); err != nil {
		return nil, NetworkSummary{}, err
	}

	opts := generators.DefaultOptions()
	if args.Alpha != nil {
		opts.Alpha = *args.Alpha
	}
	if args.Kappa != nil {
		opts.Kappa = *args.Kappa
	}
	opts.C = args.C
	opts.Assets = args.Assets
	opts.AssetsPerBank = args.AssetsPerBank

	name := args.Name
	if name == "" {
		name = DefaultNetwork
	}
	if s.tracer != nil {
		opts.Tracer = s.tracer.With(map[string]any{"network": name})
	}

	banks := args.Banks
	if banks == 0 {
		banks = defaultBuildBanks
		if len(args.Links) > 0 {
			banks = 0
			for _, l := range args.Links {
				banks = max(banks, l[0]+1, l[1]+1)
			}
		}
	}
	if banks > s.settings.MCP.MaxBanks {
		return nil, NetworkSummary{}, fmt.Errorf("%w: %d banks exceed the limit of %d", network.ErrValidation, banks, s.settings.MCP.MaxBanks)
	}

	seed := args.Seed
	for seed == 0 {
		seed = rand.Uint64()
	}
	r := rand.New(rand.NewPCG(seed, 0))

	var (
		net *network.Network
		err error
	)
	if len(args.Links) > 0 {
		links := make([]generators.Link, len(args.Links))
		for i, l := range args.Links {
			links[i] = generators.Link(l)
		}
		net, err = generators.FromLinkList(r, banks, links, opts)
	} else {
		recipe := generators.Recipe{
			Topology: generators.TopologyFastErdosRenyi,
			Banks:    banks,
			P:        args.P,
			Z:        args.Z,
			Gamma:    args.Gamma,
			M:        args.M,
		}
		if args.Topology != "" {
			if recipe.Topology, err = generators.ParseTopology(args.Topology); err != nil {
				return nil, NetworkSummary{}, err
			}
		}
		if recipe.Gamma == 0 {
			recipe.Gamma = 3
		}
		net, err = recipe.Build(r, opts)
	}
	if err != nil {
		return nil, NetworkSummary{}, fmt.Errorf("build network: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &session{net: net, seed: seed}
	s.networks[name] = sess
	s.logger.Debug("network built", "name", name, "banks", net.NumBanks(), "links", net.NumLinks(), "seed", seed)
	return nil, summarizeNetwork(name, sess), nil
}

func summarizeNetwork(name string, sess *session) NetworkSummary {
	n := sess.net
	return NetworkSummary{
		Name:         name,
		Seed:         sess.seed,
		Banks:        n.NumBanks(),
		Links:        n.NumLinks(),
		Assets:       n.NumAssets(),
		MeanDegree:   n.MeanDegree(),
		SystemAssets: n.SystemAssets(),
		MergeRound:   n.MergeRound(),
		Defaulted:    n.NumDefaulted(),
	}
}

func (s *Server) handleCascade(ctx context.Context, req *sdk.CallToolRequest, args CascadeInput) (_ *sdk.CallToolResult, _ CascadeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolCascade, start, retErr, map[string]any{
			"name": args.Name, "bank": args.Bank, "shock": args.Shock, "mode": args.Mode,
			"recovery_rate": args.RecoveryRate, "deprecation_factor": args.DeprecationFactor, "keep": args.Keep,
		})
	}()
	if err := s.toolLimiters.Check(ratelimit.ToolCascade); err != nil {
		return nil, CascadeOutput{}, err
	}

	mode := network.Simultaneous
	if args.Mode != "" {
		var err error
		if mode, err = network.ParseCascadeMode(args.Mode); err != nil {
			return nil, CascadeOutput{}, err
		}
	}
	shockMode := experiment.ShockRandom
	if args.Shock != "" {
		var err error
		if shockMode, err = experiment.ParseShockMode(args.Shock); err != nil {
			return nil, CascadeOutput{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.network(args.Name)
	if err != nil {
		return nil, CascadeOutput{}, err
	}
	net := sess.net
	net.ResetCascade()

	var initial network.BankID
	if args.Bank != nil {
		initial = network.BankID(*args.Bank)
		err = net.ShockID(initial)
	} else {
		initial, err = experiment.Shock(net, shockMode)
	}
	if err != nil {
		net.ResetCascade()
		return nil, CascadeOutput{}, fmt.Errorf("shock: %w", err)
	}

	res, err := net.Cascade(initial, mode, args.RecoveryRate, args.DeprecationFactor, true)
	if err != nil {
		net.ResetCascade()
		return nil, CascadeOutput{}, err
	}
	out := CascadeOutput{
		Result:    res,
		Defaulted: net.DefaultedBanks(),
		Profile:   net.Profile(),
		Kept:      args.Keep,
	}
	if !args.Keep {
		net.ResetCascade()
	}
	return nil, out, nil
}

func (s *Server) handleMerge(ctx context.Context, req *sdk.CallToolRequest, args MergeInput) (_ *sdk.CallToolResult, _ MergeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolMerge, start, retErr, map[string]any{
			"name": args.Name, "acquiring": args.Acquiring, "acquired": args.Acquired,
			"rule": args.Rule, "count": args.Count, "reset_pairing": args.ResetPairing,
		})
	}()
	if err := s.toolLimiters.Check(ratelimit.ToolMerge); err != nil {
		return nil, MergeOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.network(args.Name)
	if err != nil {
		return nil, MergeOutput{}, err
	}
	net := sess.net
	name := args.Name
	if name == "" {
		name = DefaultNetwork
	}

	if args.Acquiring != nil || args.Acquired != nil {
		if args.Acquiring == nil || args.Acquired == nil {
			return nil, MergeOutput{}, fmt.Errorf("%w: an explicit merger needs both acquiring and acquired", network.ErrValidation)
		}
		m, err := net.Merge(network.BankID(*args.Acquiring), network.BankID(*args.Acquired))
		if err != nil {
			return nil, MergeOutput{}, err
		}
		return nil, MergeOutput{Merges: []network.MergeResult{m}, Network: summarizeNetwork(name, sess)}, nil
	}

	rule := network.MergeRandom
	if args.Rule != "" {
		if rule, err = network.ParseMergeRule(args.Rule); err != nil {
			return nil, MergeOutput{}, err
		}
	}
	count := max(args.Count, 1)

	merges := make([]network.MergeResult, 0, count)
	for len(merges) < count {
		m, err := net.RandomMerge(rule)
		if errors.Is(err, network.ErrPairingExhausted) && args.ResetPairing {
			net.ResetPairing()
			m, err = net.RandomMerge(rule)
		}
		if err != nil {
			return nil, MergeOutput{}, fmt.Errorf("after %d of %d mergers: %w", len(merges), count, err)
		}
		merges = append(merges, m)
	}
	return nil, MergeOutput{Merges: merges, Network: summarizeNetwork(name, sess)}, nil
}

func (s *Server) handleGraph(ctx context.Context, req *sdk.CallToolRequest, args GraphInput) (_ *sdk.CallToolResult, _ GraphOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolGraph, start, retErr, map[string]any{"name": args.Name, "format": args.Format})
	}()
	if err := s.toolLimiters.Check(ratelimit.ToolGraph); err != nil {
		return nil, GraphOutput{}, err
	}

	format, err := visualization.ParseFormat(args.Format)
	if err != nil {
		return nil, GraphOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.network(args.Name)
	if err != nil {
		return nil, GraphOutput{}, err
	}
	net := sess.net
	out := GraphOutput{Format: string(format), Banks: net.NumBanks(), Links: net.NumLinks()}

	switch format {
	case visualization.FormatDOT:
		out.Graph = visualization.RenderDOT(net)
	case visualization.FormatHTML:
		html, err := visualization.RenderHTML(net, "gkmerge: "+args.Name)
		if err != nil {
			return nil, GraphOutput{}, fmt.Errorf("render HTML: %w", err)
		}
		out.Graph = string(html)
	default:
		out.Graph = visualization.RenderJSON(net)
	}
	return nil, out, nil
}

// applyExperimentInput overrides the configured parameters with the
// non-zero fields of in.
func applyExperimentInput(p *experiment.Params, in ExperimentInput) error {
	var err error
	if in.Topology != "" {
		if p.Recipe.Topology, err = generators.ParseTopology(in.Topology); err != nil {
			return err
		}
	}
	if in.Banks != 0 {
		p.Recipe.Banks = in.Banks
	}
	if in.P != 0 {
		p.Recipe.P = in.P
	}
	if in.Z != 0 {
		p.Recipe.Z = in.Z
	}
	if in.Gamma != 0 {
		p.Recipe.Gamma = in.Gamma
	}
	if in.Runs != 0 {
		p.Runs = in.Runs
	}
	if in.Seed != 0 {
		p.Seed = in.Seed
	}
	if in.Shock != "" {
		if p.Shock, err = experiment.ParseShockMode(in.Shock); err != nil {
			return err
		}
	}
	if in.Mode != "" {
		if p.Mode, err = network.ParseCascadeMode(in.Mode); err != nil {
			return err
		}
	}
	if in.RecoveryRate != nil {
		p.RecoveryRate = *in.RecoveryRate
	}
	if in.DeprecationFactor != nil {
		p.DeprecationFactor = *in.DeprecationFactor
	}
	if in.C != nil {
		p.Seeding.C = *in.C
	}
	return nil
}

// checkBudget rejects experiments larger than the configured limits.
func (s *Server) checkBudget(p experiment.Params, points int) error {
	limits := s.settings.MCP
	if p.Recipe.Banks > limits.MaxBanks {
		return fmt.Errorf("%w: %d banks exceed the limit of %d", experiment.ErrInvalidConfig, p.Recipe.Banks, limits.MaxBanks)
	}
	if n := p.Runs * points; n > limits.MaxRealizations {
		return fmt.Errorf("%w: %d realizations exceed the limit of %d", experiment.ErrInvalidConfig, n, limits.MaxRealizations)
	}
	return nil
}

func (s *Server) experimentOptions() []experiment.Option {
	opts := []experiment.Option{experiment.WithLogger(s.logger)}
	if s.tracer != nil {
		opts = append(opts, experiment.WithTracer(s.tracer))
	}
	return opts
}

func (s *Server) handleWindow(ctx context.Context, req *sdk.CallToolRequest, args WindowInput) (_ *sdk.CallToolResult, _ ExperimentOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolWindow, start, retErr, map[string]any{
			"topology": args.Params.Topology, "banks": args.Params.Banks, "runs": args.Params.Runs, "points": args.Points,
		})
	}()
	if err := s.toolLimiters.Check(ratelimit.ToolWindow); err != nil {
		return nil, ExperimentOutput{}, err
	}

	cfg := s.settings.Window
	if err := applyExperimentInput(&cfg.Params, args.Params); err != nil {
		return nil, ExperimentOutput{}, err
	}
	if args.Min != nil {
		cfg.Min = *args.Min
	}
	if args.Max != nil {
		cfg.Max = *args.Max
	}
	if args.Points != 0 {
		cfg.Points = args.Points
	}
	if err := s.checkBudget(cfg.Params, cfg.Points); err != nil {
		return nil, ExperimentOutput{}, err
	}

	res, err := experiment.ContagionWindow(ctx, cfg, s.experimentOptions()...)
	if err != nil {
		return nil, ExperimentOutput{}, err
	}
	if err := s.store.Save(ctx, res); err != nil {
		return nil, ExperimentOutput{}, fmt.Errorf("save result: %w", err)
	}
	return nil, s.experimentOutput(res), nil
}

func (s *Server) handleMergers(ctx context.Context, req *sdk.CallToolRequest, args MergersInput) (_ *sdk.CallToolResult, _ ExperimentOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolMergers, start, retErr, map[string]any{
			"topology": args.Params.Topology, "banks": args.Params.Banks, "runs": args.Params.Runs,
			"rule": args.Rule, "last_round": args.LastRound, "points": args.Points,
		})
	}()
	if err := s.toolLimiters.Check(ratelimit.ToolMergers); err != nil {
		return nil, ExperimentOutput{}, err
	}

	cfg := s.settings.Mergers
	if err := applyExperimentInput(&cfg.Params, args.Params); err != nil {
		return nil, ExperimentOutput{}, err
	}
	if args.Rule != "" {
		var err error
		if cfg.Rule, err = network.ParseMergeRule(args.Rule); err != nil {
			return nil, ExperimentOutput{}, err
		}
	}
	if args.FirstRound != nil {
		cfg.FirstRound = *args.FirstRound
	}
	if args.LastRound != 0 {
		cfg.LastRound = args.LastRound
	}
	if args.Points != 0 {
		cfg.Points = args.Points
	}
	if err := s.checkBudget(cfg.Params, cfg.Points); err != nil {
		return nil, ExperimentOutput{}, err
	}

	res, err := experiment.ContinuousMergers(ctx, cfg, s.experimentOptions()...)
	if err != nil {
		return nil, ExperimentOutput{}, err
	}
	if err := s.store.Save(ctx, res); err != nil {
		return nil, ExperimentOutput{}, fmt.Errorf("save result: %w", err)
	}
	return nil, s.experimentOutput(res), nil
}

func (s *Server) experimentOutput(res *experiment.Result) ExperimentOutput {
	return ExperimentOutput{
		ID:         res.ID,
		Kind:       res.Kind,
		DurationMs: res.Duration.Milliseconds(),
		Attributes: res.Attributes,
		Summaries:  res.Summaries(s.settings.Stats.CascadeThreshold),
	}
}

func (s *Server) handleResults(ctx context.Context, req *sdk.CallToolRequest, args ResultsInput) (_ *sdk.CallToolResult, _ ResultsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolResults, start, retErr, map[string]any{
			"id": args.ID, "kind": args.Kind, "limit": args.Limit, "delete": args.Delete,
		})
	}()
	if err := s.toolLimiters.Check(ratelimit.ToolResults); err != nil {
		return nil, ResultsOutput{}, err
	}

	switch {
	case args.ID == "":
		list, err := s.store.List(ctx, store.Filter{Kind: experiment.Kind(args.Kind), Limit: args.Limit})
		if err != nil {
			return nil, ResultsOutput{}, err
		}
		out := make([]ResultSummary, len(list))
		for i, r := range list {
			out[i] = resultSummary(r)
		}
		return nil, ResultsOutput{Results: out}, nil
	case args.Delete:
		if err := s.store.Delete(ctx, args.ID); err != nil {
			return nil, ResultsOutput{}, err
		}
		return nil, ResultsOutput{Deleted: true}, nil
	default:
		res, err := s.store.Get(ctx, args.ID)
		if err != nil {
			return nil, ResultsOutput{}, err
		}
		out := s.experimentOutput(res)
		return nil, ResultsOutput{Result: &out}, nil
	}
}

// handleResultsResource lists stored results as markdown.
func (s *Server) handleResultsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	list, err := s.store.List(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Experiment results\n\n")
	if len(list) == 0 {
		fmt.Fprintf(&sb, "No results yet. Run `%s` or `%s`.\n", ratelimit.ToolWindow, ratelimit.ToolMergers)
	}
	for _, r := range list {
		fmt.Fprintf(&sb, "- `%s` %s, %s, %d points x %d runs\n",
			r.ID, r.Kind, r.CreatedAt.Format(time.RFC3339), r.Points, r.Runs/max(r.Points, 1))
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: resultsURI, MIMEType: "text/markdown", Text: sb.String()},
		},
	}, nil
}

// handleResultResource renders one result as a markdown table.
// URI format: gkmerge://results/{id}
func (s *Server) handleResultResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	prefix := resultsURI + "/"
	if !strings.HasPrefix(uri, prefix) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	id := strings.TrimPrefix(uri, prefix)
	if id == "" {
		return nil, fmt.Errorf("result ID is required")
	}

	res, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: uri, MIMEType: "text/markdown", Text: resultMarkdown(res, s.settings.Stats.CascadeThreshold)},
		},
	}, nil
}

func resultMarkdown(res *experiment.Result, threshold float64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Result %s\n\n", res.ID)
	fmt.Fprintf(&sb, "**Kind:** %s\n", res.Kind)
	fmt.Fprintf(&sb, "**Created:** %s\n", res.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "**Duration:** %s\n\n", res.Duration.Round(time.Millisecond))

	sb.WriteString("| x | runs | mean DF | extent | frequency | steps | largest defaulted |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, p := range res.Summaries(threshold) {
		fmt.Fprintf(&sb, "| %g | %d | %.4f | %.4f | %.4f | %.2f | %.3f |\n",
			p.X, p.Runs, p.MeanDF, p.ContagionExtent, p.ContagionFrequency, p.CascadeSteps, p.LargestDefaulted)
	}
	return sb.String()
}
