package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/gkmerge/internal/constants"
	"github.com/nvandessel/gkmerge/internal/experiment"
	"github.com/nvandessel/gkmerge/internal/generators"
	"github.com/nvandessel/gkmerge/internal/logging"
	"github.com/nvandessel/gkmerge/internal/network"
)

// addSeedingFlags registers the balance-sheet flags shared by every command
// that builds networks.
func addSeedingFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64("alpha", constants.DefaultAlpha, "Interbank share of total assets")
	f.Float64("kappa", constants.DefaultKappa, "Capital share of total assets")
	f.Float64("c", 0, "Share of external assets held in common assets")
	f.Int("assets", 0, "Number of common asset entities (0 keeps common holdings homogeneous)")
	f.Int("assets-per-bank", 0, "Distinct assets each bank invests in (0 means all)")
	f.String("devaluation", string(network.DevaluationExponential), "Price-impact law: exponential or identity")
}

// seedingFromFlags overrides opts with the seeding flags the user set.
func seedingFromFlags(cmd *cobra.Command, opts *generators.Options) error {
	f := cmd.Flags()
	if f.Changed("alpha") {
		opts.Alpha, _ = f.GetFloat64("alpha")
	}
	if f.Changed("kappa") {
		opts.Kappa, _ = f.GetFloat64("kappa")
	}
	if f.Changed("c") {
		opts.C, _ = f.GetFloat64("c")
	}
	if f.Changed("assets") {
		opts.Assets, _ = f.GetInt("assets")
	}
	if f.Changed("assets-per-bank") {
		opts.AssetsPerBank, _ = f.GetInt("assets-per-bank")
	}
	if f.Changed("devaluation") {
		s, _ := f.GetString("devaluation")
		law, err := network.ParseDevaluationLaw(s)
		if err != nil {
			return err
		}
		opts.DevaluationLaw = law
	}
	return nil
}

// addNetworkFlags registers the flags of commands that build one network.
func addNetworkFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("topology", string(generators.TopologyFastErdosRenyi),
		"Generator: complete, circular, erdos_renyi (er), fast_erdos_renyi, chung_lu (cl) or barabasi_albert")
	f.Int("banks", constants.DefaultBanks, "Number of banks")
	f.Float64("p", 0.01, "Link probability of the Erdos-Renyi generators")
	f.Float64("z", 1, "Mean degree of Chung-Lu")
	f.Float64("gamma", 3, "Power-law exponent of Chung-Lu")
	f.Int("m", 1, "Lenders per new bank in Barabasi-Albert")
	f.Uint64("seed", 0, "Random seed (0 draws one)")
	f.String("links", "", "File of loans, one \"debtor creditor\" pair per line; replaces --topology")
	f.Int("merges", 0, "Random mergers to perform after building")
	f.String("rule", string(network.MergeRandom), "Merger rule: random, vertical or semihorizontal")
	addSeedingFlags(cmd)
}

// builtNetwork is a network together with how it was made.
type builtNetwork struct {
	Net    *network.Network
	Seed   uint64
	Merges []network.MergeResult
}

// buildNetwork builds the network described by the network flags and
// performs the requested mergers.
func buildNetwork(cmd *cobra.Command, tracer *logging.TraceLogger) (*builtNetwork, error) {
	f := cmd.Flags()
	opts := generators.DefaultOptions()
	if err := seedingFromFlags(cmd, &opts); err != nil {
		return nil, err
	}
	if tracer != nil {
		opts.Tracer = tracer
	}

	seed, _ := f.GetUint64("seed")
	for seed == 0 {
		seed = rand.Uint64()
	}
	r := rand.New(rand.NewPCG(seed, 0))

	var (
		net *network.Network
		err error
	)
	if path, _ := f.GetString("links"); path != "" {
		links, n, err := readLinksFile(path)
		if err != nil {
			return nil, err
		}
		if f.Changed("banks") {
			n, _ = f.GetInt("banks")
		}
		net, err = generators.FromLinkList(r, n, links, opts)
		if err != nil {
			return nil, fmt.Errorf("build network: %w", err)
		}
	} else {
		var recipe generators.Recipe
		topology, _ := f.GetString("topology")
		if recipe.Topology, err = generators.ParseTopology(topology); err != nil {
			return nil, err
		}
		recipe.Banks, _ = f.GetInt("banks")
		recipe.P, _ = f.GetFloat64("p")
		recipe.Z, _ = f.GetFloat64("z")
		recipe.Gamma, _ = f.GetFloat64("gamma")
		recipe.M, _ = f.GetInt("m")
		if net, err = recipe.Build(r, opts); err != nil {
			return nil, fmt.Errorf("build network: %w", err)
		}
	}

	built := &builtNetwork{Net: net, Seed: seed}
	merges, _ := f.GetInt("merges")
	if merges > 0 {
		s, _ := f.GetString("rule")
		rule, err := network.ParseMergeRule(s)
		if err != nil {
			return nil, err
		}
		for i := 0; i < merges; i++ {
			m, err := randomMerge(net, rule)
			if err != nil {
				return nil, fmt.Errorf("merger %d of %d: %w", i+1, merges, err)
			}
			built.Merges = append(built.Merges, m)
		}
	}
	return built, nil
}

// randomMerge merges by rule, drawing a fresh semihorizontal pairing when
// the current one is exhausted.
func randomMerge(net *network.Network, rule network.MergeRule) (network.MergeResult, error) {
	m, err := net.RandomMerge(rule)
	if errors.Is(err, network.ErrPairingExhausted) {
		net.ResetPairing()
		m, err = net.RandomMerge(rule)
	}
	return m, err
}

func readLinksFile(path string) ([]generators.Link, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open links file: %w", err)
	}
	defer f.Close()
	return parseLinks(f)
}

// parseLinks reads "debtor creditor" pairs separated by whitespace or a
// comma. Blank lines and lines starting with # are skipped. It returns the
// links and the number of banks they need.
func parseLinks(r io.Reader) ([]generators.Link, int, error) {
	var (
		links []generators.Link
		n     int
	)
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		if len(fields) != 2 {
			return nil, 0, fmt.Errorf("line %d: want \"debtor creditor\", got %q", line, text)
		}
		var l generators.Link
		for i, s := range fields {
			v, err := strconv.Atoi(s)
			if err != nil || v < 0 {
				return nil, 0, fmt.Errorf("line %d: invalid bank id %q", line, s)
			}
			l[i] = v
		}
		links = append(links, l)
		n = max(n, l[0]+1, l[1]+1)
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("read links: %w", err)
	}
	return links, n, nil
}

// addExperimentFlags registers the flags shared by window and mergers.
// Flags left unset keep the configured value.
func addExperimentFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("topology", "", "Generator topology (default from config)")
	f.Int("banks", 0, "Number of banks")
	f.Float64("gamma", 0, "Power-law exponent of Chung-Lu")
	f.Int("runs", 0, "Realizations per point")
	f.Uint64("seed", 0, "Random seed (0 draws one)")
	f.Int("workers", 0, "Concurrent realizations")
	f.String("shock", "", "Initial shock: random, max_in_degree or largest")
	f.String("mode", "", "Contagion mode: simultaneous or sequential")
	f.Float64("rr", 0, "Recovery rate in [0, 1]")
	f.Float64("d", 0, "Fire-sale deprecation factor in [0, 1)")
	f.Bool("no-save", false, "Do not store the result")
	f.StringP("output", "o", "", "Also export the result as JSON into this directory")
	addSeedingFlags(cmd)
}

// experimentFromFlags overrides p with the experiment flags the user set.
func experimentFromFlags(cmd *cobra.Command, p *experiment.Params) error {
	f := cmd.Flags()
	var err error
	if f.Changed("topology") {
		s, _ := f.GetString("topology")
		if p.Recipe.Topology, err = generators.ParseTopology(s); err != nil {
			return err
		}
	}
	if f.Changed("banks") {
		p.Recipe.Banks, _ = f.GetInt("banks")
	}
	if f.Changed("gamma") {
		p.Recipe.Gamma, _ = f.GetFloat64("gamma")
	}
	if f.Changed("runs") {
		p.Runs, _ = f.GetInt("runs")
	}
	if f.Changed("seed") {
		p.Seed, _ = f.GetUint64("seed")
	}
	if f.Changed("workers") {
		p.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("shock") {
		s, _ := f.GetString("shock")
		if p.Shock, err = experiment.ParseShockMode(s); err != nil {
			return err
		}
	}
	if f.Changed("mode") {
		s, _ := f.GetString("mode")
		if p.Mode, err = network.ParseCascadeMode(s); err != nil {
			return err
		}
	}
	if f.Changed("rr") {
		p.RecoveryRate, _ = f.GetFloat64("rr")
	}
	if f.Changed("d") {
		p.DeprecationFactor, _ = f.GetFloat64("d")
	}
	return seedingFromFlags(cmd, &p.Seeding)
}
