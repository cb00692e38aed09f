package mcp

import (
	"time"

	"github.com/nvandessel/gkmerge/internal/experiment"
	"github.com/nvandessel/gkmerge/internal/network"
	"github.com/nvandessel/gkmerge/internal/stats"
	"github.com/nvandessel/gkmerge/internal/store"
)

// BuildInput defines the input for the gkmerge_build tool.
type BuildInput struct {
	Name     string   `json:"name,omitempty" jsonschema:"Session name of the network (default: default)"`
	Topology string   `json:"topology,omitempty" jsonschema:"complete, circular, erdos_renyi, fast_erdos_renyi, chung_lu or barabasi_albert (default: fast_erdos_renyi)"`
	Banks    int      `json:"banks,omitempty" jsonschema:"Number of banks (default: 100)"`
	P        float64  `json:"p,omitempty" jsonschema:"Link probability of the Erdos-Renyi generators"`
	Z        float64  `json:"z,omitempty" jsonschema:"Mean degree of Chung-Lu"`
	Gamma    float64  `json:"gamma,omitempty" jsonschema:"Power-law exponent of Chung-Lu, above 2 (default: 3)"`
	M        int      `json:"m,omitempty" jsonschema:"Lenders per new bank in Barabasi-Albert"`
	Links    [][2]int `json:"links,omitempty" jsonschema:"Explicit loans as [debtor, creditor] pairs; replaces the topology"`

	Alpha         *float64 `json:"alpha,omitempty" jsonschema:"Interbank share of total assets (default: 0.2)"`
	Kappa         *float64 `json:"kappa,omitempty" jsonschema:"Capital share of total assets (default: 0.04)"`
	C             float64  `json:"c,omitempty" jsonschema:"Share of external assets held in common assets"`
	Assets        int      `json:"assets,omitempty" jsonschema:"Number of common asset entities; 0 keeps common holdings homogeneous"`
	AssetsPerBank int      `json:"assets_per_bank,omitempty" jsonschema:"Distinct assets each bank invests in (default: all)"`
	Seed          uint64   `json:"seed,omitempty" jsonschema:"Random seed; 0 draws one"`
}

// NetworkSummary describes a session network.
type NetworkSummary struct {
	Name         string  `json:"name"`
	Seed         uint64  `json:"seed"`
	Banks        int     `json:"banks"`
	Links        int     `json:"links"`
	Assets       int     `json:"assets"`
	MeanDegree   float64 `json:"mean_degree"`
	SystemAssets float64 `json:"system_assets"`
	MergeRound   int     `json:"merge_round"`
	Defaulted    int     `json:"defaulted"`
}

// CascadeInput defines the input for the gkmerge_cascade tool.
type CascadeInput struct {
	Name              string  `json:"name,omitempty" jsonschema:"Session network (default: default)"`
	Bank              *int    `json:"bank,omitempty" jsonschema:"Bank to shock; overrides shock"`
	Shock             string  `json:"shock,omitempty" jsonschema:"random, max_in_degree or largest (default: random)"`
	Mode              string  `json:"mode,omitempty" jsonschema:"simultaneous or sequential (default: simultaneous)"`
	RecoveryRate      float64 `json:"recovery_rate,omitempty" jsonschema:"Fraction of a defaulted loan the creditor recovers, in [0, 1]"`
	DeprecationFactor float64 `json:"deprecation_factor,omitempty" jsonschema:"Fire-sale price impact in [0, 1); simultaneous mode only"`
	Keep              bool    `json:"keep,omitempty" jsonschema:"Leave the network in its defaulted state instead of undoing the cascade"`
}

// CascadeOutput defines the output for the gkmerge_cascade tool.
type CascadeOutput struct {
	Result    network.CascadeResult  `json:"result"`
	Defaulted []network.BankID       `json:"defaulted"`
	Profile   []network.ProfilePoint `json:"profile"`
	Kept      bool                   `json:"kept"`
}

// MergeInput defines the input for the gkmerge_merge tool.
type MergeInput struct {
	Name         string `json:"name,omitempty" jsonschema:"Session network (default: default)"`
	Acquiring    *int   `json:"acquiring,omitempty" jsonschema:"Acquiring bank of an explicit merger; requires acquired"`
	Acquired     *int   `json:"acquired,omitempty" jsonschema:"Bank absorbed by an explicit merger"`
	Rule         string `json:"rule,omitempty" jsonschema:"Random merger rule: random, vertical or semihorizontal (default: random)"`
	Count        int    `json:"count,omitempty" jsonschema:"Number of random mergers (default: 1)"`
	ResetPairing bool   `json:"reset_pairing,omitempty" jsonschema:"Draw a fresh pairing when semihorizontal mergers exhaust the current one"`
}

// MergeOutput defines the output for the gkmerge_merge tool.
type MergeOutput struct {
	Merges  []network.MergeResult `json:"merges"`
	Network NetworkSummary        `json:"network"`
}

// GraphInput defines the input for the gkmerge_graph tool.
type GraphInput struct {
	Name   string `json:"name,omitempty" jsonschema:"Session network (default: default)"`
	Format string `json:"format,omitempty" jsonschema:"dot, json or html (default: json)"`
}

// GraphOutput defines the output for the gkmerge_graph tool.
type GraphOutput struct {
	Format string `json:"format"`
	Graph  any    `json:"graph"`
	Banks  int    `json:"banks"`
	Links  int    `json:"links"`
}

// ExperimentInput holds the parameters shared by both experiment tools.
// Zero values keep the configured defaults.
type ExperimentInput struct {
	Topology          string   `json:"topology,omitempty" jsonschema:"Generator topology"`
	Banks             int      `json:"banks,omitempty" jsonschema:"Number of banks"`
	P                 float64  `json:"p,omitempty" jsonschema:"Link probability (mergers) of the Erdos-Renyi generators"`
	Z                 float64  `json:"z,omitempty" jsonschema:"Mean degree (mergers) of Chung-Lu"`
	Gamma             float64  `json:"gamma,omitempty" jsonschema:"Power-law exponent of Chung-Lu"`
	Runs              int      `json:"runs,omitempty" jsonschema:"Realizations per point"`
	Seed              uint64   `json:"seed,omitempty" jsonschema:"Random seed; 0 draws one"`
	Shock             string   `json:"shock,omitempty" jsonschema:"random, max_in_degree or largest"`
	Mode              string   `json:"mode,omitempty" jsonschema:"simultaneous or sequential"`
	RecoveryRate      *float64 `json:"recovery_rate,omitempty" jsonschema:"Recovery rate in [0, 1]"`
	DeprecationFactor *float64 `json:"deprecation_factor,omitempty" jsonschema:"Fire-sale price impact in [0, 1)"`
	C                 *float64 `json:"c,omitempty" jsonschema:"Share of external assets held in common assets"`
}

// WindowInput defines the input for the gkmerge_window tool.
type WindowInput struct {
	Params ExperimentInput `json:"params,omitempty" jsonschema:"Network and cascade parameters"`
	Min    *float64        `json:"min,omitempty" jsonschema:"First value of the swept parameter"`
	Max    *float64        `json:"max,omitempty" jsonschema:"Last value of the swept parameter"`
	Points int             `json:"points,omitempty" jsonschema:"Number of sweep points"`
}

// MergersInput defines the input for the gkmerge_mergers tool.
type MergersInput struct {
	Params     ExperimentInput `json:"params,omitempty" jsonschema:"Network and cascade parameters"`
	Rule       string          `json:"rule,omitempty" jsonschema:"random, vertical or semihorizontal"`
	FirstRound *int            `json:"first_round,omitempty" jsonschema:"First checkpoint merge round"`
	LastRound  int             `json:"last_round,omitempty" jsonschema:"Last checkpoint merge round"`
	Points     int             `json:"points,omitempty" jsonschema:"Number of checkpoints"`
}

// ExperimentOutput defines the output of both experiment tools.
type ExperimentOutput struct {
	ID         string          `json:"id"`
	Kind       experiment.Kind `json:"kind"`
	DurationMs int64           `json:"duration_ms"`
	Attributes map[string]any  `json:"attributes"`
	Summaries  []stats.Summary `json:"summaries"`
}

// ResultsInput defines the input for the gkmerge_results tool.
type ResultsInput struct {
	ID     string `json:"id,omitempty" jsonschema:"Result to show; empty lists results"`
	Kind   string `json:"kind,omitempty" jsonschema:"List filter: contagion_window or continuous_mergers"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of listed results"`
	Delete bool   `json:"delete,omitempty" jsonschema:"Delete the result given by id"`
}

// ResultSummary describes a stored result without its run data.
type ResultSummary struct {
	ID         string          `json:"id"`
	Kind       experiment.Kind `json:"kind"`
	CreatedAt  string          `json:"created_at"`
	Points     int             `json:"points"`
	Runs       int             `json:"runs"`
	Attributes map[string]any  `json:"attributes"`
}

func resultSummary(s store.Summary) ResultSummary {
	return ResultSummary{
		ID:         s.ID,
		Kind:       s.Kind,
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
		Points:     s.Points,
		Runs:       s.Runs,
		Attributes: s.Attributes,
	}
}

// ResultsOutput defines the output for the gkmerge_results tool.
type ResultsOutput struct {
	Results []ResultSummary   `json:"results,omitempty"`
	Result  *ExperimentOutput `json:"result,omitempty"`
	Deleted bool              `json:"deleted,omitempty"`
}
