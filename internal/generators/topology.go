package generators

import (
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/gkmerge/internal/network"
)

// Topology names a generator recipe.
type Topology string

const (
	TopologyComplete       Topology = "complete"
	TopologyCircular       Topology = "circular"
	TopologyErdosRenyi     Topology = "erdos_renyi"
	TopologyFastErdosRenyi Topology = "fast_erdos_renyi"
	TopologyChungLu        Topology = "chung_lu"
	TopologyBarabasiAlbert Topology = "barabasi_albert"
)

// Valid returns true if the topology is a recognized value.
func (t Topology) Valid() bool {
	switch t {
	case TopologyComplete, TopologyCircular, TopologyErdosRenyi,
		TopologyFastErdosRenyi, TopologyChungLu, TopologyBarabasiAlbert:
		return true
	}
	return false
}

// String returns the string representation of the topology.
func (t Topology) String() string { return string(t) }

// ParseTopology converts a configuration value into a Topology. The short
// names "er" and "cl" are accepted for the two sweepable generators.
func ParseTopology(s string) (Topology, error) {
	switch s {
	case "er":
		return TopologyFastErdosRenyi, nil
	case "cl":
		return TopologyChungLu, nil
	}
	t := Topology(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown topology %q", ErrInvalidOptions, s)
	}
	return t, nil
}

// Recipe is a fully parameterized generator call.
type Recipe struct {
	Topology Topology `json:"topology" yaml:"topology"`
	Banks    int      `json:"banks" yaml:"banks"`
	// P is the link probability of the Erdos-Renyi generators.
	P float64 `json:"p,omitempty" yaml:"p,omitempty"`
	// Z and Gamma parameterize Chung-Lu.
	Z     float64 `json:"z,omitempty" yaml:"z,omitempty"`
	Gamma float64 `json:"gamma,omitempty" yaml:"gamma,omitempty"`
	// M is the number of lenders per new bank in Barabasi-Albert.
	M int `json:"m,omitempty" yaml:"m,omitempty"`
}

// Build runs the recipe.
func (rc Recipe) Build(r *rand.Rand, opts Options) (*network.Network, error) {
	switch rc.Topology {
	case TopologyComplete:
		return Complete(r, rc.Banks, opts)
	case TopologyCircular:
		return Circular(r, rc.Banks, opts)
	case TopologyErdosRenyi:
		return ErdosRenyi(r, rc.Banks, rc.P, opts)
	case TopologyFastErdosRenyi:
		return FastErdosRenyi(r, rc.Banks, rc.P, opts)
	case TopologyChungLu:
		return ChungLu(r, rc.Banks, rc.Z, rc.Gamma, opts)
	case TopologyBarabasiAlbert:
		return BarabasiAlbert(r, rc.Banks, rc.M, opts)
	default:
		return nil, fmt.Errorf("%w: unknown topology %q", ErrInvalidOptions, rc.Topology)
	}
}

// WithSweep returns a copy of the recipe with its sweep parameter set to x:
// the link probability for Erdos-Renyi and the mean degree for Chung-Lu.
func (rc Recipe) WithSweep(x float64) (Recipe, error) {
	switch rc.Topology {
	case TopologyErdosRenyi, TopologyFastErdosRenyi:
		rc.P = x
	case TopologyChungLu:
		rc.Z = x
	default:
		return rc, fmt.Errorf("%w: topology %q has no sweep parameter", ErrInvalidOptions, rc.Topology)
	}
	return rc, nil
}

// SweepParameter names the parameter WithSweep varies.
func (rc Recipe) SweepParameter() string {
	switch rc.Topology {
	case TopologyErdosRenyi, TopologyFastErdosRenyi:
		return "p"
	case TopologyChungLu:
		return "z"
	}
	return ""
}
