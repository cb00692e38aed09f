// Package generators builds interbank networks from topology recipes and
// seeds them with homogeneous balance sheets.
//
// Every generator first draws a list of directed loans (debtor, creditor)
// and then hands it to SeedHomogeneous, which creates the banks, weights the
// loans and fills in the external positions. Randomness comes exclusively
// from the *rand.Rand passed in, so a fixed seed reproduces a network.
package generators

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/nvandessel/gkmerge/internal/constants"
	"github.com/nvandessel/gkmerge/internal/network"
)

// ErrInvalidOptions is returned for out-of-range generator parameters.
var ErrInvalidOptions = fmt.Errorf("%w: invalid generator options", network.ErrValidation)

// Options controls balance-sheet seeding.
type Options struct {
	// Alpha is the fraction of interbank assets in total assets.
	Alpha float64 `json:"alpha" yaml:"alpha"`
	// Kappa is the fraction of capital in total assets.
	Kappa float64 `json:"kappa" yaml:"kappa"`
	// C is the fraction of external assets held as common assets.
	C float64 `json:"c" yaml:"c"`
	// Assets is the number of common asset entities. Zero keeps common
	// holdings as a homogeneous aggregate on every bank.
	Assets int `json:"assets" yaml:"assets"`
	// AssetsPerBank is the number of distinct assets each bank invests in.
	// Zero or more than Assets means every asset.
	AssetsPerBank int `json:"assets_per_bank" yaml:"assets_per_bank"`
	// DevaluationLaw is the price-impact law of created assets.
	DevaluationLaw network.DevaluationLaw `json:"devaluation_law" yaml:"devaluation_law"`

	Tracer network.Tracer `json:"-" yaml:"-"`
}

// DefaultOptions returns the seeding used by the experiments.
func DefaultOptions() Options {
	return Options{
		Alpha:          constants.DefaultAlpha,
		Kappa:          constants.DefaultKappa,
		DevaluationLaw: network.DevaluationExponential,
	}
}

// Validate checks that every fraction lies in [0, 1].
func (o Options) Validate() error {
	var errs []error
	for _, f := range []struct {
		name string
		v    float64
	}{{"alpha", o.Alpha}, {"kappa", o.Kappa}, {"c", o.C}} {
		if !(f.v >= 0 && f.v <= 1) {
			errs = append(errs, fmt.Errorf("%w: %s must be in [0, 1], got %v", ErrInvalidOptions, f.name, f.v))
		}
	}
	if o.Assets < 0 {
		errs = append(errs, fmt.Errorf("%w: assets must be non-negative, got %d", ErrInvalidOptions, o.Assets))
	}
	if o.DevaluationLaw != "" && !o.DevaluationLaw.Valid() {
		errs = append(errs, fmt.Errorf("%w: unknown devaluation law %q", ErrInvalidOptions, o.DevaluationLaw))
	}
	return errors.Join(errs...)
}

// Link is a loan by bank index: Link{debtor, creditor}.
type Link [2]int

// SeedHomogeneous creates n banks connected by links and gives every bank
// the same total assets and capital. A bank's interbank assets, Alpha of the
// total, are split evenly over its incoming loans; banks without debtors
// hold only external assets. Of the external assets a fraction C is held in
// common assets. Interbank liabilities follow from the loan weights and
// external liabilities close the balance sheet at capital Kappa of the
// total, which can make them negative for banks owing much more than they
// lend.
//
// Duplicate links are collapsed. Bank ids are 0..n-1.
func SeedHomogeneous(r *rand.Rand, n int, links []Link, opts Options) (*network.Network, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: need at least one bank, got %d", ErrInvalidOptions, n)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	law := opts.DevaluationLaw
	if law == "" {
		law = network.DevaluationExponential
	}

	unique := make([]Link, 0, len(links))
	seen := make(map[Link]bool, len(links))
	inDeg := make([]int, n)
	for _, l := range links {
		if l[0] < 0 || l[0] >= n || l[1] < 0 || l[1] >= n {
			return nil, fmt.Errorf("%w: link %d->%d outside 0..%d", ErrInvalidOptions, l[0], l[1], n-1)
		}
		if l[0] == l[1] {
			return nil, fmt.Errorf("link %d->%d: %w", l[0], l[1], network.ErrSelfLoop)
		}
		if seen[l] {
			continue
		}
		seen[l] = true
		unique = append(unique, l)
		inDeg[l[1]]++
	}

	total := constants.TotalAssets
	assetsIB := total * opts.Alpha
	weight := func(creditor int) float64 { return assetsIB / float64(inDeg[creditor]) }
	outWeight := make([]float64, n)
	for _, l := range unique {
		outWeight[l[0]] += weight(l[1])
	}

	netOpts := []network.Option{network.WithRand(r), network.WithDevaluationLaw(law)}
	if opts.Tracer != nil {
		netOpts = append(netOpts, network.WithTracer(opts.Tracer))
	}
	net := network.New(netOpts...)

	common := make([]float64, n)
	for i := 0; i < n; i++ {
		external := total
		if inDeg[i] > 0 {
			external -= assetsIB
		}
		common[i] = external * opts.C
		sheet := network.BalanceSheet{
			AssetsE:      external - common[i],
			LiabilitiesE: total - outWeight[i] - total*opts.Kappa,
		}
		if opts.Assets == 0 {
			sheet.AssetsCom = common[i]
		}
		net.CreateBank(sheet)
	}
	for _, l := range unique {
		if err := net.AddOrUpdateLink(network.BankID(l[0]), network.BankID(l[1]), weight(l[1]), true); err != nil {
			return nil, err
		}
	}
	if opts.Assets > 0 {
		if err := investEvenly(r, net, common, opts); err != nil {
			return nil, err
		}
	}
	return net, nil
}

// investEvenly creates the asset entities and spreads every bank's common
// holdings evenly over a random selection of them.
func investEvenly(r *rand.Rand, net *network.Network, common []float64, opts Options) error {
	ids := make([]network.AssetID, opts.Assets)
	for i := range ids {
		id, err := net.AddAsset(constants.DefaultAssetPrice)
		if err != nil {
			return err
		}
		ids[i] = id
	}
	k := opts.AssetsPerBank
	if k <= 0 || k > opts.Assets {
		k = opts.Assets
	}
	for b, amount := range common {
		if amount <= 0 {
			continue
		}
		for _, j := range r.Perm(opts.Assets)[:k] {
			if err := net.AddOrUpdateInvestment(network.BankID(b), ids[j], amount/float64(k), true); err != nil {
				return err
			}
		}
	}
	return nil
}

// Complete links every ordered pair of distinct banks.
func Complete(r *rand.Rand, n int, opts Options) (*network.Network, error) {
	var links []Link
	for u := 0; u < n; u++ {
		for v := 0; v < n; v++ {
			if u != v {
				links = append(links, Link{u, v})
			}
		}
	}
	return SeedHomogeneous(r, n, links, opts)
}

// Circular links bank i to bank i+1, wrapping around.
func Circular(r *rand.Rand, n int, opts Options) (*network.Network, error) {
	var links []Link
	if n > 1 {
		for i := 0; i < n; i++ {
			links = append(links, Link{i, (i + 1) % n})
		}
	}
	return SeedHomogeneous(r, n, links, opts)
}

// ErdosRenyi draws every ordered pair independently with probability p.
func ErdosRenyi(r *rand.Rand, n int, p float64, opts Options) (*network.Network, error) {
	if err := checkProbability(p); err != nil {
		return nil, err
	}
	var links []Link
	for u := 0; u < n; u++ {
		for v := 0; v < n; v++ {
			if u != v && r.Float64() < p {
				links = append(links, Link{u, v})
			}
		}
	}
	return SeedHomogeneous(r, n, links, opts)
}

// FastErdosRenyi samples the same ensemble as ErdosRenyi in time linear in
// the number of links by jumping over absent pairs with geometrically
// distributed gaps.
func FastErdosRenyi(r *rand.Rand, n int, p float64, opts Options) (*network.Network, error) {
	if err := checkProbability(p); err != nil {
		return nil, err
	}
	if p == 1 {
		return Complete(r, n, opts)
	}
	var links []Link
	if p > 0 && n > 1 {
		slots := n * (n - 1)
		lp := math.Log1p(-p)
		for k := -1; ; {
			gap := math.Floor(math.Log1p(-r.Float64()) / lp)
			if float64(k)+1+gap >= float64(slots) {
				break
			}
			k += 1 + int(gap)
			u, j := k/(n-1), k%(n-1)
			v := j
			if j >= u {
				v++
			}
			links = append(links, Link{u, v})
		}
	}
	return SeedHomogeneous(r, n, links, opts)
}

// ChungLu draws a directed network with a power-law expected degree
// sequence of exponent gamma and mean degree z. Bank i gets weight
// proportional to (i+1)^(-1/(gamma-1)) and the pair (u, v) is linked with
// probability min(1, w_u*w_v/sum(w)).
func ChungLu(r *rand.Rand, n int, z, gamma float64, opts Options) (*network.Network, error) {
	if !(z >= 0) || math.IsInf(z, 0) {
		return nil, fmt.Errorf("%w: mean degree must be non-negative, got %v", ErrInvalidOptions, z)
	}
	if !(gamma > 2) {
		return nil, fmt.Errorf("%w: gamma must exceed 2, got %v", ErrInvalidOptions, gamma)
	}
	var links []Link
	if z > 0 && n > 1 {
		w := make([]float64, n)
		sum := 0.0
		for i := range w {
			w[i] = math.Pow(float64(i+1), -1/(gamma-1))
			sum += w[i]
		}
		scale := z * float64(n) / sum
		for i := range w {
			w[i] *= scale
		}
		total := z * float64(n)
		for u := 0; u < n; u++ {
			for v := 0; v < n; v++ {
				if u != v && r.Float64() < math.Min(1, w[u]*w[v]/total) {
					links = append(links, Link{u, v})
				}
			}
		}
	}
	return SeedHomogeneous(r, n, links, opts)
}

// BarabasiAlbert grows a network by preferential attachment: every new bank
// borrows from m distinct existing banks chosen with probability
// proportional to their degree.
func BarabasiAlbert(r *rand.Rand, n, m int, opts Options) (*network.Network, error) {
	if m < 1 || m >= n {
		return nil, fmt.Errorf("%w: need 1 <= m < n, got m=%d n=%d", ErrInvalidOptions, m, n)
	}
	var links []Link
	targets := make([]int, m)
	for i := range targets {
		targets[i] = i
	}
	var repeated []int
	for src := m; src < n; src++ {
		for _, t := range targets {
			links = append(links, Link{src, t})
		}
		repeated = append(repeated, targets...)
		for i := 0; i < m; i++ {
			repeated = append(repeated, src)
		}
		chosen := make(map[int]bool, m)
		targets = targets[:0]
		for len(targets) < m {
			t := repeated[r.IntN(len(repeated))]
			if !chosen[t] {
				chosen[t] = true
				targets = append(targets, t)
			}
		}
	}
	return SeedHomogeneous(r, n, links, opts)
}

// FromLinkList builds a network of n banks from explicit loans.
func FromLinkList(r *rand.Rand, n int, links []Link, opts Options) (*network.Network, error) {
	return SeedHomogeneous(r, n, links, opts)
}

func checkProbability(p float64) error {
	if !(p >= 0 && p <= 1) {
		return fmt.Errorf("%w: probability must be in [0, 1], got %v", ErrInvalidOptions, p)
	}
	return nil
}
