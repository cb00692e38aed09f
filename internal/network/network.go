// Package network implements the interbank contagion engine: banks with
// balance sheets, common assets subject to fire-sale devaluation, the
// directed loan graph and bank-asset investment graph, the default cascade
// state machine and bank mergers as graph contraction.
//
// A Network is the single owner of its banks, assets and edges. Banks and
// assets are records keyed by integer ids; edges live only in the Network's
// two-sided adjacency tables, which every mutation keeps consistent with the
// banks' balance-sheet aggregates. A Network is not safe for concurrent use;
// independent experiments must use independent Networks.
package network

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/nvandessel/gkmerge/internal/randset"
)

// Tracer receives structured events about cascade rounds and mergers.
// logging.TraceLogger satisfies it.
type Tracer interface {
	Log(event map[string]any)
}

// Option configures a Network.
type Option func(*Network)

// WithRand sets the random source used for shocks and random mergers.
func WithRand(r *rand.Rand) Option {
	return func(n *Network) { n.rng = r }
}

// WithSeed seeds a PCG random source for shocks and random mergers.
func WithSeed(seed uint64) Option {
	return func(n *Network) { n.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithDevaluationLaw sets the price-impact law of assets created by AddAsset.
func WithDevaluationLaw(law DevaluationLaw) Option {
	return func(n *Network) { n.law = law }
}

// WithTracer sets a receiver for cascade and merge events.
func WithTracer(t Tracer) Option {
	return func(n *Network) { n.tracer = t }
}

// Network owns all banks, assets and edges and drives cascades and mergers.
type Network struct {
	rng    *rand.Rand
	law    DevaluationLaw
	tracer Tracer

	banks       map[BankID]*Bank
	bankSet     *randset.Set[BankID]
	assets      map[AssetID]*Asset
	assetSet    *randset.Set[AssetID]
	nextBankID  BankID
	nextAssetID AssetID

	// succ[u][v] = w: u owes v the amount w. pred mirrors it.
	succ map[BankID]map[BankID]float64
	pred map[BankID]map[BankID]float64
	// invest[b][a] = w: b holds w of asset a. holders mirrors it.
	invest  map[BankID]map[AssetID]float64
	holders map[AssetID]map[BankID]float64

	numLinks       int
	numInvestments int
	mergeRound     int
	pairing        [][2]BankID
	pairingBuilt   bool

	pending               map[BankID]*pendingState
	initSystemAssets      float64
	defaultedSystemAssets float64
	cascadeSteps          int
	profile               []ProfilePoint
}

// New creates an empty Network.
func New(opts ...Option) *Network {
	n := &Network{
		law:      DevaluationExponential,
		banks:    make(map[BankID]*Bank),
		bankSet:  randset.New[BankID](),
		assets:   make(map[AssetID]*Asset),
		assetSet: randset.New[AssetID](),
		succ:     make(map[BankID]map[BankID]float64),
		pred:     make(map[BankID]map[BankID]float64),
		invest:   make(map[BankID]map[AssetID]float64),
		holders:  make(map[AssetID]map[BankID]float64),
		pending:  make(map[BankID]*pendingState),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.rng == nil {
		n.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return n
}

// Rand returns the Network's random source.
func (n *Network) Rand() *rand.Rand { return n.rng }

// NumBanks returns the number of banks.
func (n *Network) NumBanks() int { return n.bankSet.Len() }

// NumAssets returns the number of common assets.
func (n *Network) NumAssets() int { return n.assetSet.Len() }

// NumLinks returns the number of interbank edges.
func (n *Network) NumLinks() int { return n.numLinks }

// NumInvestments returns the number of bank-asset edges.
func (n *Network) NumInvestments() int { return n.numInvestments }

// MergeRound returns the number of mergers performed so far.
func (n *Network) MergeRound() int { return n.mergeRound }

// Bank returns the bank with the given id.
func (n *Network) Bank(id BankID) (*Bank, bool) {
	b, ok := n.banks[id]
	return b, ok
}

// Asset returns the asset with the given id.
func (n *Network) Asset(id AssetID) (*Asset, bool) {
	a, ok := n.assets[id]
	return a, ok
}

// Banks returns all bank ids in ascending order.
func (n *Network) Banks() []BankID {
	ids := n.bankSet.Items()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Assets returns all asset ids in ascending order.
func (n *Network) Assets() []AssetID {
	ids := n.assetSet.Items()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Link is a directed interbank loan: From owes To the amount Weight.
type Link struct {
	From   BankID  `json:"from"`
	To     BankID  `json:"to"`
	Weight float64 `json:"weight"`
}

// Links returns all interbank edges ordered by debtor, then creditor.
func (n *Network) Links() []Link {
	links := make([]Link, 0, n.numLinks)
	for _, u := range n.Banks() {
		for _, e := range n.successorsOf(u) {
			links = append(links, Link{From: u, To: e.id, Weight: e.weight})
		}
	}
	return links
}

// LinkWeight returns the weight of the edge u->v.
func (n *Network) LinkWeight(u, v BankID) (float64, bool) {
	w, ok := n.succ[u][v]
	return w, ok
}

// Successors returns a copy of the creditors of id with loan weights.
func (n *Network) Successors(id BankID) map[BankID]float64 {
	return copyWeights(n.succ[id])
}

// Predecessors returns a copy of the debtors of id with loan weights.
func (n *Network) Predecessors(id BankID) map[BankID]float64 {
	return copyWeights(n.pred[id])
}

// Investments returns a copy of the asset positions of bank id.
func (n *Network) Investments(id BankID) map[AssetID]float64 {
	return copyWeights(n.invest[id])
}

// Holders returns a copy of the bank positions in asset id.
func (n *Network) Holders(id AssetID) map[BankID]float64 {
	return copyWeights(n.holders[id])
}

// Largest returns the bank with the highest merge state. Ties go to the
// lowest id.
func (n *Network) Largest() (BankID, bool) {
	var best *Bank
	for i := 0; i < n.bankSet.Len(); i++ {
		b := n.banks[n.bankSet.At(i)]
		if best == nil || b.mergeState > best.mergeState ||
			(b.mergeState == best.mergeState && b.id < best.id) {
			best = b
		}
	}
	if best == nil {
		return 0, false
	}
	return best.id, true
}

// ShockID applies the initial shock to the given bank.
func (n *Network) ShockID(id BankID) error {
	b, ok := n.banks[id]
	if !ok {
		return bankNotFound(id)
	}
	b.AggregateShock()
	return nil
}

// ShockRandom shocks a uniformly drawn bank and returns its id.
func (n *Network) ShockRandom() (BankID, error) {
	id, ok := n.bankSet.Random(n.rng)
	if !ok {
		return 0, fmt.Errorf("shock random: %w", ErrTooFewBanks)
	}
	return id, n.ShockID(id)
}

// ShockLargest shocks the bank with the highest merge state.
func (n *Network) ShockLargest() (BankID, error) {
	id, ok := n.Largest()
	if !ok {
		return 0, fmt.Errorf("shock largest: %w", ErrTooFewBanks)
	}
	return id, n.ShockID(id)
}

// ShockMaxInDegree shocks the bank with the most incoming loan edges, i.e.
// the most debtors. Ties go to the lowest id.
func (n *Network) ShockMaxInDegree() (BankID, error) {
	ids := n.Banks()
	if len(ids) == 0 {
		return 0, fmt.Errorf("shock max in-degree: %w", ErrTooFewBanks)
	}
	best := ids[0]
	for _, id := range ids[1:] {
		if len(n.pred[id]) > len(n.pred[best]) {
			best = id
		}
	}
	return best, n.ShockID(best)
}

// weighted is a neighbour id with the weight of the connecting edge.
type weighted[T ~int] struct {
	id     T
	weight float64
}

// successorsOf returns the creditors of id sorted by id so that iteration is
// reproducible.
func (n *Network) successorsOf(id BankID) []weighted[BankID] {
	return sortedWeights(n.succ[id])
}

// predecessorsOf returns the debtors of id sorted by id.
func (n *Network) predecessorsOf(id BankID) []weighted[BankID] {
	return sortedWeights(n.pred[id])
}

func sortedWeights[T ~int](m map[T]float64) []weighted[T] {
	out := make([]weighted[T], 0, len(m))
	for id, w := range m {
		out = append(out, weighted[T]{id: id, weight: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func copyWeights[T comparable](m map[T]float64) map[T]float64 {
	out := make(map[T]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (n *Network) trace(event map[string]any) {
	if n.tracer == nil {
		return
	}
	n.tracer.Log(event)
}
