package network

import (
	"fmt"
	"sort"
)

// CascadeResult summarizes a completed cascade.
type CascadeResult struct {
	Mode                   CascadeMode `json:"mode"`
	InitialBank            BankID      `json:"initial_bank"`
	Rounds                 int         `json:"rounds"` // simultaneous rounds that defaulted a bank; 0 in sequential mode
	Defaulted              int         `json:"defaulted"`
	DefaultedFraction      float64     `json:"defaulted_fraction"`
	DefaultedAssetFraction float64     `json:"defaulted_asset_fraction"`
}

// ProfilePoint is one sample of the per-round cascade profile.
type ProfilePoint struct {
	Round             int     `json:"round"`
	SystemAssets      float64 `json:"system_assets"` // book assets of surviving banks
	DefaultedFraction float64 `json:"defaulted_fraction"`
}

// Cascade propagates insolvency from an initially shocked bank until no bank
// changes state. The shock itself is applied beforehand with one of the
// Shock* methods.
//
// recoveryRate is the fraction of a defaulted loan the creditor recovers and
// must lie in [0, 1]. deprecationFactor in [0, 1) enables fire sales of
// common assets after every round; it is only supported in simultaneous
// mode. With recordProfile the surviving system assets and defaulted
// fraction are sampled before the first and after every round.
func (n *Network) Cascade(initial BankID, mode CascadeMode, recoveryRate, deprecationFactor float64, recordProfile bool) (CascadeResult, error) {
	if !mode.Valid() {
		return CascadeResult{}, fmt.Errorf("%w: unknown cascade mode %q", ErrValidation, mode)
	}
	if !(recoveryRate >= 0 && recoveryRate <= 1) {
		return CascadeResult{}, fmt.Errorf("%w: recovery rate must be in [0, 1], got %v", ErrInvalidParameter, recoveryRate)
	}
	if !(deprecationFactor >= 0 && deprecationFactor < 1) {
		return CascadeResult{}, fmt.Errorf("%w: deprecation factor must be in [0, 1), got %v", ErrInvalidParameter, deprecationFactor)
	}
	if mode == Sequential && deprecationFactor > 0 {
		return CascadeResult{}, ErrSequentialFireSale
	}
	if _, ok := n.banks[initial]; !ok {
		return CascadeResult{}, fmt.Errorf("initial bank: %w", bankNotFound(initial))
	}

	n.initSystemAssets = n.SystemAssets()
	n.defaultedSystemAssets = 0
	for _, b := range n.banks {
		if b.defaulted {
			n.defaultedSystemAssets += b.sheet.AssetsTotal()
		}
	}
	n.cascadeSteps = 0
	n.profile = nil
	clear(n.pending)

	switch mode {
	case Simultaneous:
		n.simultaneousCascade(recoveryRate, deprecationFactor, recordProfile)
	case Sequential:
		n.sequentialCascade(initial, recoveryRate)
	}

	res := CascadeResult{
		Mode:                   mode,
		InitialBank:            initial,
		Rounds:                 n.cascadeSteps,
		Defaulted:              n.NumDefaulted(),
		DefaultedFraction:      n.DefaultedFraction(),
		DefaultedAssetFraction: n.DefaultedAssetFraction(),
	}
	n.trace(map[string]any{
		"event":                    "cascade",
		"mode":                     string(mode),
		"initial_bank":             int(initial),
		"rounds":                   res.Rounds,
		"defaulted":                res.Defaulted,
		"defaulted_fraction":       res.DefaultedFraction,
		"defaulted_asset_fraction": res.DefaultedAssetFraction,
	})
	return res, nil
}

// simultaneousCascade runs rounds until one defaults no bank.
func (n *Network) simultaneousCascade(recoveryRate, deprecationFactor float64, recordProfile bool) {
	order := n.bankSet.Items()
	if recordProfile {
		n.recordProfile()
	}
	for {
		newly := n.simultaneousRound(order, recoveryRate, deprecationFactor)
		if newly == 0 {
			return
		}
		n.cascadeSteps++
		if recordProfile {
			n.recordProfile()
		}
		n.trace(map[string]any{
			"event":              "cascade_round",
			"round":              n.cascadeSteps,
			"newly_defaulted":    newly,
			"defaulted_fraction": n.DefaultedFraction(),
		})
	}
}

// simultaneousRound scans the banks in the given order, then commits the
// round. It returns the number of banks that defaulted.
func (n *Network) simultaneousRound(order []BankID, recoveryRate, deprecationFactor float64) int {
	newly := 0
	for _, id := range order {
		if n.updateState(n.banks[id], Simultaneous, recoveryRate) {
			newly++
		}
	}
	if newly == 0 {
		return 0
	}
	n.commitRound(deprecationFactor, newly)
	return newly
}

// commitRound resolves transmitted losses, applies the fire sale and promotes
// every overlay to committed state.
func (n *Network) commitRound(deprecationFactor float64, newly int) {
	for _, id := range n.pendingIDs() {
		n.resolveLosses(n.pending[id])
	}
	if deprecationFactor > 0 {
		n.fireSale(deprecationFactor, newly)
	}
	for _, id := range n.pendingIDs() {
		p := n.pending[id]
		b := n.banks[id]
		b.sheet = p.sheet
		if p.defaulted {
			b.defaulted = true
			n.defaultedSystemAssets += b.sheet.AssetsTotal()
		}
	}
	clear(n.pending)
}

// fireSale devalues common assets after a round in which newly banks
// defaulted. Networks with asset entities devalue each asset by
// deprecationFactor of its law's impact for the share of it held by the
// defaulting banks; otherwise every bank's common holdings are devalued by
// (1-deprecationFactor)^newly.
func (n *Network) fireSale(deprecationFactor float64, newly int) {
	if n.assetSet.Len() == 0 {
		for _, id := range n.Banks() {
			b := n.banks[id]
			if b.sheet.AssetsCom <= 0 {
				continue
			}
			n.assetComShock(b, deprecationFactor, newly, true)
		}
		return
	}
	for _, aid := range n.Assets() {
		positions := sortedWeights(n.holders[aid])
		var total, liquidated float64
		for _, e := range positions {
			total += e.weight
			if p, ok := n.pending[e.id]; ok && p.defaulted {
				liquidated += e.weight
			}
		}
		if liquidated == 0 || total == 0 {
			continue
		}
		a := n.assets[aid]
		before := a.phi
		after := a.devaluateScaled(liquidated/total, deprecationFactor)
		loss := before - after
		if loss <= 0 {
			continue
		}
		for _, e := range positions {
			b := n.banks[e.id]
			if !n.shockingRequired(b) {
				continue
			}
			n.pendingFor(b).sheet.ShockE += e.weight * loss
		}
	}
}

// sequentialCascade processes insolvent banks depth-first from the initial
// bank, applying losses immediately.
func (n *Network) sequentialCascade(initial BankID, recoveryRate float64) {
	stack := []BankID{initial}
	onStack := map[BankID]bool{initial: true}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		delete(onStack, id)
		if !n.updateState(n.banks[id], Sequential, recoveryRate) {
			continue
		}
		for _, e := range n.successorsOf(id) {
			s := n.banks[e.id]
			if s.defaulted || onStack[e.id] || s.sheet.Solvent() {
				continue
			}
			stack = append(stack, e.id)
			onStack[e.id] = true
		}
	}
}

// ResetCascade undoes every effect of previous cascades: defaults, shocks,
// r-values and asset devaluation. Topology, merge state and the merge round
// are kept, so mergers and cascades can alternate on one Network.
func (n *Network) ResetCascade() {
	for _, b := range n.banks {
		b.defaulted = false
		b.sheet.Shock = 0
		b.sheet.ShockE = 0
		b.rVal = 0
	}
	for _, a := range n.assets {
		a.phi = 1
	}
	clear(n.pending)
	n.cascadeSteps = 0
	n.profile = nil
	n.defaultedSystemAssets = 0
	n.initSystemAssets = n.SystemAssets()
}

func (n *Network) recordProfile() {
	n.profile = append(n.profile, ProfilePoint{
		Round:             n.cascadeSteps,
		SystemAssets:      n.initSystemAssets - n.defaultedSystemAssets,
		DefaultedFraction: n.DefaultedFraction(),
	})
}

func (n *Network) pendingIDs() []BankID {
	ids := make([]BankID, 0, len(n.pending))
	for id := range n.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SimultaneousCascadeSteps returns the number of rounds of the last
// simultaneous cascade that defaulted at least one bank.
func (n *Network) SimultaneousCascadeSteps() int { return n.cascadeSteps }

// Profile returns the per-round profile of the last cascade run with
// recording enabled.
func (n *Network) Profile() []ProfilePoint {
	out := make([]ProfilePoint, len(n.profile))
	copy(out, n.profile)
	return out
}

// InitSystemAssets returns the system's book assets at the start of the last
// cascade, adjusted for mergers since.
func (n *Network) InitSystemAssets() float64 { return n.initSystemAssets }

// DefaultedSystemAssets returns the book assets of banks that defaulted.
func (n *Network) DefaultedSystemAssets() float64 { return n.defaultedSystemAssets }
