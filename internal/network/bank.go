package network

import (
	"math"
	"sort"
)

// BankID identifies a bank within one Network.
type BankID int

// BalanceSheet holds a bank's aggregate positions. All values are
// non-negative; shocks accumulate losses against the asset side.
type BalanceSheet struct {
	AssetsIB      float64 `json:"assets_ib"`      // claims on other banks
	AssetsE       float64 `json:"assets_e"`       // idiosyncratic external assets
	AssetsCom     float64 `json:"assets_com"`     // holdings of common assets
	LiabilitiesIB float64 `json:"liabilities_ib"` // obligations to other banks
	LiabilitiesE  float64 `json:"liabilities_e"`  // deposits and other external funding
	Shock         float64 `json:"shock"`          // losses on interbank and idiosyncratic assets
	ShockE        float64 `json:"shock_e"`        // losses on common assets
}

// AssetsTotal returns the book value of all assets.
func (bs BalanceSheet) AssetsTotal() float64 {
	return bs.AssetsIB + bs.AssetsE + bs.AssetsCom
}

// LiabilitiesTotal returns the sum of interbank and external liabilities.
func (bs BalanceSheet) LiabilitiesTotal() float64 {
	return bs.LiabilitiesIB + bs.LiabilitiesE
}

// ShockTotal returns the accumulated losses.
func (bs BalanceSheet) ShockTotal() float64 {
	return bs.Shock + bs.ShockE
}

// Capital returns net worth: shocked assets minus liabilities.
func (bs BalanceSheet) Capital() float64 {
	return (bs.AssetsTotal() - bs.ShockTotal()) - bs.LiabilitiesTotal()
}

// Solvent reports whether capital is strictly positive.
func (bs BalanceSheet) Solvent() bool {
	return bs.Capital() > 0
}

// Bank is a node of the interbank network. Banks are records owned by a
// Network; adjacency lives in the Network's tables, never on the bank.
type Bank struct {
	id         BankID
	sheet      BalanceSheet
	defaulted  bool
	rVal       int
	mergeState int
}

// NewBank creates a bank record. Interbank and common-asset aggregates are
// normally left at zero and filled in by the Network as links and
// investments are added.
func NewBank(id BankID, sheet BalanceSheet) *Bank {
	return &Bank{id: id, sheet: sheet}
}

// ID returns the bank's identifier.
func (b *Bank) ID() BankID { return b.id }

// Sheet returns a copy of the committed balance sheet.
func (b *Bank) Sheet() BalanceSheet { return b.sheet }

// Defaulted reports whether the bank has defaulted. Once true it stays true
// until the Network resets the cascade.
func (b *Bank) Defaulted() bool { return b.defaulted }

// RVal returns the number of banks this bank's default pushed into insolvency.
func (b *Bank) RVal() int { return b.rVal }

// MergeState returns the number of banks transitively absorbed by this bank.
func (b *Bank) MergeState() int { return b.mergeState }

// AssetsTotal returns the book value of the committed assets.
func (b *Bank) AssetsTotal() float64 { return b.sheet.AssetsTotal() }

// LiabilitiesTotal returns the committed liabilities.
func (b *Bank) LiabilitiesTotal() float64 { return b.sheet.LiabilitiesTotal() }

// ShockTotal returns the committed accumulated losses.
func (b *Bank) ShockTotal() float64 { return b.sheet.ShockTotal() }

// AggregateShock writes the bank's idiosyncratic external assets off
// completely. This is the initial shock that starts a cascade.
func (b *Bank) AggregateShock() {
	b.sheet.Shock = b.sheet.AssetsE
}

// pendingState is the per-bank overlay of a simultaneous round. It is created
// on first touch, owned by the Network and discarded when the round commits.
type pendingState struct {
	sheet     BalanceSheet
	defaulted bool
	losses    []incomingLoss
}

// incomingLoss is a loss transmitted by a defaulting debtor during a round.
type incomingLoss struct {
	from   BankID
	amount float64
}

// pendingFor returns the bank's overlay, materializing it from the committed
// balance sheet on first use.
func (n *Network) pendingFor(b *Bank) *pendingState {
	p, ok := n.pending[b.id]
	if !ok {
		p = &pendingState{sheet: b.sheet}
		n.pending[b.id] = p
	}
	return p
}

// view returns the committed or pending balance sheet of b.
func (n *Network) view(b *Bank, usePending bool) (*BalanceSheet, error) {
	if !usePending {
		return &b.sheet, nil
	}
	p, ok := n.pending[b.id]
	if !ok {
		return nil, ErrNoPendingState
	}
	return &p.sheet, nil
}

// Capital returns the bank's net worth from the committed view, or from the
// pending view of an in-progress round when usePending is set.
func (n *Network) Capital(id BankID, usePending bool) (float64, error) {
	b, ok := n.banks[id]
	if !ok {
		return 0, bankNotFound(id)
	}
	bs, err := n.view(b, usePending)
	if err != nil {
		return 0, err
	}
	return bs.Capital(), nil
}

// IsSolvent reports whether capital is positive in the requested view.
func (n *Network) IsSolvent(id BankID, usePending bool) (bool, error) {
	c, err := n.Capital(id, usePending)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// ShockingRequired reports whether the bank may still receive losses: it has
// not defaulted and is solvent in the committed view and, if present, the
// pending view.
func (n *Network) ShockingRequired(id BankID) (bool, error) {
	b, ok := n.banks[id]
	if !ok {
		return false, bankNotFound(id)
	}
	return n.shockingRequired(b), nil
}

func (n *Network) shockingRequired(b *Bank) bool {
	if b.defaulted || !b.sheet.Solvent() {
		return false
	}
	if p, ok := n.pending[b.id]; ok && !p.sheet.Solvent() {
		return false
	}
	return true
}

// updateState is the per-bank transition of the cascade. It is a no-op for
// defaulted or solvent banks. Otherwise the bank defaults and passes the
// unrecovered part of each loan it owes to its creditors. It reports whether
// a transition happened.
func (n *Network) updateState(b *Bank, mode CascadeMode, recoveryRate float64) bool {
	if b.defaulted || b.sheet.Solvent() {
		return false
	}
	switch mode {
	case Simultaneous:
		n.simultaneousUpdate(b, recoveryRate)
	case Sequential:
		n.sequentialUpdate(b, recoveryRate)
	default:
		return false
	}
	return true
}

// simultaneousUpdate records the default and the transmitted losses in
// overlays only. Creditors are selected on committed state, which does not
// change during the round, so the scan order cannot influence the outcome.
func (n *Network) simultaneousUpdate(b *Bank, recoveryRate float64) {
	n.pendingFor(b).defaulted = true
	for _, e := range n.successorsOf(b.id) {
		s := n.banks[e.id]
		if s.defaulted || !s.sheet.Solvent() {
			continue
		}
		p := n.pendingFor(s)
		p.losses = append(p.losses, incomingLoss{from: b.id, amount: e.weight * (1 - recoveryRate)})
	}
}

// sequentialUpdate defaults the bank at once and shocks creditors directly.
func (n *Network) sequentialUpdate(b *Bank, recoveryRate float64) {
	b.defaulted = true
	n.defaultedSystemAssets += b.sheet.AssetsTotal()
	for _, e := range n.successorsOf(b.id) {
		s := n.banks[e.id]
		if !n.shockingRequired(s) {
			continue
		}
		s.sheet.Shock += e.weight * (1 - recoveryRate)
		if !s.sheet.Solvent() {
			b.rVal++
		}
	}
}

// resolveLosses folds the round's incoming losses into the pending balance
// sheet in ascending debtor order and credits the debtor whose loss makes the
// bank insolvent.
func (n *Network) resolveLosses(p *pendingState) {
	if len(p.losses) == 0 {
		return
	}
	sort.Slice(p.losses, func(i, j int) bool { return p.losses[i].from < p.losses[j].from })
	for _, l := range p.losses {
		wasSolvent := p.sheet.Solvent()
		p.sheet.Shock += l.amount
		if wasSolvent && !p.sheet.Solvent() {
			n.banks[l.from].rVal++
		}
	}
	p.losses = nil
}

// assetComShock devalues the bank's unshocked common-asset holdings by the
// compounded factor (1-deprecationFactor)^multiplicity and books the loss in
// shock_e. It is a no-op unless the bank may still receive losses.
func (n *Network) assetComShock(b *Bank, deprecationFactor float64, multiplicity int, usePending bool) {
	if !n.shockingRequired(b) {
		return
	}
	bs := &b.sheet
	if usePending {
		bs = &n.pendingFor(b).sheet
	}
	held := bs.AssetsCom - bs.ShockE
	if held <= 0 {
		return
	}
	bs.ShockE += held * (1 - math.Pow(1-deprecationFactor, float64(multiplicity)))
}
