package network

import "fmt"

// MergeResult describes a completed merger.
type MergeResult struct {
	Acquiring BankID `json:"acquiring"`
	Acquired  BankID `json:"acquired"`
	// AbsorbedWeight is the weight of loans between the two banks. These
	// become internal and disappear from both balance sheets.
	AbsorbedWeight float64 `json:"absorbed_weight"`
	MergeRound     int     `json:"merge_round"`
}

// Merge contracts acquired into acquiring. External positions and shocks are
// summed into the acquirer; every loan and investment of the acquired bank is
// redirected to the acquirer, adding to any existing edge with the same
// counterparty; loans between the two banks are dropped. The acquired bank is
// then removed. Merging a defaulted bank fails with ErrMergeDefaulted.
func (n *Network) Merge(acquiring, acquired BankID) (MergeResult, error) {
	if acquiring == acquired {
		return MergeResult{}, fmt.Errorf("merge %d into %d: %w", acquired, acquiring, ErrSelfMerge)
	}
	acq, ok := n.banks[acquiring]
	if !ok {
		return MergeResult{}, fmt.Errorf("acquiring: %w", bankNotFound(acquiring))
	}
	tgt, ok := n.banks[acquired]
	if !ok {
		return MergeResult{}, fmt.Errorf("acquired: %w", bankNotFound(acquired))
	}
	if acq.defaulted || tgt.defaulted {
		return MergeResult{}, fmt.Errorf("merge %d into %d: %w", acquired, acquiring, ErrMergeDefaulted)
	}

	acq.sheet.AssetsE += tgt.sheet.AssetsE
	acq.sheet.LiabilitiesE += tgt.sheet.LiabilitiesE
	acq.sheet.Shock += tgt.sheet.Shock
	acq.sheet.ShockE += tgt.sheet.ShockE
	tgt.sheet.AssetsE = 0
	tgt.sheet.LiabilitiesE = 0
	tgt.sheet.Shock = 0
	tgt.sheet.ShockE = 0

	absorbed := 0.0
	for _, e := range n.predecessorsOf(acquired) {
		n.removeLink(e.id, acquired, true)
		if e.id == acquiring {
			absorbed += e.weight
			continue
		}
		n.addToLink(e.id, acquiring, e.weight)
	}
	for _, e := range n.successorsOf(acquired) {
		n.removeLink(acquired, e.id, true)
		if e.id == acquiring {
			absorbed += e.weight
			continue
		}
		n.addToLink(acquiring, e.id, e.weight)
	}
	for _, e := range sortedWeights(n.invest[acquired]) {
		n.removeInvestment(acquired, e.id, true)
		n.setInvestment(acquiring, e.id, n.invest[acquiring][e.id]+e.weight, true)
	}

	n.deleteBank(acquired)
	acq.mergeState += tgt.mergeState + 1
	n.initSystemAssets -= absorbed
	n.mergeRound++

	res := MergeResult{
		Acquiring:      acquiring,
		Acquired:       acquired,
		AbsorbedWeight: absorbed,
		MergeRound:     n.mergeRound,
	}
	n.trace(map[string]any{
		"event":           "merge",
		"acquiring":       int(acquiring),
		"acquired":        int(acquired),
		"absorbed_weight": absorbed,
		"merge_round":     n.mergeRound,
		"merge_state":     acq.mergeState,
	})
	return res, nil
}

// RandomMerge picks a pair of banks according to rule and merges them. It
// fails with ErrMergeDefaulted while any bank is defaulted, without drawing.
func (n *Network) RandomMerge(rule MergeRule) (MergeResult, error) {
	if n.bankSet.Len() < 2 {
		return MergeResult{}, fmt.Errorf("random merge: %w", ErrTooFewBanks)
	}
	if n.NumDefaulted() > 0 {
		return MergeResult{}, fmt.Errorf("random merge: %w", ErrMergeDefaulted)
	}
	switch rule {
	case MergeRandom:
		a, b, _ := n.bankSet.RandomPair(n.rng)
		return n.Merge(a, b)
	case MergeVertical:
		largest, _ := n.Largest()
		other, _ := n.bankSet.RandomExcept(n.rng, largest)
		return n.Merge(largest, other)
	case MergeSemihorizontal:
		pair, err := n.nextPair()
		if err != nil {
			return MergeResult{}, err
		}
		return n.Merge(pair[0], pair[1])
	default:
		return MergeResult{}, fmt.Errorf("%w: unknown merge rule %q", ErrValidation, rule)
	}
}

// nextPair pops the next pair of the semihorizontal pairing, building and
// shuffling it on first use. Pairs whose banks were removed by other means
// are skipped.
func (n *Network) nextPair() ([2]BankID, error) {
	if !n.pairingBuilt {
		n.pairing = n.bankSet.Pairs(n.rng)
		n.pairingBuilt = true
	}
	for len(n.pairing) > 0 {
		p := n.pairing[0]
		n.pairing = n.pairing[1:]
		if n.bankSet.Contains(p[0]) && n.bankSet.Contains(p[1]) {
			return p, nil
		}
	}
	return [2]BankID{}, ErrPairingExhausted
}

// ResetPairing discards the current semihorizontal pairing. The next
// semihorizontal merger builds a fresh one over the remaining banks.
func (n *Network) ResetPairing() {
	n.pairing = nil
	n.pairingBuilt = false
}

// PairsRemaining returns the number of unused pairs of the current
// semihorizontal pass, or -1 if no pass has started.
func (n *Network) PairsRemaining() int {
	if !n.pairingBuilt {
		return -1
	}
	return len(n.pairing)
}
