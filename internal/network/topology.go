package network

import (
	"fmt"
	"math"
)

// AddBank inserts a bank record. The bank starts without edges.
func (n *Network) AddBank(b *Bank) error {
	if b == nil {
		return fmt.Errorf("%w: nil bank", ErrValidation)
	}
	if _, ok := n.banks[b.id]; ok {
		return fmt.Errorf("bank %d: %w", b.id, ErrAlreadyInNetwork)
	}
	n.banks[b.id] = b
	n.bankSet.Add(b.id)
	if b.id >= n.nextBankID {
		n.nextBankID = b.id + 1
	}
	return nil
}

// CreateBank allocates a fresh id, inserts a bank with the given balance
// sheet and returns its id.
func (n *Network) CreateBank(sheet BalanceSheet) BankID {
	id := n.nextBankID
	// cannot collide: nextBankID is always above every id in use
	_ = n.AddBank(NewBank(id, sheet))
	return id
}

// RemoveBank deletes a bank together with its loans and investments and
// corrects the aggregates of its counterparties.
func (n *Network) RemoveBank(id BankID) error {
	if _, ok := n.banks[id]; !ok {
		return bankNotFound(id)
	}
	for _, e := range n.successorsOf(id) {
		n.removeLink(id, e.id, true)
	}
	for _, e := range n.predecessorsOf(id) {
		n.removeLink(e.id, id, true)
	}
	for _, e := range sortedWeights(n.invest[id]) {
		n.removeInvestment(id, e.id, true)
	}
	n.deleteBank(id)
	return nil
}

// deleteBank drops an isolated bank from all tables.
func (n *Network) deleteBank(id BankID) {
	delete(n.banks, id)
	delete(n.succ, id)
	delete(n.pred, id)
	delete(n.invest, id)
	delete(n.pending, id)
	n.bankSet.Remove(id)
}

// AddOrUpdateLink sets the weight of the loan u->v (u owes v), creating the
// edge if needed. With sync the weight delta is booked in u's interbank
// liabilities and v's interbank assets.
func (n *Network) AddOrUpdateLink(u, v BankID, weight float64, sync bool) error {
	if u == v {
		return fmt.Errorf("link %d->%d: %w", u, v, ErrSelfLoop)
	}
	if err := checkWeight(weight); err != nil {
		return fmt.Errorf("link %d->%d: %w", u, v, err)
	}
	if _, ok := n.banks[u]; !ok {
		return bankNotFound(u)
	}
	if _, ok := n.banks[v]; !ok {
		return bankNotFound(v)
	}
	n.setLink(u, v, weight, sync)
	return nil
}

// RemoveLink deletes the loan u->v. With sync the balance sheets of both
// banks are corrected.
func (n *Network) RemoveLink(u, v BankID, sync bool) error {
	if _, ok := n.succ[u][v]; !ok {
		return fmt.Errorf("link %d->%d: %w", u, v, ErrNoSuchLink)
	}
	n.removeLink(u, v, sync)
	return nil
}

func (n *Network) setLink(u, v BankID, weight float64, sync bool) {
	old, exists := n.succ[u][v]
	if n.succ[u] == nil {
		n.succ[u] = make(map[BankID]float64)
	}
	if n.pred[v] == nil {
		n.pred[v] = make(map[BankID]float64)
	}
	n.succ[u][v] = weight
	n.pred[v][u] = weight
	if !exists {
		n.numLinks++
	}
	if sync {
		delta := weight - old
		n.banks[u].sheet.LiabilitiesIB += delta
		n.banks[v].sheet.AssetsIB += delta
	}
}

// addToLink increases the weight of u->v by delta, creating the edge.
func (n *Network) addToLink(u, v BankID, delta float64) {
	n.setLink(u, v, n.succ[u][v]+delta, true)
}

func (n *Network) removeLink(u, v BankID, sync bool) {
	w := n.succ[u][v]
	delete(n.succ[u], v)
	delete(n.pred[v], u)
	n.numLinks--
	if sync {
		n.banks[u].sheet.LiabilitiesIB -= w
		n.banks[v].sheet.AssetsIB -= w
	}
}

// AddAsset creates a common asset with the Network's devaluation law.
func (n *Network) AddAsset(basePrice float64) (AssetID, error) {
	if !(basePrice > 0) || math.IsInf(basePrice, 0) {
		return 0, fmt.Errorf("%w: asset base price must be positive, got %v", ErrInvalidParameter, basePrice)
	}
	if !n.law.Valid() {
		return 0, fmt.Errorf("%w: unknown devaluation law %q", ErrValidation, n.law)
	}
	id := n.nextAssetID
	n.nextAssetID++
	n.assets[id] = newAsset(id, basePrice, n.law)
	n.assetSet.Add(id)
	return id, nil
}

// RemoveAsset deletes an asset and all positions in it, writing the
// positions off the holders' common-asset aggregates. Removed ids are never
// reused.
func (n *Network) RemoveAsset(id AssetID) error {
	if _, ok := n.assets[id]; !ok {
		return assetNotFound(id)
	}
	for _, e := range sortedWeights(n.holders[id]) {
		n.removeInvestment(e.id, id, true)
	}
	delete(n.assets, id)
	delete(n.holders, id)
	n.assetSet.Remove(id)
	return nil
}

// AddOrUpdateInvestment sets bank b's position in asset a. With sync the
// delta is booked in b's common-asset holdings.
func (n *Network) AddOrUpdateInvestment(b BankID, a AssetID, weight float64, sync bool) error {
	if err := checkWeight(weight); err != nil {
		return fmt.Errorf("investment %d->%d: %w", b, a, err)
	}
	if _, ok := n.banks[b]; !ok {
		return bankNotFound(b)
	}
	if _, ok := n.assets[a]; !ok {
		return assetNotFound(a)
	}
	n.setInvestment(b, a, weight, sync)
	return nil
}

// RemoveInvestment deletes bank b's position in asset a.
func (n *Network) RemoveInvestment(b BankID, a AssetID, sync bool) error {
	if _, ok := n.invest[b][a]; !ok {
		return fmt.Errorf("investment %d->%d: %w", b, a, ErrNoSuchInvestment)
	}
	n.removeInvestment(b, a, sync)
	return nil
}

func (n *Network) setInvestment(b BankID, a AssetID, weight float64, sync bool) {
	old, exists := n.invest[b][a]
	if n.invest[b] == nil {
		n.invest[b] = make(map[AssetID]float64)
	}
	if n.holders[a] == nil {
		n.holders[a] = make(map[BankID]float64)
	}
	n.invest[b][a] = weight
	n.holders[a][b] = weight
	if !exists {
		n.numInvestments++
	}
	if sync {
		n.banks[b].sheet.AssetsCom += weight - old
	}
}

func (n *Network) removeInvestment(b BankID, a AssetID, sync bool) {
	w := n.invest[b][a]
	delete(n.invest[b], a)
	delete(n.holders[a], b)
	n.numInvestments--
	if sync {
		n.banks[b].sheet.AssetsCom -= w
	}
}

func checkWeight(w float64) error {
	if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidWeight, w)
	}
	return nil
}
