package network

// SystemAssets returns the book value of all banks' assets.
func (n *Network) SystemAssets() float64 {
	total := 0.0
	for _, id := range n.Banks() {
		total += n.banks[id].sheet.AssetsTotal()
	}
	return total
}

// NumDefaulted returns the number of defaulted banks.
func (n *Network) NumDefaulted() int {
	c := 0
	for _, b := range n.banks {
		if b.defaulted {
			c++
		}
	}
	return c
}

// DefaultedBanks returns the ids of defaulted banks in ascending order.
func (n *Network) DefaultedBanks() []BankID {
	var out []BankID
	for _, id := range n.Banks() {
		if n.banks[id].defaulted {
			out = append(out, id)
		}
	}
	return out
}

// DefaultedFraction returns the fraction of banks that defaulted.
func (n *Network) DefaultedFraction() float64 {
	if n.NumBanks() == 0 {
		return 0
	}
	return float64(n.NumDefaulted()) / float64(n.NumBanks())
}

// DefaultedAssetFraction returns the book assets of defaulted banks as a
// fraction of the system's assets at cascade start.
func (n *Network) DefaultedAssetFraction() float64 {
	if n.initSystemAssets <= 0 {
		return 0
	}
	return n.defaultedSystemAssets / n.initSystemAssets
}

// MeanDegree returns the mean number of outgoing loans per bank (z).
func (n *Network) MeanDegree() float64 {
	if n.NumBanks() == 0 {
		return 0
	}
	return float64(n.numLinks) / float64(n.NumBanks())
}

// InDegreeDistribution maps an in-degree to the number of banks having it.
func (n *Network) InDegreeDistribution() map[int]int {
	dist := make(map[int]int)
	for id := range n.banks {
		dist[len(n.pred[id])]++
	}
	return dist
}

// OutDegreeDistribution maps an out-degree to the number of banks having it.
func (n *Network) OutDegreeDistribution() map[int]int {
	dist := make(map[int]int)
	for id := range n.banks {
		dist[len(n.succ[id])]++
	}
	return dist
}

// InvestmentDegreeDistribution maps a number of held assets to the number of
// banks holding that many.
func (n *Network) InvestmentDegreeDistribution() map[int]int {
	dist := make(map[int]int)
	for id := range n.banks {
		dist[len(n.invest[id])]++
	}
	return dist
}

// MergeStateDistribution maps a merge state to the number of banks in it.
func (n *Network) MergeStateDistribution() map[int]int {
	dist := make(map[int]int)
	for _, b := range n.banks {
		dist[b.mergeState]++
	}
	return dist
}

// AdjacencyMatrix returns the loan weights as a dense matrix. Row i and
// column j refer to ids[i] and ids[j]; entry (i, j) is the amount ids[i]
// owes ids[j].
func (n *Network) AdjacencyMatrix() (ids []BankID, matrix [][]float64) {
	ids = n.Banks()
	index := make(map[BankID]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	matrix = make([][]float64, len(ids))
	for i, u := range ids {
		row := make([]float64, len(ids))
		for v, w := range n.succ[u] {
			row[index[v]] = w
		}
		matrix[i] = row
	}
	return ids, matrix
}
