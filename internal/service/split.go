package service

import (
	"sort"

	"marketplace-wallet/internal/core/domain"

	"github.com/shopspring/decimal"
)

// sellerShare is one seller's part of an order after discount proration.
type sellerShare struct {
	SellerRef   string
	AccountID   string
	Subtotal    int64
	Amount      int64
	Lines       []domain.OrderLine
	LineAmounts map[string]int64 // product ID -> paid amount
}

// prorate distributes target over weights proportionally. Each share is
// floored and the leftover minor units go to the largest remainders, ties
// to the earlier weight, so the shares always sum to target.
func prorate(weights []int64, target int64) []int64 {
	out := make([]int64, len(weights))
	var sum int64
	for _, w := range weights {
		sum += w
	}
	if sum == 0 || target == 0 {
		return out
	}

	type rem struct {
		idx  int
		frac decimal.Decimal
	}
	total := decimal.NewFromInt(target)
	whole := decimal.NewFromInt(sum)
	rems := make([]rem, len(weights))
	var assigned int64
	for i, w := range weights {
		exact := decimal.NewFromInt(w).Mul(total).Div(whole)
		floor := exact.Floor()
		out[i] = floor.IntPart()
		assigned += out[i]
		rems[i] = rem{idx: i, frac: exact.Sub(floor)}
	}

	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac.GreaterThan(rems[b].frac) })
	for i := 0; assigned < target; i = (i + 1) % len(rems) {
		out[rems[i].idx]++
		assigned++
	}
	return out
}

// splitOrder groups lines by seller in first-appearance order and prorates
// finalTotal across sellers by pre-discount subtotal, using one order-level
// ratio for every line. Each seller's share is then spread over its lines
// the same way, so line amounts sum to the seller share.
func splitOrder(lines []domain.OrderLine, finalTotal int64) []sellerShare {
	var shares []sellerShare
	index := make(map[string]int)
	for _, l := range lines {
		i, ok := index[l.SellerRef]
		if !ok {
			i = len(shares)
			index[l.SellerRef] = i
			shares = append(shares, sellerShare{SellerRef: l.SellerRef, AccountID: l.SellerAccountID})
		}
		shares[i].Subtotal += l.Subtotal()
		shares[i].Lines = append(shares[i].Lines, l)
		if shares[i].AccountID == "" {
			shares[i].AccountID = l.SellerAccountID
		}
	}

	weights := make([]int64, len(shares))
	for i := range shares {
		weights[i] = shares[i].Subtotal
	}
	for i, amount := range prorate(weights, finalTotal) {
		shares[i].Amount = amount

		lineWeights := make([]int64, len(shares[i].Lines))
		for j, l := range shares[i].Lines {
			lineWeights[j] = l.Subtotal()
		}
		shares[i].LineAmounts = make(map[string]int64, len(lineWeights))
		for j, paid := range prorate(lineWeights, amount) {
			shares[i].LineAmounts[shares[i].Lines[j].ProductID] += paid
		}
	}
	return shares
}

// paidAmounts returns the prorated amount paid for every product of an order.
func paidAmounts(lines []domain.OrderLine, finalTotal int64) map[string]int64 {
	out := make(map[string]int64, len(lines))
	for _, s := range splitOrder(lines, finalTotal) {
		for id, amount := range s.LineAmounts {
			out[id] += amount
		}
	}
	return out
}
