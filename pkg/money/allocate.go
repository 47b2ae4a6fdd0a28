package money

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Allocate splits total across weights using the largest-remainder method.
// Parts are proportional to the weights and always sum exactly to total.
// Leftover units go to the largest remainders, earlier index first on ties.
func Allocate(total int64, weights []int64) ([]int64, error) {
	if total < 0 {
		return nil, fmt.Errorf("%w: negative total %d", ErrInvalidAmount, total)
	}
	var weightSum int64
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight at %d", ErrInvalidAmount, i)
		}
		weightSum += w
	}
	if weightSum == 0 {
		return nil, ErrNoWeights
	}

	divisor := decimal.NewFromInt(weightSum)
	totalDec := decimal.NewFromInt(total)

	parts := make([]int64, len(weights))
	remainders := make([]int64, len(weights))
	var assigned int64
	for i, w := range weights {
		q, r := totalDec.Mul(decimal.NewFromInt(w)).QuoRem(divisor, 0)
		parts[i] = q.IntPart()
		remainders[i] = r.IntPart()
		assigned += parts[i]
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})

	for leftover, k := total-assigned, 0; leftover > 0; leftover, k = leftover-1, k+1 {
		parts[order[k%len(order)]]++
	}
	return parts, nil
}

// AllocateMoney is Allocate for a Money total.
func AllocateMoney(total Money, weights []int64) ([]Money, error) {
	parts, err := Allocate(total.Amount, weights)
	if err != nil {
		return nil, err
	}
	out := make([]Money, len(parts))
	for i, p := range parts {
		out[i] = Money{Amount: p, Currency: total.Currency}
	}
	return out, nil
}
