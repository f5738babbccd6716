// Package lmsr implements the fixed-point Logarithmic Market Scoring Rule
// cost and price kernel. All quantities (yes/no share inventories, the
// liquidity parameter b, and costs) share a single integer scale:
// micro-units, where 1 unit = PRECISION micro-units and, at resolution, one
// winning micro-share pays exactly one micro-unit.
//
// Exponentials and logarithms cannot be computed exactly in fixed point, so
// this package uses bounded Taylor approximations. The intermediate powers
// those approximations produce (x⁴ terms, in particular) overflow a 64-bit
// integer well before the final result does, so they are carried in
// github.com/holiman/uint256's 256-bit integer and only narrowed back to
// int64 once a value is known to fit (a price, or a final logarithm term).
package lmsr

import (
	"github.com/holiman/uint256"

	"github.com/moodring-exchange/core-engine/internal/apperr"
)

// Precision is the fixed-point scale factor used throughout pricing math.
const Precision int64 = 1_000_000

// ln2Scaled is ln(2) * Precision, used as the small-t anchor for
// logOnePlusExpNeg.
const ln2Scaled int64 = 693147

// maxRatioScaled is the x > 500 regime boundary (scaled by Precision) beyond
// which exp saturates and log collapses to zero, per spec.
const maxRatioScaled int64 = 500 * Precision

// satUpper is the saturation ceiling for exp: 10^15 * Precision.
var satUpper = new(uint256.Int).Mul(uint256.NewInt(1_000_000_000_000_000), uint256.NewInt(uint64(Precision)))

// maxQuantity bounds any single input quantity to guard against the kernel
// being fed a value large enough that intermediate products would exceed
// the 256-bit arithmetic this package relies on.
const maxQuantity = int64(1) << 60

func overflowGuard(name string, n int64) error {
	if n < 0 {
		return apperr.Internalf("ArithmeticOverflow: %s must be non-negative", name)
	}
	if n > maxQuantity {
		return apperr.Internalf("ArithmeticOverflow: %s exceeds kernel bound", name)
	}
	return nil
}

func u256(n int64) *uint256.Int {
	return uint256.NewInt(uint64(n))
}

// mulDiv computes floor(a*b/d) using a 256-bit intermediate product so the
// multiply never overflows even when a*b alone would not fit in 64 bits.
func mulDiv(a, b, d *uint256.Int) *uint256.Int {
	var prod uint256.Int
	prod.Mul(a, b)
	var out uint256.Int
	out.Div(&prod, d)
	return &out
}

func mulDivInt64(a, b, d int64) int64 {
	return int64(mulDiv(u256(a), u256(b), u256(d)).Uint64())
}

// expScaled returns e^x * Precision for xScaled = x * Precision, x >= 0, as
// a 256-bit integer — the result saturates to satUpper for x > 500.
func expScaled(xScaled *uint256.Int) *uint256.Int {
	maxX := u256(maxRatioScaled)
	if xScaled.Cmp(maxX) > 0 {
		return new(uint256.Int).Set(satUpper)
	}
	precision := u256(Precision)
	p1 := new(uint256.Int).Set(xScaled)
	p2 := mulDiv(p1, xScaled, precision)
	p3 := mulDiv(p2, xScaled, precision)
	p4 := mulDiv(p3, xScaled, precision)

	sum := new(uint256.Int).Set(precision) // the "1" term
	sum.Add(sum, p1)
	sum.Add(sum, new(uint256.Int).Div(p2, uint256.NewInt(2)))
	sum.Add(sum, new(uint256.Int).Div(p3, uint256.NewInt(6)))
	sum.Add(sum, new(uint256.Int).Div(p4, uint256.NewInt(24)))
	return sum
}

// expNegScaled returns e^(-x) * Precision, computed as Precision^2 / e^x to
// preserve precision when the result is small.
func expNegScaled(xScaled *uint256.Int) *uint256.Int {
	if xScaled.IsZero() {
		return u256(Precision)
	}
	ep := expScaled(xScaled)
	if ep.IsZero() {
		return new(uint256.Int)
	}
	precisionSq := new(uint256.Int).Mul(u256(Precision), u256(Precision))
	return new(uint256.Int).Div(precisionSq, ep)
}

// logOnePlusExpNeg returns ln(1+e^(-t)) * Precision for tScaled = t * Precision,
// t >= 0, using the three-regime approximation from spec.md §4.1. The result
// always fits in an int64 (it is bounded above by ln(2)*Precision).
func logOnePlusExpNeg(tScaled int64) int64 {
	if tScaled > maxRatioScaled {
		return 0
	}
	if tScaled < Precision {
		// ln(1+e^-t) ≈ ln2 - t/2 + t²/8
		t2 := tScaled * tScaled // bounded by Precision^2 = 1e12, fits int64
		term := ln2Scaled - tScaled/2 + t2/(8*Precision)
		if term < 0 {
			return 0
		}
		return term
	}
	// medium regime: y = e^-t, ln(1+y) ≈ y - y²/2 + y³/3
	y := int64(expNegScaled(u256(tScaled)).Uint64()) // y <= Precision, safe to narrow
	y2 := y * y / Precision
	y3 := y2 * y / Precision
	term := y - y2/2 + y3/3
	if term < 0 {
		return 0
	}
	return term
}

// clampPrice enforces the [Precision/1000, 999*Precision/1000] liveness
// band from spec.md §4.1.
func clampPrice(p int64) int64 {
	lower := Precision / 1000
	upper := 999 * Precision / 1000
	if p < lower {
		return lower
	}
	if p > upper {
		return upper
	}
	return p
}

// Cost computes the LMSR cost function C(yes, no) = b·ln(e^(yes/b)+e^(no/b)),
// stabilized per spec.md §4.1 by factoring out the larger side:
// C = max(yes,no) + b·ln(1+e^(-|yes-no|/b)).
func Cost(yes, no, b int64) (int64, error) {
	if b <= 0 {
		return 0, apperr.New(apperr.Internal, "DivisionByZero: liquidity parameter must be positive")
	}
	if err := overflowGuard("yes", yes); err != nil {
		return 0, err
	}
	if err := overflowGuard("no", no); err != nil {
		return 0, err
	}

	maxQ, diff := yes, yes-no
	if no > yes {
		maxQ, diff = no, no-yes
	}

	tScaled := mulDivInt64(diff, Precision, b)
	logTerm := logOnePlusExpNeg(tScaled)
	bLog := mulDivInt64(b, logTerm, Precision)

	return maxQ + bLog, nil
}

// YesPrice returns PRECISION·1/(1+e^((no-yes)/b)), clamped per spec.md §4.1.
func YesPrice(yes, no, b int64) (int64, error) {
	if b <= 0 {
		return 0, apperr.New(apperr.Internal, "DivisionByZero: liquidity parameter must be positive")
	}
	if err := overflowGuard("yes", yes); err != nil {
		return 0, err
	}
	if err := overflowGuard("no", no); err != nil {
		return 0, err
	}

	diff := no - yes
	neg := diff < 0
	absDiff := diff
	if neg {
		absDiff = -diff
	}
	tScaled := mulDivInt64(absDiff, Precision, b)

	var expVal *uint256.Int
	if neg {
		// no < yes: e^((no-yes)/b) = e^(-t)
		expVal = expNegScaled(u256(tScaled))
	} else {
		expVal = expScaled(u256(tScaled))
	}

	denom := new(uint256.Int).Add(u256(Precision), expVal)
	if denom.IsZero() {
		return 0, apperr.New(apperr.Internal, "DivisionByZero: price denominator collapsed to zero")
	}
	priceU := mulDiv(u256(Precision), u256(Precision), denom)
	return clampPrice(int64(priceU.Uint64())), nil
}

// NoPrice returns PRECISION - YesPrice, by construction satisfying I4.
func NoPrice(yes, no, b int64) (int64, error) {
	yp, err := YesPrice(yes, no, b)
	if err != nil {
		return 0, err
	}
	return Precision - yp, nil
}

// BuyCost returns C(yes+dYes, no+dNo) - C(yes, no).
func BuyCost(yes, no, dYes, dNo, b int64) (int64, error) {
	if dYes < 0 || dNo < 0 {
		return 0, apperr.Validationf("buy quantities must be non-negative")
	}
	c0, err := Cost(yes, no, b)
	if err != nil {
		return 0, err
	}
	c1, err := Cost(yes+dYes, no+dNo, b)
	if err != nil {
		return 0, err
	}
	diff := c1 - c0
	if diff < 0 {
		return 0, apperr.New(apperr.Internal, "ArithmeticUnderflow: buy cost went negative")
	}
	return diff, nil
}

// SellPayout returns C(yes, no) - C(yes-dYes, no-dNo).
func SellPayout(yes, no, dYes, dNo, b int64) (int64, error) {
	if dYes < 0 || dNo < 0 {
		return 0, apperr.Validationf("sell quantities must be non-negative")
	}
	if dYes > yes || dNo > no {
		return 0, apperr.Insufficient("shares", min64(yes, no), max64(dYes, dNo))
	}
	c0, err := Cost(yes, no, b)
	if err != nil {
		return 0, err
	}
	c1, err := Cost(yes-dYes, no-dNo, b)
	if err != nil {
		return 0, err
	}
	diff := c0 - c1
	if diff < 0 {
		return 0, apperr.New(apperr.Internal, "ArithmeticUnderflow: sell payout went negative")
	}
	return diff, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
