package lmsr

import (
	"testing"

	"github.com/moodring-exchange/core-engine/internal/apperr"
)

const b = 1_000_000_000 // 1000 units

func TestYesNoPriceSumToPrecision(t *testing.T) {
	cases := [][2]int64{{0, 0}, {100000, 0}, {0, 100000}, {5_000_000, 3_000_000}}
	for _, c := range cases {
		yp, err := YesPrice(c[0], c[1], b)
		if err != nil {
			t.Fatalf("YesPrice(%v): %v", c, err)
		}
		np, err := NoPrice(c[0], c[1], b)
		if err != nil {
			t.Fatalf("NoPrice(%v): %v", c, err)
		}
		if yp+np != Precision {
			t.Errorf("yes+no price = %d, want %d", yp+np, Precision)
		}
	}
}

func TestInitialPriceIsHalf(t *testing.T) {
	yp, err := YesPrice(0, 0, b)
	if err != nil {
		t.Fatal(err)
	}
	if yp != Precision/2 {
		t.Errorf("initial yes price = %d, want %d", yp, Precision/2)
	}
}

func TestPriceMonotonicInOwnQuantity(t *testing.T) {
	p0, _ := YesPrice(0, 0, b)
	p1, _ := YesPrice(100000, 0, b)
	p2, _ := YesPrice(200000, 0, b)
	if !(p0 < p1 && p1 < p2) {
		t.Errorf("yes price not monotonic increasing in yes quantity: %d %d %d", p0, p1, p2)
	}
}

func TestPriceStaysWithinClampBand(t *testing.T) {
	yp, err := YesPrice(1_000_000_000_000, 0, b)
	if err != nil {
		t.Fatal(err)
	}
	upper := 999 * Precision / 1000
	if yp != upper {
		t.Errorf("extreme yes price = %d, want clamp upper %d", yp, upper)
	}
	yp2, err := YesPrice(0, 1_000_000_000_000, b)
	if err != nil {
		t.Fatal(err)
	}
	lower := Precision / 1000
	if yp2 != lower {
		t.Errorf("extreme yes price = %d, want clamp lower %d", yp2, lower)
	}
}

func TestBuyCostIsPositiveAndMonotonic(t *testing.T) {
	c1, err := BuyCost(0, 0, 100000, 0, b)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := BuyCost(0, 0, 200000, 0, b)
	if err != nil {
		t.Fatal(err)
	}
	if c1 <= 0 || c2 <= c1 {
		t.Errorf("buy cost not increasing: c1=%d c2=%d", c1, c2)
	}
}

func TestBuyThenSellRoundTripLosesNoMoreThanRounding(t *testing.T) {
	cost, err := BuyCost(0, 0, 500000, 0, b)
	if err != nil {
		t.Fatal(err)
	}
	payout, err := SellPayout(500000, 0, 500000, 0, b)
	if err != nil {
		t.Fatal(err)
	}
	diff := cost - payout
	if diff < 0 || diff > 2 {
		t.Errorf("round trip mismatch: cost=%d payout=%d diff=%d", cost, payout, diff)
	}
}

func TestSellExceedingSharesIsInsufficientResource(t *testing.T) {
	_, err := SellPayout(100, 0, 200, 0, b)
	if err == nil {
		t.Fatal("expected error")
	}
	if ae, ok := apperr.As(err); !ok || ae.Kind != apperr.InsufficientResource {
		t.Fatalf("error = %v, want kind %s", err, apperr.InsufficientResource)
	}
}

func TestZeroLiquidityIsRejected(t *testing.T) {
	if _, err := Cost(0, 0, 0); err == nil {
		t.Fatal("expected error for b=0")
	}
	if _, err := Cost(0, 0, -1); err == nil {
		t.Fatal("expected error for negative b")
	}
}

func TestCostSymmetricInYesNo(t *testing.T) {
	c1, err := Cost(300000, 700000, b)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := Cost(700000, 300000, b)
	if err != nil {
		t.Fatal(err)
	}
	if c1 != c2 {
		t.Errorf("cost not symmetric: %d vs %d", c1, c2)
	}
}
