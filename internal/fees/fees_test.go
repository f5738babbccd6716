package fees

import "testing"

func TestCalculateNetPlusFeesEqualsGross(t *testing.T) {
	r := Rates{ProtocolPPM: 20_000, CreatorPPM: 10_000, LPPPM: 5_000} // 2%, 1%, 0.5%
	for _, gross := range []int64{0, 1, 999, 1_000_000, 123_456_789} {
		s := Calculate(gross, r)
		if s.Net+s.TotalFee != gross {
			t.Errorf("gross=%d: net(%d)+total(%d) != gross", gross, s.Net, s.TotalFee)
		}
		if s.ProtocolFee < 0 || s.CreatorFee < 0 || s.LPFee < 0 || s.Net < 0 {
			t.Errorf("gross=%d: negative component in %+v", gross, s)
		}
	}
}

func TestCalculateZeroRatesYieldsAllNet(t *testing.T) {
	s := Calculate(1_000_000, Rates{})
	if s.Net != 1_000_000 || s.TotalFee != 0 {
		t.Errorf("unexpected split with zero rates: %+v", s)
	}
}
