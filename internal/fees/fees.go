// Package fees splits a gross trade amount into protocol, creator, and LP
// shares using parts-per-million rates, grounded on the same integer
// division conventions as internal/lmsr.
package fees

// PPM is the parts-per-million denominator fee rates are expressed in.
const PPM int64 = 1_000_000

// Rates holds the three configurable fee rates, in ppm of the gross amount.
type Rates struct {
	ProtocolPPM int64
	CreatorPPM  int64
	LPPPM       int64
}

// Split is the result of applying Rates to a gross amount.
type Split struct {
	Gross       int64
	ProtocolFee int64
	CreatorFee  int64
	LPFee       int64
	TotalFee    int64
	Net         int64
}

// Calculate floors each individual fee component, then assigns any
// leftover between the sum of those floors and the floor of the combined
// rate to the protocol share, so fees never silently evaporate.
func Calculate(gross int64, r Rates) Split {
	protocol := gross * r.ProtocolPPM / PPM
	creator := gross * r.CreatorPPM / PPM
	lp := gross * r.LPPPM / PPM

	combinedRate := r.ProtocolPPM + r.CreatorPPM + r.LPPPM
	exact := gross * combinedRate / PPM
	residual := exact - (protocol + creator + lp)
	if residual > 0 {
		protocol += residual
	}

	total := protocol + creator + lp
	return Split{
		Gross:       gross,
		ProtocolFee: protocol,
		CreatorFee:  creator,
		LPFee:       lp,
		TotalFee:    total,
		Net:         gross - total,
	}
}
