package usage

import "sort"

// madScale converts a MAD into a normal-consistent standard deviation.
const madScale = 1.4826

// modifiedZScale is 0.6745, the inverse of madScale.
const modifiedZScale = 0.6745

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)

	n := len(cp)
	if n%2 == 0 {
		return (cp[n/2-1] + cp[n/2]) / 2
	}
	return cp[n/2]
}

// medianAbsoluteDeviation returns the median and the MAD of vals.
func medianAbsoluteDeviation(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	m := median(vals)

	deviations := make([]float64, len(vals))
	for i, v := range vals {
		d := v - m
		if d < 0 {
			d = -d
		}
		deviations[i] = d
	}
	return m, median(deviations)
}

// velocityZ scores x against a baseline with a modified Z-score. When the
// baseline has no spread, the excess over max(median, floor) is used so a
// flat history does not turn every small increase into an outlier.
// Negative deviations score 0.
func velocityZ(x float64, baseline []float64, floor float64) float64 {
	m, mad := medianAbsoluteDeviation(baseline)

	var z float64
	if mad > 0 {
		z = modifiedZScale * (x - m) / mad
	} else {
		denom := m
		if denom < floor {
			denom = floor
		}
		if denom > 0 {
			z = (x - m) / denom
		}
	}
	if z < 0 {
		return 0
	}
	return z
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
