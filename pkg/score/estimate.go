package score

import (
	"math"

	"github.com/mchmarny/yzlm/pkg/rating"
	"gonum.org/v1/gonum/floats"
)

// ObjectReputation writes into dst the reliability-weighted average rating
// of every object. Objects whose weight sum is exactly zero (no ratings, or
// only zero-reputation raters) keep their previous dst value.
// dst must not alias userRep.
func ObjectReputation(dst, userRep []float64, ratings []rating.Rating) {
	objectReputation(dst, make([]float64, len(dst)), make([]float64, len(dst)), userRep, ratings)
}

func objectReputation(dst, num, wsum, userRep []float64, ratings []rating.Rating) {
	clear(num)
	clear(wsum)

	for _, r := range ratings {
		rep := userRep[r.User]
		num[r.Object] += rep * r.Weight
		wsum[r.Object] += rep
	}

	for o, w := range wsum {
		if w != 0 {
			dst[o] = num[o] / w
		}
	}
}

// Divergence writes into dst the per-user sum of squared residuals between
// the user's ratings and the current object reputation. The sum is not
// normalized by the user's link count.
func Divergence(dst, objectRep []float64, ratings []rating.Rating) {
	clear(dst)

	for _, r := range ratings {
		aux := r.Weight - objectRep[r.Object]
		dst[r.User] += aux * aux
	}
}

// UserReputation writes into dst (div/links + minDivergence)^-exponent for
// every user with at least one link, and 0 for users with none.
func UserReputation(dst, divergence []float64, links []int, exponent, minDivergence float64) {
	for u := range dst {
		if links[u] > 0 {
			base := divergence[u]/float64(links[u]) + minDivergence
			dst[u] = math.Pow(base, -exponent)
		} else {
			dst[u] = 0
		}
	}
}

// squaredDistance returns sum((a-b)^2) using delta as scratch space.
func squaredDistance(delta, a, b []float64) float64 {
	floats.SubTo(delta, a, b)
	return floats.Dot(delta, delta)
}
