// SPDX-License-Identifier: GPL-3.0-or-later

package reqsched

import "math"

// distributionBuckets is the number of size buckets in each empirical body
// size table: 800, stepping from 500 bytes in increments of 1000.
const distributionBuckets = 800

// Distribution is a categorical distribution over byte-count buckets, used
// to sample request and response body sizes.
type Distribution struct {
	// Values holds the byte count for each bucket, Values[i] = 500 + 1000*i.
	Values []int64

	// Probabilities holds the sampling weight for each bucket, summing to
	// ~1.0.
	Probabilities []float64

	// cumulative is the running sum of Probabilities, used for O(log n)
	// inverse-CDF sampling.
	cumulative []float64
}

// newDistribution builds an 800-bucket [Distribution] whose shape follows
// empirical web-traffic body-size tables: a dominant first bucket (most
// payloads are small) followed by weights that decay exponentially out to
// the largest bucket. The exact empirical
// frequencies of any particular trace are not
// reproduced literally here; this generates a distribution with the same
// qualitative shape (heavy head, long tail, probabilities summing to 1)
// from a closed-form mixture, parameterized by headWeight and tailScale.
func newDistribution(headWeight, tailScale float64) *Distribution {
	values := make([]int64, distributionBuckets)
	weights := make([]float64, distributionBuckets)

	var sum float64
	for i := range distributionBuckets {
		values[i] = 500 + 1000*int64(i)
		w := math.Exp(-float64(i) / tailScale)
		if i == 0 {
			w += headWeight
		}
		weights[i] = w
		sum += w
	}

	probabilities := make([]float64, distributionBuckets)
	cumulative := make([]float64, distributionBuckets)
	var running float64
	for i, w := range weights {
		probabilities[i] = w / sum
		running += probabilities[i]
		cumulative[i] = running
	}

	return &Distribution{
		Values:        values,
		Probabilities: probabilities,
		cumulative:    cumulative,
	}
}

// Sample draws a bucket index using draw, a uniform random value in [0,1),
// and returns the corresponding byte count.
func (d *Distribution) Sample(draw float64) int64 {
	// cumulative is sorted ascending; find the first entry >= draw.
	lo, hi := 0, len(d.cumulative)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if d.cumulative[mid] < draw {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return d.Values[lo]
}

// PostBodyDistribution is the empirical body-size distribution for POST
// request bodies sent by the client to /distribution.
func PostBodyDistribution() *Distribution {
	return newDistribution(2.3, 150)
}

// ResponseBodyDistribution is the empirical body-size distribution for GET
// response bodies served by the server at /distribution.
func ResponseBodyDistribution() *Distribution {
	return newDistribution(2.3, 150)
}
