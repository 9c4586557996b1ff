// Package identity implements the Identity Matcher: a fixed
// Euclidean-distance threshold against the employee's enrolled template.
// No learned decision — this is deliberately the one component built on
// the standard library alone (see DESIGN.md).
package identity

import (
	"math"

	"github.com/technosupport/canteen-authz/internal/domain"
)

const DefaultThreshold = 0.52

type Matcher struct {
	Threshold float64
}

func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{Threshold: threshold}
}

// Distance computes the L2 distance between a frame embedding and a
// template embedding.
func Distance(frame, template [domain.FaceEmbeddingDim]float32) float64 {
	var sum float64
	for i := range frame {
		d := float64(frame[i]) - float64(template[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Match reports whether the frame embedding matches the template within
// the configured threshold, along with the computed distance.
func (m *Matcher) Match(frame, template [domain.FaceEmbeddingDim]float32) (bool, float64) {
	d := Distance(frame, template)
	return d <= m.Threshold, d
}
