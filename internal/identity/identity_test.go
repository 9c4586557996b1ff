package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/technosupport/canteen-authz/internal/domain"
	"github.com/technosupport/canteen-authz/internal/identity"
)

func TestDistance(t *testing.T) {
	var a, b [domain.FaceEmbeddingDim]float32
	assert.Equal(t, 0.0, identity.Distance(a, b))

	// Differ in two components by 3 and 4: distance is exactly 5.
	b[0] = 3
	b[1] = 4
	assert.InDelta(t, 5.0, identity.Distance(a, b), 1e-9)
}

func TestMatch_ThresholdBoundary(t *testing.T) {
	m := identity.NewMatcher(0.52)

	var tmpl, near, far [domain.FaceEmbeddingDim]float32
	near[0] = 0.3
	far[0] = 0.6

	ok, dist := m.Match(near, tmpl)
	assert.True(t, ok)
	assert.InDelta(t, 0.3, dist, 1e-6)

	ok, dist = m.Match(far, tmpl)
	assert.False(t, ok)
	assert.InDelta(t, 0.6, dist, 1e-6)
}

func TestNewMatcher_DefaultsOnNonPositiveThreshold(t *testing.T) {
	assert.Equal(t, identity.DefaultThreshold, identity.NewMatcher(0).Threshold)
	assert.Equal(t, identity.DefaultThreshold, identity.NewMatcher(-1).Threshold)
}
