package prim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/grailbio/lincode/distance"
	"github.com/grailbio/lincode/prim"
	"github.com/grailbio/lincode/profile"
)

func TestOrderSingleton(t *testing.T) {
	m := distance.NewDense(1)
	defer m.Close()
	assert.Equal(t, []int{0}, prim.Order(m))
}

func TestOrderPicksGlobalMinimumFirst(t *testing.T) {
	batch := []profile.Profile{
		{1, 1, 1, 1}, // 0
		{2, 2, 2, 2}, // 1, distance 100 from 0
		{1, 1, 1, 2}, // 2, distance 25 from 0
	}
	m := distance.NewDense(len(batch))
	defer m.Close()
	distance.Build(batch, m)
	order := prim.Order(m)

	assert.Equal(t, 3, len(order))
	// The globally closest pair is (0,2) at distance 25; they must be the
	// first two emitted, in ascending flat-index order.
	assert.Equal(t, 0, order[0])
	assert.Equal(t, 2, order[1])
	assert.Equal(t, 1, order[2])
}

func TestOrderIsPermutation(t *testing.T) {
	batch := []profile.Profile{
		{1, 1, 1, 1},
		{1, 1, 1, 2},
		{1, 1, 2, 2},
		{2, 2, 2, 2},
		{1, 2, 1, 2},
	}
	m := distance.NewDense(len(batch))
	defer m.Close()
	distance.Build(batch, m)
	order := prim.Order(m)

	seen := make(map[int]bool)
	for _, idx := range order {
		assert.False(t, seen[idx], "duplicate index %d in order", idx)
		seen[idx] = true
	}
	assert.Equal(t, len(batch), len(order))
}
