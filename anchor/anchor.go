// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package anchor rotates a Prim-ordered batch so it begins with the member
// closest to the already-labeled set.
package anchor

import (
	"github.com/grailbio/lincode/distance"
	"github.com/grailbio/lincode/profile"
)

// Adjust rotates order (a permutation of indices into batch) so that it
// starts with the batch member closest to any profile in labeled and runs
// from there to the end of order, followed by the members that preceded it
// in reverse order. This preserves the MST
// adjacency spine built by the Prim orderer while re-seating the starting
// vertex near the labeled cluster.
//
// If labeled is empty, order is returned unchanged.
func Adjust(labeled []profile.Profile, batch []profile.Profile, order []int) []int {
	if len(labeled) == 0 {
		return order
	}

	bestIdx := 0
	bestDist := distance.Undefined + 1
	for idx, pos := range order {
		p := batch[pos]
		min := distance.Undefined
		for _, q := range labeled {
			d := distance.Pairwise(p, q).Distance
			if d < min {
				min = d
			}
		}
		if min < bestDist {
			bestDist = min
			bestIdx = idx
		}
	}

	rotated := make([]int, 0, len(order))
	rotated = append(rotated, order[bestIdx:]...)
	for i := bestIdx - 1; i >= 0; i-- {
		rotated = append(rotated, order[i])
	}
	return rotated
}
