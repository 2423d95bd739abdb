// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package prim produces a nearest-neighbor traversal order over a batch of
// profiles by Prim-style minimum-spanning-tree extension.
package prim

import "github.com/grailbio/lincode/distance"

// Order returns a permutation of [0, n) where n = m.N(), ordering batch
// members so each new entrant is the closest remaining profile to the
// already-ordered set. Ties are broken deterministically by the smallest
// row-major flat index (i*n+j) among the tied cells.
//
// Order mutates m: the diagonal is set to distance.INF, and every cell
// between two already-emitted members is invalidated to distance.INF as it
// is consumed. Callers that need the matrix afterward (none currently do)
// must not rely on its contents.
func Order(m distance.Matrix) []int {
	n := m.N()
	if n <= 1 {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		return order
	}

	for i := 0; i < n; i++ {
		m.Set(i, i, distance.INF)
	}

	bx, by, bestFlat := -1, -1, -1
	bestVal := distance.INF + 1
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			v := m.Get(i, j)
			flat := i*n + j
			if v < bestVal || (v == bestVal && flat < bestFlat) {
				bestVal, bestFlat, bx, by = v, flat, i, j
			}
		}
	}

	visited := make([]bool, n)
	visited[bx] = true
	visited[by] = true
	order := make([]int, 0, n)
	order = append(order, bx, by)
	m.Set(bx, by, distance.INF)
	m.Set(by, bx, distance.INF)

	for len(order) < n {
		bestVal = distance.INF + 1
		bestFlat = -1
		bestCol := -1
		for i := 0; i < n; i++ {
			if !visited[i] {
				continue
			}
			rowBestVal := distance.INF + 1
			rowBestCol := -1
			for j := 0; j < n; j++ {
				if visited[j] {
					continue
				}
				v := m.Get(i, j)
				if v < rowBestVal {
					rowBestVal, rowBestCol = v, j
				}
			}
			if rowBestCol < 0 {
				continue
			}
			flat := i*n + rowBestCol
			if rowBestVal < bestVal || (rowBestVal == bestVal && flat < bestFlat) {
				bestVal, bestFlat, bestCol = rowBestVal, flat, rowBestCol
			}
		}
		if bestCol < 0 {
			break // all remaining columns already visited; nothing left to order
		}
		order = append(order, bestCol)
		visited[bestCol] = true
		for i := 0; i < n; i++ {
			if visited[i] && i != bestCol {
				m.Set(i, bestCol, distance.INF)
				m.Set(bestCol, i, distance.INF)
			}
		}
	}
	return order
}
