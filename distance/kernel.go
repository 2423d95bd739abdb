// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package distance implements the missing-aware Hamming distance kernel
// and the batch distance matrix builder.
package distance

import "github.com/grailbio/lincode/profile"

// Undefined is returned by Pairwise when the two profiles share no locus at
// which both sides are non-missing. Callers must treat this as maximally
// distant and must never pivot traversal on it.
const Undefined = 100.0

// Result is the outcome of comparing two profiles.
type Result struct {
	// Diffs is the count of loci where both alleles are known and unequal.
	Diffs int
	// MissingInEither is the count of loci where at least one side is
	// missing.
	MissingInEither int
	// Distance is the percentage distance in [0, 100]. When the
	// denominator (L - MissingInEither) is zero, Distance is Undefined
	// rather than NaN or Inf.
	Distance float64
}

// Pairwise computes the missing-aware Hamming distance between two equal
// length profile vectors:
//
//	diffs             = |{ i : a[i] != b[i], a[i] != 0, b[i] != 0 }|
//	missingInEither   = |{ i : a[i] == 0 || b[i] == 0 }|
//	denom             = L - missingInEither
//	distance          = 100 * diffs / denom
//
// Equality (Diffs == 0) is distinct from Distance == 0.0: two profiles that
// differ only where one side is missing get Distance 0.0 but Diffs may be
// 0 too in that case only if every other locus also agrees; callers that
// need the "identical enough to reuse a code" rule must check Diffs, not
// Distance.
func Pairwise(a, b profile.Profile) Result {
	l := len(a)
	diffs := 0
	missingInEither := 0
	for i := 0; i < l; i++ {
		av, bv := a[i], b[i]
		if av == profile.Missing || bv == profile.Missing {
			missingInEither++
			continue
		}
		if av != bv {
			diffs++
		}
	}
	denom := l - missingInEither
	if denom <= 0 {
		return Result{Diffs: diffs, MissingInEither: missingInEither, Distance: Undefined}
	}
	return Result{
		Diffs:           diffs,
		MissingInEither: missingInEither,
		Distance:        100 * float64(diffs) / float64(denom),
	}
}
