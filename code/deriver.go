// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package code derives a new LINcode from the closest already-labeled
// profile and the scheme's threshold model.
package code

import (
	"github.com/grailbio/lincode/distance"
	"github.com/grailbio/lincode/profile"
	"github.com/grailbio/lincode/scheme"
)

// Labeled is the subset of the in-memory labeled set the deriver needs:
// parallel slices of ids, profiles, and codes in insertion order.
type Labeled struct {
	IDs      []string
	Profiles []profile.Profile
	Codes    []profile.Code
}

// Trace records the intermediate values of one derivation, used by the
// optional "log" debug trace.
type Trace struct {
	ClosestID       string
	CommonAlleles   int
	MissingAlleles  int
	Diffs           int
	MissingInEither int
	Identity        float64
	Distance        float64
	Prefix          []int
}

// Derive computes the LINcode for new profile p given the current labeled
// set, following the nearest-labeled / threshold-level / increment
// procedure. It returns the new code and a Trace describing how it was
// reached. An empty labeled set is valid: it is the cold-start case, and p
// gets the all-zero code.
func Derive(cfg *scheme.Config, labeled Labeled, p profile.Profile) (profile.Code, Trace) {
	k := cfg.K()
	l := cfg.L()

	if len(labeled.Profiles) == 0 {
		// Cold start: there is nothing to compare against, so the new
		// profile anchors the top level of the code tree.
		trace := Trace{
			MissingAlleles:  p.CountMissing(),
			MissingInEither: l,
			Identity:        0,
			Distance:        distance.Undefined,
		}
		return make(profile.Code, k), trace
	}

	// Step 1: nearest labeled profile, short-circuiting on diffs == 0. A
	// profile with no shared non-missing locus against q (MissingInEither
	// == L) is not a true match even if Diffs == 0; it must fall through
	// to the threshold-level branch and be treated as maximally distant.
	closest := -1
	closestDist := distance.Undefined + 1
	reuseAt := -1
	for i, q := range labeled.Profiles {
		r := distance.Pairwise(p, q)
		if r.Diffs == 0 && r.MissingInEither < l && reuseAt == -1 {
			reuseAt = i
		}
		if r.Distance < closestDist {
			closestDist = r.Distance
			closest = i
		}
	}

	if reuseAt != -1 {
		q := labeled.Profiles[reuseAt]
		r := distance.Pairwise(p, q)
		trace := Trace{
			ClosestID:       labeled.IDs[reuseAt],
			CommonAlleles:   l - r.Diffs - r.MissingInEither,
			MissingAlleles:  p.CountMissing(),
			Diffs:           r.Diffs,
			MissingInEither: r.MissingInEither,
			Identity:        100 - r.Distance,
			Distance:        r.Distance,
			Prefix:          append([]int(nil), labeled.Codes[reuseAt]...),
		}
		return append(profile.Code(nil), labeled.Codes[reuseAt]...), trace
	}

	r := distance.Pairwise(p, labeled.Profiles[closest])
	identity := 100 - r.Distance

	// Step 2: threshold level. k is the count of leading thresholds whose
	// identity cutoff the new profile still meets.
	level := 0
	for level < k && identity >= cfg.Identity[level] {
		level++
	}

	// Step 3: increment.
	newCode := make(profile.Code, k)
	var prefix []int
	if level == 0 {
		maxFirst := -1
		for _, c := range labeled.Codes {
			if c[0] > maxFirst {
				maxFirst = c[0]
			}
		}
		newCode[0] = maxFirst + 1
		// positions 1..k-1 are already zero.
	} else {
		prefix = append([]int(nil), labeled.Codes[closest][:level]...)
		copy(newCode, prefix)
		if level < k {
			maxAt := -1
			for _, c := range labeled.Codes {
				if c.HasPrefix(prefix) {
					if c[level] > maxAt {
						maxAt = c[level]
					}
				}
			}
			newCode[level] = maxAt + 1
			// positions level+1..k-1 are already zero.
		} else {
			// level == k: no position k exists; the increment applies to
			// the last position under the full-length prefix.
			last := k - 1
			maxAt := -1
			for _, c := range labeled.Codes {
				if c.HasPrefix(prefix[:last]) {
					if c[last] > maxAt {
						maxAt = c[last]
					}
				}
			}
			newCode[last] = maxAt + 1
		}
	}

	trace := Trace{
		ClosestID:       labeled.IDs[closest],
		CommonAlleles:   l - r.Diffs - r.MissingInEither,
		MissingAlleles:  p.CountMissing(),
		Diffs:           r.Diffs,
		MissingInEither: r.MissingInEither,
		Identity:        identity,
		Distance:        r.Distance,
		Prefix:          prefix,
	}
	return newCode, trace
}
