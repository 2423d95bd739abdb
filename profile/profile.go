// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package profile models a cgMLST allelic profile and the on-disk stores
// that hold unlabeled profiles and the append-only labeled-set log.
package profile

import (
	"strconv"
	"strings"
)

// Missing is the canonical internal representation of an unknown allele.
const Missing = 0

// Profile is a dense vector of L allele identifiers. A value of Missing (0)
// means the allele at that locus is unknown.
type Profile []int

// Code is a LINcode: a fixed-length tuple of K non-negative integers.
type Code []int

// String renders a Code in the on-disk underscore-joined form, e.g. "0_1_2_0".
func (c Code) String() string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, "_")
}

// Equal reports whether two codes are identical element-wise.
func (c Code) Equal(other Code) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether c shares its first k positions with prefix.
func (c Code) HasPrefix(prefix []int) bool {
	if len(prefix) > len(c) {
		return false
	}
	for i, v := range prefix {
		if c[i] != v {
			return false
		}
	}
	return true
}

// CSV renders the normalized profile as a comma-separated allele vector, the
// form stored in the lincodes.tsv "profile" column.
func (p Profile) CSV() string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// CountMissing returns the number of Missing alleles in the profile.
func (p Profile) CountMissing() int {
	n := 0
	for _, v := range p {
		if v == Missing {
			n++
		}
	}
	return n
}

// ParseCode parses the underscore-joined on-disk LINcode form.
func ParseCode(s string) (Code, error) {
	fields := strings.Split(s, "_")
	code := make(Code, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		code[i] = v
	}
	return code, nil
}

// ParseAllele normalizes one raw allele token into its integer
// representation. "", "-", "0", and "N" (case-sensitive, matching the
// on-disk convention) all mean Missing. A field containing
// semicolon-separated alternatives ("a;b;c") uses the first entry, falling
// back to Missing if that first entry is itself empty.
func ParseAllele(tok string) (int, error) {
	if idx := strings.IndexByte(tok, ';'); idx >= 0 {
		tok = tok[:idx]
	}
	switch tok {
	case "", "-", "N", "0":
		return Missing, nil
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return Missing, nil
	}
	return v, nil
}

// ParseRow normalizes a raw comma- or tab-separated allele row into a
// Profile of length L. It returns an error if the row's width does not
// match L exactly.
func ParseRow(raw string, l int) (Profile, error) {
	var fields []string
	if strings.ContainsRune(raw, '\t') {
		fields = strings.Split(raw, "\t")
	} else {
		fields = strings.Split(raw, ",")
	}
	if len(fields) != l {
		return nil, &WidthError{Got: len(fields), Want: l}
	}
	p := make(Profile, l)
	for i, f := range fields {
		v, err := ParseAllele(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		p[i] = v
	}
	return p, nil
}

// WidthError reports that a profile's allele count did not match the
// scheme's locus count.
type WidthError struct {
	Got, Want int
}

func (e *WidthError) Error() string {
	return "profile width " + strconv.Itoa(e.Got) + " does not match scheme locus count " + strconv.Itoa(e.Want)
}
