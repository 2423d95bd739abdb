// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package scheme loads the immutable configuration of a cgMLST scheme: its
// locus list and its allelic-difference thresholds. Load reads the files on
// every call and keeps no cache of its own.
package scheme

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/pkg/errors"
)

// Config is the immutable configuration of one scheme. It is loaded once
// per process and passed by reference to every component that needs L, K,
// the threshold list, or the derived identity percentages.
type Config struct {
	// ID is the scheme selector from the "scheme_<ID>_*" filenames.
	ID int
	// Dir is the directory holding the scheme's files.
	Dir string
	// Loci is the ordered list of locus names. len(Loci) == L.
	Loci []string
	// Thresholds is the strictly increasing list of allelic-difference
	// cutoffs, T = [t1, ..., tK].
	Thresholds []int
	// Identity[k] is 100*(L-Thresholds[k])/L, the identity percentage
	// threshold position k must meet or exceed to share a code prefix.
	Identity []float64
}

// L returns the locus count of the scheme.
func (c *Config) L() int { return len(c.Loci) }

// K returns the number of LINcode positions.
func (c *Config) K() int { return len(c.Thresholds) }

// ProfilesPath is the path of the profile TSV for this scheme.
func (c *Config) ProfilesPath() string {
	return filepath.Join(c.Dir, fmt.Sprintf("scheme_%d_profiles.tsv", c.ID))
}

// LociPath is the path of the loci list for this scheme.
func (c *Config) LociPath() string {
	return filepath.Join(c.Dir, fmt.Sprintf("scheme_%d_loci.txt", c.ID))
}

// ThresholdsPath is the path of the thresholds file for this scheme.
func (c *Config) ThresholdsPath() string {
	return filepath.Join(c.Dir, fmt.Sprintf("scheme_%d_thresholds.txt", c.ID))
}

// LincodesPath is the path of the append-only labeled-set log.
func (c *Config) LincodesPath() string {
	return filepath.Join(c.Dir, fmt.Sprintf("scheme_%d_lincodes.tsv", c.ID))
}

// Load reads the loci and thresholds files under dir for scheme id and
// returns a fully validated Config. Both files must name the offending
// path on error, per the profile-store contract.
func Load(ctx context.Context, dir string, id int) (*Config, error) {
	c := &Config{ID: id, Dir: dir}
	loci, err := loadLoci(ctx, c.LociPath())
	if err != nil {
		return nil, err
	}
	c.Loci = loci

	thresholds, err := loadThresholds(ctx, c.ThresholdsPath())
	if err != nil {
		return nil, err
	}
	c.Thresholds = thresholds

	l := len(c.Loci)
	c.Identity = make([]float64, len(thresholds))
	for i, t := range thresholds {
		c.Identity[i] = 100 * float64(l-t) / float64(l)
	}
	return c, nil
}

func loadLoci(ctx context.Context, path string) ([]string, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "scheme: open loci file %s", path)
	}
	defer file.CloseAndReport(ctx, f, &err)

	var loci []string
	scanner := bufio.NewScanner(f.Reader(ctx))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		loci = append(loci, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scheme: read loci file %s", path)
	}
	if len(loci) == 0 {
		return nil, errors.Errorf("scheme: loci file %s defines no loci", path)
	}
	return loci, nil
}

func loadThresholds(ctx context.Context, path string) (thresholds []int, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "scheme: open thresholds file %s", path)
	}
	defer file.CloseAndReport(ctx, f, &err)

	scanner := bufio.NewScanner(f.Reader(ctx))
	var line string
	for scanner.Scan() {
		candidate := strings.TrimSpace(scanner.Text())
		if candidate == "" {
			continue
		}
		line = candidate
		break
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scheme: read thresholds file %s", path)
	}
	if line == "" {
		return nil, errors.Errorf("scheme: thresholds file %s is empty", path)
	}

	fields := strings.Split(line, ";")
	thresholds = make([]int, 0, len(fields))
	prev := -1
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		t, err := strconv.Atoi(field)
		if err != nil {
			return nil, errors.Wrapf(err, "scheme: thresholds file %s: %q is not an integer", path, field)
		}
		if t <= prev {
			return nil, errors.Errorf("scheme: thresholds file %s: thresholds must be strictly increasing, got %v", path, fields)
		}
		prev = t
		thresholds = append(thresholds, t)
	}
	if len(thresholds) == 0 {
		return nil, errors.Errorf("scheme: thresholds file %s defines no thresholds", path)
	}
	return thresholds, nil
}

// WriteExample writes a minimal, ready-to-run scheme directory (loci,
// thresholds, and an empty profiles file) under dir for scheme id. It is a
// scaffolding convenience for the "create" CLI option and is never called
// from the assignment engine itself.
func WriteExample(ctx context.Context, dir string, id int) error {
	lociPath := filepath.Join(dir, fmt.Sprintf("scheme_%d_loci.txt", id))
	if err := writeLines(ctx, lociPath, []string{"# one locus name per line", "locus1", "locus2", "locus3", "locus4"}); err != nil {
		return err
	}
	thresholdsPath := filepath.Join(dir, fmt.Sprintf("scheme_%d_thresholds.txt", id))
	if err := writeLines(ctx, thresholdsPath, []string{"1;2"}); err != nil {
		return err
	}
	profilesPath := filepath.Join(dir, fmt.Sprintf("scheme_%d_profiles.tsv", id))
	return writeLines(ctx, profilesPath, []string{"id\tlocus1,locus2,locus3,locus4"})
}

func writeLines(ctx context.Context, path string, lines []string) (err error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "scheme: create %s", path)
	}
	defer file.CloseAndReport(ctx, f, &err)
	w := f.Writer(ctx)
	for _, line := range lines {
		if _, err := w.Write([]byte(line + "\n")); err != nil {
			return errors.Wrapf(err, "scheme: write %s", path)
		}
	}
	return nil
}
