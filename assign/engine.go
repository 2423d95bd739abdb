// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package assign implements the batched, restartable assignment loop: the
// single driver that ties the profile store, distance kernel/matrix, Prim
// orderer, anchor adjuster, and code deriver together.
package assign

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/grailbio/lincode/anchor"
	"github.com/grailbio/lincode/code"
	"github.com/grailbio/lincode/distance"
	"github.com/grailbio/lincode/prim"
	"github.com/grailbio/lincode/profile"
	"github.com/grailbio/lincode/scheme"
)

// Opts configures one run of the assignment loop. It is held by the Engine,
// in place of process-wide mutable configuration.
type Opts struct {
	// BatchSize is the maximum number of profiles considered per outer
	// iteration. Default 10000 if zero.
	BatchSize int
	// MaxMissing is the per-profile missing-allele budget.
	MaxMissing int
	// MinID, MaxID are inclusive id-range filters on the unlabeled queue.
	// Nil means unbounded.
	MinID, MaxID *int64
	// Mmap selects a disk-backed distance matrix instead of an in-memory
	// dense one.
	Mmap bool
	// TmpDir is the secure temp directory transient mmap matrix files are
	// created under. Required when Mmap is true.
	TmpDir string
	// DebugLog, if non-nil, receives one row per assignment.
	DebugLog *code.DebugLogger
}

const defaultBatchSize = 10000

// Engine owns every piece of mutable state for one assignment run: the
// scheme configuration, the profile store, and the in-memory labeled set.
// It is not safe for concurrent use; single-writer enforcement lives in
// package lock, outside the Engine itself.
type Engine struct {
	cfg   *scheme.Config
	store *profile.Store
	opts  Opts

	labeled code.Labeled
	haveID  map[string]bool
}

// New constructs an Engine over an already-loaded profile store, reading
// the current labeled set from disk.
func New(ctx context.Context, cfg *scheme.Config, store *profile.Store, opts Opts) (*Engine, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	e := &Engine{cfg: cfg, store: store, opts: opts, haveID: map[string]bool{}}
	if err := e.reload(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) reload(ctx context.Context) error {
	rows, err := profile.LoadLabeled(ctx, e.cfg)
	if err != nil {
		return err
	}
	e.labeled = code.Labeled{
		IDs:      make([]string, 0, len(rows)),
		Profiles: make([]profile.Profile, 0, len(rows)),
		Codes:    make([]profile.Code, 0, len(rows)),
	}
	e.haveID = make(map[string]bool, len(rows))
	for _, r := range rows {
		e.labeled.IDs = append(e.labeled.IDs, r.ID)
		e.labeled.Profiles = append(e.labeled.Profiles, r.Profile)
		e.labeled.Codes = append(e.labeled.Codes, r.Code)
		e.haveID[r.ID] = true
	}
	return nil
}

// HasLabel reports whether id already has an assigned code.
func (e *Engine) HasLabel(id string) bool { return e.haveID[id] }

// NumLabeled returns the number of profiles currently labeled.
func (e *Engine) NumLabeled() int { return len(e.labeled.IDs) }

// Run drives the assignment loop to completion: it repeatedly selects the
// next batch of unlabeled profiles, orders them, derives codes, and
// persists them, until no unlabeled profiles remain. It returns the total
// number of profiles assigned.
func (e *Engine) Run(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := e.runBatch(ctx)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			return total, nil
		}
	}
}

// runBatch runs exactly one outer iteration of the assignment loop and
// returns the number of profiles it assigned (0 means the unlabeled queue
// is empty and the caller should stop).
func (e *Engine) runBatch(ctx context.Context) (int, error) {
	candidates := e.store.IterateProfiles(e.opts.MinID, e.opts.MaxID, e.opts.MaxMissing)
	batch := make([]profile.Record, 0, e.opts.BatchSize)
	for _, r := range candidates {
		if e.HasLabel(r.ID) {
			continue
		}
		batch = append(batch, r)
		if len(batch) == e.opts.BatchSize {
			break
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}

	order, err := e.orderBatch(batch)
	if err != nil {
		return 0, err
	}

	if e.NumLabeled() > 0 {
		profiles := make([]profile.Profile, len(batch))
		for i, r := range batch {
			profiles[i] = r.Profile
		}
		order = anchor.Adjust(e.labeled.Profiles, profiles, order)
	}

	for _, idx := range order {
		rec := batch[idx]
		newCode, trace := code.Derive(e.cfg, e.labeled, rec.Profile)
		if len(newCode) != e.cfg.K() {
			log.Panicf("assign: derived code %v has length %d, want %d", newCode, len(newCode), e.cfg.K())
		}
		labeled := profile.Labeled{ID: rec.ID, Profile: rec.Profile, Code: newCode}
		if err := profile.AppendLabeled(ctx, e.cfg, labeled); err != nil {
			return 0, errors.Wrapf(err, "assign: persist profile %s", rec.ID)
		}
		e.labeled.IDs = append(e.labeled.IDs, rec.ID)
		e.labeled.Profiles = append(e.labeled.Profiles, rec.Profile)
		e.labeled.Codes = append(e.labeled.Codes, newCode)
		e.haveID[rec.ID] = true

		if e.opts.DebugLog != nil {
			if err := e.opts.DebugLog.Write(rec.ID, trace, newCode); err != nil {
				return 0, errors.Wrap(err, "assign: write debug log")
			}
		}
		log.Debug.Printf("assign: %s -> %s (closest=%s distance=%.3f)", rec.ID, newCode.String(), trace.ClosestID, trace.Distance)
	}

	// The in-memory labeled set is already authoritative after the loop
	// above, and the single-writer lock precludes concurrent mutation, so
	// reloading from disk here would be redundant.
	return len(order), nil
}

func (e *Engine) orderBatch(batch []profile.Record) ([]int, error) {
	n := len(batch)
	if n <= 1 {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		return order, nil
	}

	profiles := make([]profile.Profile, n)
	for i, r := range batch {
		profiles[i] = r.Profile
	}

	var m distance.Matrix
	if e.opts.Mmap {
		mm, err := distance.NewMmap(e.opts.TmpDir, n, profiles)
		if err != nil {
			return nil, err
		}
		m = mm
	} else {
		m = distance.NewDense(n)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Error.Printf("assign: %v", err)
		}
	}()

	distance.Build(profiles, m)
	return prim.Order(m), nil
}
