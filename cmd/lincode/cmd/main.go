// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package cmd implements the lincode command-line front end. It is a thin
// wiring layer: all algorithmic work lives in package assign and its
// collaborators; this package only parses flags, acquires the lock, and
// reports errors with the right exit code.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"

	"github.com/grailbio/lincode/assign"
	"github.com/grailbio/lincode/code"
	"github.com/grailbio/lincode/lock"
	"github.com/grailbio/lincode/profile"
	"github.com/grailbio/lincode/scheme"
)

type flags struct {
	dir           *string
	schemeID      *int
	batchSize     *int
	missing       *int
	min, max      *int64
	mmap          *bool
	inputProfiles *string
	logPath       *string
	create        *bool
	quiet, debug  *bool
}

func newCmdAssign() *cmdline.Command {
	c := &cmdline.Command{
		Name:  "lincode",
		Short: "Assign hierarchical LINcodes to cgMLST allelic profiles",
	}
	f := flags{
		dir:           c.Flags.String("dir", "", "Scheme directory (required)"),
		schemeID:      c.Flags.Int("scheme_id", 0, "Integer scheme selector (required)"),
		batchSize:     c.Flags.Int("batch_size", 10000, "Maximum profiles per inner iteration"),
		missing:       c.Flags.Int("missing", 0, "Per-profile missing-allele budget"),
		min:           c.Flags.Int64("min", -1, "Inclusive minimum profile id filter (unset if negative)"),
		max:           c.Flags.Int64("max", -1, "Inclusive maximum profile id filter (unset if negative)"),
		mmap:          c.Flags.Bool("mmap", false, "Use a disk-backed distance matrix instead of RAM"),
		inputProfiles: c.Flags.String("input_profiles", "", "Append new profiles from this TSV before assignment begins"),
		logPath:       c.Flags.String("log", "", "Path to a TSV debug log"),
		create:        c.Flags.Bool("create", false, "Produce an example schema directory and exit"),
		quiet:         c.Flags.Bool("quiet", false, "Suppress informational output"),
		debug:         c.Flags.Bool("debug", false, "Enable verbose debug output"),
	}
	c.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		return runMain(f)
	})
	return c
}

func runMain(f flags) error {
	if *f.debug {
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	}
	if *f.dir == "" {
		return fmt.Errorf("lincode: -dir is required")
	}

	ctx := vcontext.Background()

	if *f.create {
		if err := scheme.WriteExample(ctx, *f.dir, *f.schemeID); err != nil {
			return err
		}
		if !*f.quiet {
			log.Printf("lincode: wrote example scheme %d under %s", *f.schemeID, *f.dir)
		}
		return nil
	}

	exeIdentity, err := os.Executable()
	if err != nil {
		exeIdentity = "lincode"
	}
	l, err := lock.Acquire(*f.dir, exeIdentity, *f.schemeID)
	if err != nil {
		if err == lock.ErrHeld {
			log.Error.Printf("lincode: another instance is already running for %s scheme %d", *f.dir, *f.schemeID)
			os.Exit(1)
		}
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			log.Error.Printf("lincode: %v", err)
		}
	}()

	tmpDir := filepath.Join(*f.dir, ".tmp")
	defer func() {
		if err := lock.CleanTempDir(tmpDir); err != nil {
			log.Error.Printf("lincode: %v", err)
		}
	}()

	cfg, err := scheme.Load(ctx, *f.dir, *f.schemeID)
	if err != nil {
		return err
	}

	store, err := profile.Open(ctx, cfg)
	if err != nil {
		return err
	}

	if *f.inputProfiles != "" {
		added, err := store.Append(ctx, *f.inputProfiles)
		if err != nil {
			return err
		}
		if !*f.quiet {
			log.Printf("lincode: ingested %d new profile(s) from %s", added, *f.inputProfiles)
		}
	}

	opts := assign.Opts{
		BatchSize:  *f.batchSize,
		MaxMissing: *f.missing,
		Mmap:       *f.mmap,
		TmpDir:     tmpDir,
	}
	if *f.min >= 0 {
		opts.MinID = f.min
	}
	if *f.max >= 0 {
		opts.MaxID = f.max
	}
	if *f.logPath != "" {
		dl, err := code.OpenDebugLog(ctx, *f.logPath)
		if err != nil {
			return err
		}
		defer dl.Close()
		opts.DebugLog = dl
	}

	engine, err := assign.New(ctx, cfg, store, opts)
	if err != nil {
		return err
	}
	n, err := engine.Run(ctx)
	if err != nil {
		return err
	}
	if !*f.quiet {
		log.Printf("lincode: assigned %d profile(s)", n)
	}
	return nil
}

func Run() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newCmdAssign())
}
