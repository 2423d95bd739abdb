// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package code

import (
	"context"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"

	"github.com/grailbio/lincode/profile"
)

// DebugLogger writes the per-assignment debug TSV named by the "log"
// configuration option: one header, then one row per assignment with
// columns profile_id, closest_profile_id, common_alleles, missing_alleles,
// missing_in_either, identity, distance, chosen_prefix, new_lincode.
type DebugLogger struct {
	out file.File
	w   *tsv.Writer
	ctx context.Context
}

var debugLogHeader = []string{
	"profile_id", "closest_profile_id", "common_alleles", "missing_alleles",
	"missing_in_either", "identity", "distance", "chosen_prefix", "new_lincode",
}

// OpenDebugLog creates (or truncates) the debug log at path and writes its
// header.
func OpenDebugLog(ctx context.Context, path string) (*DebugLogger, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "code: create debug log %s", path)
	}
	w := tsv.NewWriter(out.Writer(ctx))
	for _, h := range debugLogHeader {
		w.WriteString(h)
	}
	if err := w.EndLine(); err != nil {
		return nil, errors.Wrapf(err, "code: write debug log header %s", path)
	}
	return &DebugLogger{out: out, w: w, ctx: ctx}, nil
}

// Write appends one row describing how newCode was derived for profileID.
func (d *DebugLogger) Write(profileID string, trace Trace, newCode profile.Code) error {
	d.w.WriteString(profileID)
	d.w.WriteString(trace.ClosestID)
	d.w.WriteInt64(int64(trace.CommonAlleles))
	d.w.WriteInt64(int64(trace.MissingAlleles))
	d.w.WriteInt64(int64(trace.MissingInEither))
	d.w.WriteString(strconv.FormatFloat(trace.Identity, 'f', -1, 64))
	d.w.WriteString(strconv.FormatFloat(trace.Distance, 'f', -1, 64))
	d.w.WriteString(prefixString(trace.Prefix))
	d.w.WriteString(newCode.String())
	if err := d.w.EndLine(); err != nil {
		return err
	}
	return d.w.Flush()
}

func prefixString(prefix []int) string {
	if len(prefix) == 0 {
		return ""
	}
	parts := make([]string, len(prefix))
	for i, v := range prefix {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, "_")
}

// Close flushes and closes the underlying file.
func (d *DebugLogger) Close() error {
	if err := d.w.Flush(); err != nil {
		return err
	}
	return d.out.Close(d.ctx)
}
