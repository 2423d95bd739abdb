// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package profile

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/klauspost/compress/gzip"
	"github.com/minio/highwayhash"
	"github.com/pkg/errors"

	"github.com/grailbio/lincode/scheme"
)

// Record is one profile together with its externally supplied id. Ids are
// compared as integers for range filters and as strings for equality, per
// the data model.
type Record struct {
	ID      string
	Profile Profile
}

// Labeled is a (profile, LINcode) pair as stored in the labeled-set log.
type Labeled struct {
	ID      string
	Profile Profile
	Code    Code
}

// idEntry adapts a Record into an llrb.Comparable keyed by the record's
// integer id, giving iterate_profiles an ordered walk. The walk visits every
// entry and applies the min/max bounds per entry; it does not prune ranges.
type idEntry struct {
	id     int64
	hasID  bool
	record Record
}

func (e idEntry) Compare(c llrb.Comparable) int {
	o := c.(idEntry)
	switch {
	case e.id < o.id:
		return -1
	case e.id > o.id:
		return 1
	default:
		return 0
	}
}

// Store is the on-disk profile store and labeled-set log for one scheme.
type Store struct {
	cfg   *scheme.Config
	index llrb.Tree // ordered by integer id; holds every loaded profile
	order []Record  // file order, for ids that don't parse as integers
}

// headerHashKey is a fixed, non-zero HighwayHash key used only to checksum
// the labeled-set header line for corruption detection; it is not a secret.
var headerHashKey = [32]byte{
	0x4c, 0x49, 0x4e, 0x63, 0x6f, 0x64, 0x65, 0x01,
	0x02, 0x03, 0x05, 0x08, 0x0d, 0x15, 0x22, 0x37,
	0x59, 0x90, 0xe9, 0x79, 0x62, 0xdb, 0x3d, 0x08,
	0x4b, 0x53, 0x9e, 0xf1, 0x90, 0x81, 0x11, 0x92,
}

const labeledHeader = "profile_id\tlincode\tprofile"

// Open loads and indexes every profile in the scheme's profile TSV. The file
// must exist; a missing file is a fatal configuration error naming the path.
func Open(ctx context.Context, cfg *scheme.Config) (*Store, error) {
	s := &Store{cfg: cfg}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) (err error) {
	path := s.cfg.ProfilesPath()
	f, err := file.Open(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "profile: open profile file %s", path)
	}
	defer file.CloseAndReport(ctx, f, &err)

	scanner := bufio.NewScanner(f.Reader(ctx))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if first {
			first = false
			continue // header line
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			return errors.Errorf("profile: %s:%d: expected id<TAB>alleles, got %q", path, lineNo, line)
		}
		id := line[:tab]
		raw := line[tab+1:]
		p, err := ParseRow(raw, s.cfg.L())
		if err != nil {
			if we, ok := err.(*WidthError); ok {
				return errors.Errorf("profile: %s:%d: profile %s has width %d, want %d", path, lineNo, id, we.Got, we.Want)
			}
			return errors.Wrapf(err, "profile: %s:%d: profile %s", path, lineNo, id)
		}
		s.insert(Record{ID: id, Profile: p})
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "profile: read profile file %s", path)
	}
	return nil
}

func (s *Store) insert(r Record) {
	s.order = append(s.order, r)
	if v, ok := parseIntID(r.ID); ok {
		s.index.Insert(idEntry{id: v, hasID: true, record: r})
	}
}

func parseIntID(id string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IterateProfiles yields profiles in id order as stored, skipping any whose
// normalized missing-allele count exceeds maxMissing and any outside the
// inclusive [minID, maxID] filter (either bound may be nil).
func (s *Store) IterateProfiles(minID, maxID *int64, maxMissing int) []Record {
	var out []Record
	visit := func(c llrb.Comparable) bool {
		e := c.(idEntry)
		// Returning true from an llrb.Operation ends the walk, so every path
		// returns false to visit all entries.
		if minID != nil && e.id < *minID {
			return false
		}
		if maxID != nil && e.id > *maxID {
			return false
		}
		if e.record.Profile.CountMissing() <= maxMissing {
			out = append(out, e.record)
		}
		return false
	}
	s.index.Do(visit)
	if minID == nil && maxID == nil {
		// Ids that failed to parse as integers are excluded from range
		// filters by definition but still participate when no range is
		// requested, preserving file order among them.
		for _, r := range s.order {
			if _, ok := parseIntID(r.ID); ok {
				continue
			}
			if r.Profile.CountMissing() <= maxMissing {
				out = append(out, r)
			}
		}
	}
	return out
}

// Append adds new profiles read from a TSV at path into the profile store,
// skipping duplicates by id without error. Each new row is added to the
// in-memory index and appended to the scheme's profile TSV.
func (s *Store) Append(ctx context.Context, path string) (added int, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return 0, errors.Wrapf(err, "profile: open input profiles %s", path)
	}
	defer file.CloseAndReport(ctx, f, &err)

	var r io.Reader = f.Reader(ctx)
	if strings.HasSuffix(path, ".gz") {
		gz, gerr := gzip.NewReader(r)
		if gerr != nil {
			return 0, errors.Wrapf(gerr, "profile: gunzip input profiles %s", path)
		}
		defer gz.Close()
		r = gz
	}

	seen := make(map[string]bool, len(s.order))
	for _, rec := range s.order {
		seen[rec.ID] = true
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			return added, errors.Errorf("profile: %s: expected id<TAB>alleles, got %q", path, line)
		}
		id := line[:tab]
		if seen[id] {
			continue
		}
		p, err := ParseRow(line[tab+1:], s.cfg.L())
		if err != nil {
			return added, errors.Wrapf(err, "profile: %s: profile %s", path, id)
		}
		rec := Record{ID: id, Profile: p}
		s.insert(rec)
		seen[id] = true
		if err := s.appendProfileLine(ctx, rec); err != nil {
			return added, err
		}
		added++
	}
	if err := scanner.Err(); err != nil {
		return added, errors.Wrapf(err, "profile: read input profiles %s", path)
	}
	log.Debug.Printf("profile: ingested %d new profile(s) from %s", added, path)
	return added, nil
}

// appendProfileLine appends one normalized row to the scheme's profile TSV.
// Like labeled-set appends, this relies on POSIX append-mode atomicity for
// single-line writes.
func (s *Store) appendProfileLine(ctx context.Context, r Record) error {
	f, err := os.OpenFile(s.cfg.ProfilesPath(), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrapf(err, "profile: append to profile file %s", s.cfg.ProfilesPath())
	}
	defer f.Close()
	line := fmt.Sprintf("%s\t%s\n", r.ID, r.Profile.CSV())
	if _, err := f.Write([]byte(line)); err != nil {
		return errors.Wrapf(err, "profile: append to profile file %s", s.cfg.ProfilesPath())
	}
	return nil
}

// LoadLabeled reads the entire labeled-set log in append order.
func LoadLabeled(ctx context.Context, cfg *scheme.Config) (out []Labeled, err error) {
	path := cfg.LincodesPath()
	if _, statErr := os.Stat(path); statErr != nil {
		if os.IsNotExist(statErr) {
			return nil, nil
		}
		return nil, errors.Wrapf(statErr, "profile: stat labeled set %s", path)
	}
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "profile: open labeled set %s", path)
	}
	defer file.CloseAndReport(ctx, f, &err)

	scanner := bufio.NewScanner(f.Reader(ctx))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if first {
			first = false
			if strings.TrimSpace(line) != labeledHeader {
				return nil, errors.Errorf("profile: %s: unexpected header %q", path, line)
			}
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return nil, errors.Errorf("profile: %s:%d: malformed record %q", path, lineNo, line)
		}
		code, err := ParseCode(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "profile: %s:%d: malformed lincode", path, lineNo)
		}
		p, err := ParseRow(fields[2], cfg.L())
		if err != nil {
			return nil, errors.Wrapf(err, "profile: %s:%d: malformed profile", path, lineNo)
		}
		out = append(out, Labeled{ID: fields[0], Profile: p, Code: code})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "profile: read labeled set %s", path)
	}
	return out, nil
}

// AppendLabeled appends one (id, profile, code) record to the labeled-set
// log, writing the header first if this is the first record. The append is
// atomic with respect to readers of LoadLabeled: each write is a single
// os.Write call under O_APPEND, which POSIX guarantees is indivisible for
// writes at or below PIPE_BUF.
func AppendLabeled(ctx context.Context, cfg *scheme.Config, rec Labeled) error {
	path := cfg.LincodesPath()
	needsHeader := false
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			needsHeader = true
		} else {
			return errors.Wrapf(err, "profile: stat labeled set %s", path)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrapf(err, "profile: append to labeled set %s", path)
	}
	defer f.Close()

	if needsHeader {
		if _, err := f.Write([]byte(labeledHeader + "\n")); err != nil {
			return errors.Wrapf(err, "profile: write labeled set header %s", path)
		}
		if err := writeHeaderChecksum(cfg); err != nil {
			return err
		}
	}

	line := fmt.Sprintf("%s\t%s\t%s\n", rec.ID, rec.Code.String(), rec.Profile.CSV())
	if _, err := f.Write([]byte(line)); err != nil {
		return errors.Wrapf(err, "profile: append to labeled set %s", path)
	}
	return nil
}

func writeHeaderChecksum(cfg *scheme.Config) error {
	h, err := highwayhash.New64(headerHashKey[:])
	if err != nil {
		return errors.Wrap(err, "profile: init header checksum")
	}
	_, _ = h.Write([]byte(labeledHeader))
	sumPath := cfg.LincodesPath() + ".sum"
	line := strconv.FormatUint(h.Sum64(), 16) + "\n"
	if err := os.WriteFile(sumPath, []byte(line), 0644); err != nil {
		return errors.Wrapf(err, "profile: write header checksum %s", sumPath)
	}
	return nil
}

// VerifyHeaderChecksum reports whether the labeled-set header sidecar (if
// present) matches the fixed header text. A missing sidecar is not an error:
// older stores predate this check.
func VerifyHeaderChecksum(cfg *scheme.Config) error {
	sumPath := cfg.LincodesPath() + ".sum"
	data, err := os.ReadFile(sumPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "profile: read header checksum %s", sumPath)
	}
	h, err := highwayhash.New64(headerHashKey[:])
	if err != nil {
		return errors.Wrap(err, "profile: init header checksum")
	}
	_, _ = h.Write([]byte(labeledHeader))
	want := strconv.FormatUint(h.Sum64(), 16)
	got := strings.TrimSpace(string(data))
	if got != want {
		return errors.Errorf("profile: labeled set header checksum mismatch in %s: got %s, want %s", sumPath, got, want)
	}
	return nil
}
