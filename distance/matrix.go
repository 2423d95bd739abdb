// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package distance

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/grailbio/lincode/profile"
)

// INF is the sentinel distance the Prim orderer uses once a cell has been
// consumed by traversal; it is larger than any real percentage distance.
const INF = 999.0

// Matrix is a symmetric n x n distance matrix over a batch of profiles.
// Implementations may be backed by plain heap memory or by a memory-mapped
// file; the choice is observable only through memory footprint.
type Matrix interface {
	N() int
	Get(i, j int) float64
	Set(i, j int, v float64)
	// Close releases any backing resources (e.g. unmaps and deletes a
	// transient file). It is a no-op for dense matrices.
	Close() error
}

// Build computes the full symmetric distance matrix for batch, iterating
// only the upper triangle (i < j) and mirroring each value, per the
// component design. The diagonal is left at zero; callers that traverse the
// matrix (the Prim orderer) are responsible for replacing it with INF.
func Build(batch []profile.Profile, m Matrix) {
	n := len(batch)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := Pairwise(batch[i], batch[j])
			m.Set(i, j, r.Distance)
			m.Set(j, i, r.Distance)
		}
	}
}

// NewDense allocates an in-memory dense matrix.
func NewDense(n int) Matrix {
	return &denseMatrix{n: n, data: make([]float64, n*n)}
}

type denseMatrix struct {
	n    int
	data []float64
}

func (m *denseMatrix) N() int                  { return m.n }
func (m *denseMatrix) Get(i, j int) float64     { return m.data[i*m.n+j] }
func (m *denseMatrix) Set(i, j int, v float64)  { m.data[i*m.n+j] = v }
func (m *denseMatrix) Close() error             { return nil }

// mmapMatrix is a distance matrix backed by a transient file mapped
// into the process's address space, for batches large enough that the dense
// n^2 float64 allocation would otherwise dominate RSS.
type mmapMatrix struct {
	n    int
	path string
	file *os.File
	raw  []byte
	data []float64
}

// NewMmap creates an n x n matrix backed by a file under tmpDir named
// deterministically from the batch's own content, so repeated runs over an
// unchanged batch (e.g. after a crash mid-batch) reuse the same transient
// filename instead of accumulating garbage.
func NewMmap(tmpDir string, n int, batch []profile.Profile) (Matrix, error) {
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return nil, errors.Wrapf(err, "distance: create temp dir %s", tmpDir)
	}
	path := filepath.Join(tmpDir, fmt.Sprintf("dismat%s.dismat", tempSuffix(batch)))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "distance: create mmap matrix file %s", path)
	}
	size := n * n * 8
	if size == 0 {
		size = 8
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, errors.Wrapf(err, "distance: truncate mmap matrix file %s", path)
	}
	raw, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, errors.Wrapf(err, "distance: mmap %s", path)
	}
	var data []float64
	if len(raw) > 0 {
		data = unsafe.Slice((*float64)(unsafe.Pointer(&raw[0])), n*n)
	}
	return &mmapMatrix{n: n, path: path, file: f, raw: raw, data: data}, nil
}

// tempSuffix derives a short, content-stable suffix for a transient matrix
// filename from the batch it will hold.
func tempSuffix(batch []profile.Profile) string {
	h := seahash.New()
	for _, p := range batch {
		for _, v := range p {
			var b [8]byte
			for i := 0; i < 8; i++ {
				b[i] = byte(v >> (8 * i))
			}
			_, _ = h.Write(b[:])
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())[:8]
}

func (m *mmapMatrix) N() int { return m.n }

func (m *mmapMatrix) Get(i, j int) float64 {
	return m.data[i*m.n+j]
}

func (m *mmapMatrix) Set(i, j int, v float64) {
	m.data[i*m.n+j] = v
}

func (m *mmapMatrix) Close() error {
	var err error
	if m.raw != nil {
		if e := unix.Munmap(m.raw); e != nil {
			err = e
		}
	}
	if e := m.file.Close(); e != nil && err == nil {
		err = e
	}
	if e := os.Remove(m.path); e != nil && !os.IsNotExist(e) && err == nil {
		err = e
	}
	if err != nil {
		log.Error.Printf("distance: cleanup mmap matrix %s: %v", m.path, err)
		return errors.Wrapf(err, "distance: cleanup mmap matrix %s", m.path)
	}
	return nil
}
