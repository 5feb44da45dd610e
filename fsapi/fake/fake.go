// Copyright 2024 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package fake provides an in-memory fsapi.Backend for tests, the way
// the teacher stands up datanode/metanode mocks in front of its
// production servers.
package fake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/extentwalk/crawld/fsapi"
	"github.com/extentwalk/crawld/proto"
)

// Subvolume is one fake subvolume's extent-item table plus its
// membership metadata.
type Subvolume struct {
	Root       uint64
	ParentRoot uint64
	DirID      uint64
	Name       string
	ReadOnly   bool
	NoCOW      map[uint64]bool     // inodes rejected as no-cow
	Items      []proto.ExtentItem // must stay sorted by (ObjectID, Offset)
}

// Backend is a fully in-memory fsapi.Backend. Every path it hands
// back encodes the (root, ino) it resolves to, and Stat decodes that
// same encoding — standing in for the real backend's root-id/inode
// ioctl checks.
type Backend struct {
	mu         sync.Mutex
	mountFd    *os.File
	subvols    map[uint64]*Subvolume
	transidMax uint64
	dir        string
	dev        uint64
}

// fakeDev is the single synthetic device number every file the fake
// backend hands out reports, standing in for the one st_dev every
// subvolume of a real mount shares regardless of its own root id.
const fakeDev = 0xf5

// New creates an empty fake backend rooted at dir, which must already
// exist (a t.TempDir() is the usual caller).
func New(dir string) (*Backend, error) {
	mountFd, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("fake: open mount dir: %w", err)
	}
	return &Backend{
		mountFd: mountFd,
		subvols: make(map[uint64]*Subvolume),
		dir:     dir,
		dev:     fakeDev,
	}, nil
}

// AddSubvolume registers a subvolume. Items are sorted in place.
func (b *Backend) AddSubvolume(sv *Subvolume) {
	sort.Slice(sv.Items, func(i, j int) bool {
		if sv.Items[i].ObjectID != sv.Items[j].ObjectID {
			return sv.Items[i].ObjectID < sv.Items[j].ObjectID
		}
		return sv.Items[i].Offset < sv.Items[j].Offset
	})
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subvols[sv.Root] = sv
}

// RemoveSubvolume drops a subvolume, simulating deletion.
func (b *Backend) RemoveSubvolume(root uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subvols, root)
}

// SetTransidMax advances the fake filesystem's current generation.
func (b *Backend) SetTransidMax(t uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transidMax = t
}

func (b *Backend) TransidMaxNocache(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.transidMax == 0 {
		return 0, fmt.Errorf("fake: transid_max is zero")
	}
	return b.transidMax, nil
}

func (b *Backend) MountFd() *os.File { return b.mountFd }

func (b *Backend) IsReadOnly(root uint64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sv, ok := b.subvols[root]
	if !ok {
		return false, fmt.Errorf("fake: unknown root %d", root)
	}
	return sv.ReadOnly, nil
}

func (b *Backend) TreeSearch(ctx context.Context, req fsapi.TreeSearchRequest) ([]proto.ExtentItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if req.Type != fsapi.ItemExtentData {
		return nil, nil
	}
	sv, ok := b.subvols[req.Root]
	if !ok {
		return nil, fmt.Errorf("fake: unknown root %d", req.Root)
	}
	var out []proto.ExtentItem
	for _, item := range sv.Items {
		if item.ObjectID < req.ObjectIDMin {
			continue
		}
		if req.ObjectIDMax != 0 && item.ObjectID > req.ObjectIDMax {
			continue
		}
		if item.ObjectID == req.ObjectIDMin && item.Offset < req.OffsetMin {
			continue
		}
		if item.Generation < req.MinTransid {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (b *Backend) RootBackrefs(ctx context.Context, root uint64) ([]fsapi.RootBackref, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sv, ok := b.subvols[root]
	if !ok || sv.ParentRoot == 0 {
		return nil, nil
	}
	return []fsapi.RootBackref{{ParentRoot: sv.ParentRoot, DirID: sv.DirID, Name: sv.Name}}, nil
}

// InodePath returns a single deterministic path for (root, ino) under
// the backend's scratch directory; the path itself encodes the
// (root, ino, dev) triple that Stat later decodes.
func (b *Backend) InodePath(ctx context.Context, root, ino uint64) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subvols[root]; !ok {
		return nil, fmt.Errorf("fake: unknown root %d", root)
	}
	return []string{b.pathFor(root, ino)}, nil
}

func (b *Backend) pathFor(root, ino uint64) string {
	return filepath.Join(b.dir, fmt.Sprintf("r%d-i%d", root, ino))
}

func (b *Backend) Open(path string, readOnly bool) (*os.File, error) {
	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY | os.O_CREATE
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
			if err != nil {
				return nil, err
			}
			f.Close()
		}
	}
	return os.OpenFile(path, flag, 0o644)
}

// Stat decodes the (root, ino) a fake path was minted for and reports
// whether that inode is flagged no-cow in its owning subvolume. The
// mount fd itself carries no such encoding and is reported as the
// fs-tree root directory.
func (b *Backend) Stat(f *os.File) (fsapi.FileStat, error) {
	if f == b.mountFd {
		return fsapi.FileStat{Root: fsapi.FirstFreeObjectID, Ino: fsapi.FirstFreeObjectID, Dev: b.dev}, nil
	}

	var root, ino uint64
	base := filepath.Base(f.Name())
	if _, err := fmt.Sscanf(base, "r%d-i%d", &root, &ino); err != nil {
		return fsapi.FileStat{}, fmt.Errorf("fake: cannot decode stat from path %q: %w", f.Name(), err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	noCOW := false
	if sv, ok := b.subvols[root]; ok && sv.NoCOW != nil {
		noCOW = sv.NoCOW[ino]
	}
	return fsapi.FileStat{Root: root, Ino: ino, Dev: b.dev, NoCOW: noCOW}, nil
}

func (b *Backend) NextRoot(ctx context.Context, after uint64) (uint64, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if after == 0 {
		if _, ok := b.subvols[fsapi.FirstFreeObjectID]; !ok {
			// fs-tree root always exists conceptually even without an
			// explicit table entry.
			return fsapi.FirstFreeObjectID, true, nil
		}
	}

	var roots []uint64
	for r := range b.subvols {
		if r > after {
			roots = append(roots, r)
		}
	}
	if len(roots) == 0 {
		return 0, false, nil
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return roots[0], true, nil
}
