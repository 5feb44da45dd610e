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

// Package fdcache resolves (root, ino) pairs to open file descriptors
// via backref walks and bounds the resulting handles behind two LRU
// caches, the way the teacher bounds its extent handle tables.
package fdcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/extentwalk/crawld/fsapi"
	"github.com/extentwalk/crawld/util/log"
)

// Error taxonomy. None of these are fatal to the daemon: callers get
// (nil, nil) on any of them.
var (
	ErrMissingPath    = errors.New("fdcache: no path resolved")
	ErrWrongRoot      = errors.New("fdcache: opened file has wrong root")
	ErrWrongInode     = errors.New("fdcache: opened file has wrong inode")
	ErrWrongDevice    = errors.New("fdcache: opened file has wrong device")
	ErrWrongAttribute = errors.New("fdcache: opened file is no-cow")
	ErrOpenFailed     = errors.New("fdcache: open failed")
)

// nonFatal reports whether err is one of the taxonomy errors above,
// i.e. one the caller should treat as "no file" rather than propagate.
func nonFatal(err error) bool {
	switch {
	case errors.Is(err, ErrMissingPath),
		errors.Is(err, ErrWrongRoot),
		errors.Is(err, ErrWrongInode),
		errors.Is(err, ErrWrongDevice),
		errors.Is(err, ErrWrongAttribute),
		errors.Is(err, ErrOpenFailed):
		return true
	default:
		return false
	}
}

type rootIno struct {
	root uint64
	ino  uint64
}

// Cache is the bounded FD resolver of C1. Two LRUs (root -> *os.File,
// (root,ino) -> *os.File) evict via Close so descriptors never leak.
type Cache struct {
	backend fsapi.Backend

	// expectedDev is the OS device number every file under this mount
	// must carry, sampled once from the mount fd itself. It has
	// nothing to do with any subvolume/root-tree id: on btrfs every
	// subvolume of one mount shares a single st_dev.
	expectedDev uint64

	rootCache *lru.Cache
	inoCache  *lru.Cache

	rootGroup singleflight.Group
	inoGroup  singleflight.Group

	tmpMu    sync.RWMutex
	tmpFiles map[rootIno]*os.File
}

// New creates a Cache backed by backend with the given per-cache LRU
// capacities.
func New(backend fsapi.Backend, rootCap, inoCap int) (*Cache, error) {
	mountStat, err := backend.Stat(backend.MountFd())
	if err != nil {
		return nil, fmt.Errorf("fdcache: stat mount fd: %w", err)
	}
	c := &Cache{backend: backend, expectedDev: mountStat.Dev, tmpFiles: make(map[rootIno]*os.File)}

	rc, err := lru.NewWithEvict(rootCap, func(key, value interface{}) {
		if f, ok := value.(*os.File); ok {
			f.Close()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("fdcache: new root lru: %w", err)
	}
	ic, err := lru.NewWithEvict(inoCap, func(key, value interface{}) {
		if f, ok := value.(*os.File); ok {
			f.Close()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("fdcache: new ino lru: %w", err)
	}
	c.rootCache = rc
	c.inoCache = ic
	return c, nil
}

// RegisterTempFile records f as the file for (root, ino), returned
// unconditionally by OpenRootIno ahead of any backref resolution.
func (c *Cache) RegisterTempFile(root, ino uint64, f *os.File) {
	c.tmpMu.Lock()
	defer c.tmpMu.Unlock()
	c.tmpFiles[rootIno{root, ino}] = f
}

// Clear closes and evicts every cached descriptor. Called by the
// transid watcher on every window change so the kernel can reclaim
// snapshots the daemon was pinning open.
func (c *Cache) Clear() {
	c.rootCache.Purge()
	c.inoCache.Purge()
}

// OpenRoot resolves root to a directory FD, caching the result. A nil
// file with a nil error means the resolution failed non-fatally.
func (c *Cache) OpenRoot(ctx context.Context, root uint64) (*os.File, error) {
	if v, ok := c.rootCache.Get(root); ok {
		return v.(*os.File), nil
	}

	v, err, _ := c.rootGroup.Do(fmt.Sprint(root), func() (interface{}, error) {
		f, rerr := c.resolveRoot(ctx, root)
		if rerr != nil {
			if nonFatal(rerr) {
				log.LogDebugf("fdcache: resolve root %d: %v", root, rerr)
				return (*os.File)(nil), nil
			}
			return nil, rerr
		}
		c.rootCache.Add(root, f)
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	f, _ := v.(*os.File)
	return f, nil
}

// OpenRootIno resolves (root, ino) to a file FD.
func (c *Cache) OpenRootIno(ctx context.Context, root, ino uint64) (*os.File, error) {
	c.tmpMu.RLock()
	if f, ok := c.tmpFiles[rootIno{root, ino}]; ok {
		c.tmpMu.RUnlock()
		return f, nil
	}
	c.tmpMu.RUnlock()

	key := rootIno{root, ino}
	if v, ok := c.inoCache.Get(key); ok {
		return v.(*os.File), nil
	}

	v, err, _ := c.inoGroup.Do(fmt.Sprintf("%d/%d", root, ino), func() (interface{}, error) {
		f, rerr := c.resolveRootIno(ctx, root, ino)
		if rerr != nil {
			if nonFatal(rerr) {
				log.LogDebugf("fdcache: resolve (%d,%d): %v", root, ino, rerr)
				return (*os.File)(nil), nil
			}
			return nil, rerr
		}
		c.inoCache.Add(key, f)
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	f, _ := v.(*os.File)
	return f, nil
}

// resolveRoot walks the root-tree backref chain: fs-tree root returns
// the mount FD directly; otherwise every candidate backref is tried
// in turn until one opens and verifies.
func (c *Cache) resolveRoot(ctx context.Context, root uint64) (*os.File, error) {
	if root == fsapi.FirstFreeObjectID {
		return c.backend.MountFd(), nil
	}

	backrefs, err := c.backend.RootBackrefs(ctx, root)
	if err != nil {
		return nil, err
	}
	if len(backrefs) == 0 {
		return nil, ErrMissingPath
	}

	var lastErr error = ErrMissingPath
	for _, br := range backrefs {
		parent, perr := c.OpenRoot(ctx, br.ParentRoot)
		if perr != nil {
			lastErr = perr
			continue
		}
		if parent == nil {
			lastErr = ErrMissingPath
			continue
		}

		dirPath := parent.Name()
		if br.DirID != fsapi.FirstFreeObjectID {
			paths, ierr := c.backend.InodePath(ctx, br.ParentRoot, br.DirID)
			if ierr != nil || len(paths) == 0 {
				lastErr = ErrMissingPath
				continue
			}
			dirPath = paths[0]
		}

		full := filepath.Join(dirPath, br.Name)
		f, oerr := c.backend.Open(full, false)
		if oerr != nil {
			lastErr = fmt.Errorf("%w: %v", ErrOpenFailed, oerr)
			continue
		}
		st, serr := c.backend.Stat(f)
		if serr != nil {
			f.Close()
			lastErr = serr
			continue
		}
		if st.Root != root {
			f.Close()
			lastErr = ErrWrongRoot
			continue
		}
		if st.Ino != fsapi.FirstFreeObjectID {
			f.Close()
			lastErr = ErrWrongInode
			continue
		}
		return f, nil
	}
	return nil, lastErr
}

// resolveRootIno opens (root, ino) via inode-path lookup, rejecting
// mismatches on inode, root, device, and the no-cow attribute.
func (c *Cache) resolveRootIno(ctx context.Context, root, ino uint64) (*os.File, error) {
	paths, err := c.backend.InodePath(ctx, root, ino)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrMissingPath
	}

	var lastErr error = ErrMissingPath
	for _, p := range paths {
		f, oerr := c.backend.Open(p, true)
		if oerr != nil {
			lastErr = fmt.Errorf("%w: %v", ErrOpenFailed, oerr)
			continue
		}
		st, serr := c.backend.Stat(f)
		if serr != nil {
			f.Close()
			lastErr = serr
			continue
		}
		if st.Ino != ino {
			f.Close()
			lastErr = ErrWrongInode
			continue
		}
		if st.Root != root {
			f.Close()
			lastErr = ErrWrongRoot
			continue
		}
		if st.Dev != c.expectedDev {
			f.Close()
			lastErr = ErrWrongDevice
			continue
		}
		if st.NoCOW {
			f.Close()
			lastErr = ErrWrongAttribute
			continue
		}
		return f, nil
	}
	return nil, lastErr
}
