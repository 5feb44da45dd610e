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

// Package fsapi describes the upstream contracts the crawl-and-scan
// core is built on: tree-search, backref walks, inode-path lookup,
// and root enumeration. Production code wires these to real
// tree-search/clone-range ioctls; fsapi/fake provides an in-memory
// stand-in for tests.
package fsapi

import (
	"context"
	"os"

	"github.com/extentwalk/crawld/proto"
)

// ItemType selects which tree-search item kind a request targets.
type ItemType int

const (
	ItemExtentData ItemType = iota
	ItemRootBackref
)

// TreeSearchRequest describes a lower-bound tree-search: return items
// of Type in Root with objectid >= ObjectIDMin, filtered so that only
// items whose page generation is >= MinTransid are visited.
//
// ObjectIDMax and OffsetMin narrow the search to a single inode's
// extent-item walk (FileCrawl's crawlOneExtent): when ObjectIDMax is
// nonzero, only items with objectid <= ObjectIDMax are returned, and
// OffsetMin further requires offset >= OffsetMin. Both are zero-value
// no-ops for the crawler's per-window inode enumeration.
type TreeSearchRequest struct {
	Root        uint64
	ObjectIDMin uint64
	ObjectIDMax uint64
	OffsetMin   uint64
	Type        ItemType
	MinTransid  uint64
}

// RootBackref is one backref entry resolved for a subvolume: the
// parent it lives under, the directory inode inside that parent, and
// the directory entry name.
type RootBackref struct {
	ParentRoot uint64
	DirID      uint64
	Name       string
}

// FirstFreeObjectID is the inode number every subvolume root
// directory is assigned.
const FirstFreeObjectID = 256

// FileStat is the subset of filesystem-specific metadata the FD cache
// needs to validate a freshly opened file descriptor against the
// (root, ino) it was expected to resolve to.
type FileStat struct {
	Root  uint64
	Ino   uint64
	Dev   uint64
	NoCOW bool
}

// Backend is the full upstream contract. TreeSearch returns items in
// (objectid, type, offset) order and may return an empty slice.
type Backend interface {
	TreeSearch(ctx context.Context, req TreeSearchRequest) ([]proto.ExtentItem, error)
	RootBackrefs(ctx context.Context, root uint64) ([]RootBackref, error)
	InodePath(ctx context.Context, root, ino uint64) ([]string, error)
	Open(path string, readOnly bool) (*os.File, error)
	Stat(f *os.File) (FileStat, error)
	IsReadOnly(root uint64) (bool, error)

	// NextRoot returns the smallest root objectid strictly greater than
	// after, or ok == false when the fleet is exhausted. Calling with
	// after == 0 must yield the fs-tree root itself (it carries no
	// backref and must be seeded).
	NextRoot(ctx context.Context, after uint64) (root uint64, ok bool, err error)

	TransidMaxNocache(ctx context.Context) (uint64, error)
	MountFd() *os.File
}
