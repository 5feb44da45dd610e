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

package roots

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/extentwalk/crawld/fsapi"
	"github.com/extentwalk/crawld/progress"
	"github.com/extentwalk/crawld/proto"
	"github.com/extentwalk/crawld/util/log"
)

// FileCrawl walks one inode's extent-data items one at a time. Instead
// of recursing, run re-submits itself to the worker pool between
// extents so a very large file never grows a deep call stack and never
// occupies a worker slot while waiting for the next tree-search.
type FileCrawl struct {
	id      string
	coord   *Coordinator
	tracker *progress.Tracker

	root uint64
	ino  uint64

	// window carries the fixed (root, min_transid, max_transid) this
	// walk was popped under; only ObjectID/Offset move as hold tokens
	// advance.
	window proto.CrawlState
	cursor uint64
	hold   progress.Token
}

// run processes exactly one extent-data item and, if the inode has
// more, re-submits itself to the pool rather than looping in place.
func (f *FileCrawl) run() {
	cont, err := f.crawlOneExtent(context.Background())
	if err != nil {
		log.LogWarnf("roots: file_crawl[%s] root %#x ino %#x: %v", f.id, f.root, f.ino, err)
		cont = false
	}
	if !cont {
		f.tracker.Release(f.hold)
		return
	}
	if _, err := f.coord.pool.Submit(f.run); err != nil {
		log.LogWarnf("roots: file_crawl[%s] re-submit root %#x ino %#x: %v", f.id, f.root, f.ino, err)
		f.tracker.Release(f.hold)
	}
}

// crawlOneExtent tries the inode mutex fresh on every call — it is
// held only for the duration of this one extent, including the
// downstream ScanForward call, never across the whole file. A failed
// try-lock ends this walk: run releases its hold, and the rest of the
// inode is not re-offered in this window, since the crawler's cursor
// has already moved past it. Nothing re-queues the walk when the lock
// is released.
func (f *FileCrawl) crawlOneExtent(ctx context.Context) (bool, error) {
	unlock, ok := f.coord.inodeLocks.TryLock(f.ino)
	if !ok {
		return false, nil
	}
	defer unlock()

	items, err := f.coord.backend.TreeSearch(ctx, fsapi.TreeSearchRequest{
		Root:        f.root,
		ObjectIDMin: f.ino,
		ObjectIDMax: f.ino,
		OffsetMin:   f.cursor,
		Type:        fsapi.ItemExtentData,
		MinTransid:  f.window.MinTransid,
	})
	if err != nil {
		return false, fmt.Errorf("tree-search: %w", err)
	}
	if len(items) == 0 {
		return false, nil
	}
	item := items[0]

	next := item.Offset + f.coord.cfg.ExtentBlockSize
	if next <= item.Offset {
		next = item.Offset // overflow guard; never happens with a real block size
	}
	f.cursor = next

	if item.Generation < f.window.MinTransid || item.Generation >= f.window.MaxTransid {
		return true, nil
	}

	switch item.Kind {
	case proto.ExtentInline, proto.ExtentOther:
		return true, nil
	case proto.ExtentPrealloc, proto.ExtentRegular:
		if item.PhysBytenr == 0 {
			return true, nil // hole
		}
		id := proto.FileID{Root: f.root, Ino: f.ino}
		if f.coord.blacklist.IsBlacklisted(id) {
			return true, nil
		}

		rng := proto.FileRange{Root: f.root, Ino: f.ino, Begin: item.Offset, End: item.Offset + item.LogicalBytes}
		if !rng.Valid() {
			return true, nil
		}

		retry, serr := f.coord.deduper.ScanForward(ctx, rng)
		if serr != nil {
			log.LogWarnf("roots: file_crawl[%s] scan_forward %s: %v", f.id, rng, serr)
		}
		log.LogDebugf("roots: file_crawl[%s] scanned %s (%s), retry=%v", f.id, rng, humanize.Bytes(item.LogicalBytes), retry)

		if !retry {
			bcs := f.window
			bcs.ObjectID = f.ino
			bcs.Offset = rng.Begin
			newHold := f.tracker.Hold(bcs)
			f.tracker.Release(f.hold)
			f.hold = newHold
		}
		return true, nil
	default:
		return true, nil
	}
}
