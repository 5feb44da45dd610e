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

package schedule

import (
	"context"
	"sort"
	"sync"

	"github.com/extentwalk/crawld/crawl"
)

type lockstepEntry struct {
	c    *crawl.Crawler
	ino  uint64
	off  uint64
	root uint64
}

func lockstepLess(a, b lockstepEntry) bool {
	if a.ino != b.ino {
		return a.ino < b.ino
	}
	if a.off != b.off {
		return a.off < b.off
	}
	return a.root < b.root
}

// Lockstep visits the same (ino, offset) across every subvolume in
// near-lockstep, maximising hash-index hit rate on snapshot-heavy
// filesystems with stable data.
type Lockstep struct {
	mu      sync.Mutex
	entries []lockstepEntry
}

func NewLockstep() *Lockstep { return &Lockstep{} }

func (p *Lockstep) Name() string { return "LOCKSTEP" }

func (p *Lockstep) NextTransid(ctx context.Context, crawlers map[uint64]*crawl.Crawler) {
	var entries []lockstepEntry
	for _, c := range crawlers {
		item, err := c.PeekFront(ctx)
		if err != nil || item == nil {
			continue
		}
		entries = append(entries, lockstepEntry{c: c, ino: item.ObjectID, off: item.Offset, root: c.State().Root})
	}
	sort.Slice(entries, func(i, j int) bool { return lockstepLess(entries[i], entries[j]) })

	p.mu.Lock()
	p.entries = entries
	p.mu.Unlock()
}

func (p *Lockstep) Scan(ctx context.Context, crawlBatch func(*crawl.Crawler) bool) (bool, error) {
	p.mu.Lock()
	snapshot := append([]lockstepEntry(nil), p.entries...)
	p.mu.Unlock()

	for _, e := range snapshot {
		if !crawlBatch(e.c) {
			continue
		}
		p.advance(e.c, ctx)
		return true, nil
	}
	return false, nil
}

// advance removes c's stale entry and, if it still has a look-ahead,
// reinserts it under the new key.
func (p *Lockstep) advance(c *crawl.Crawler, ctx context.Context) {
	item, err := c.PeekFront(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	filtered := p.entries[:0:0]
	for _, e := range p.entries {
		if e.c == c {
			continue
		}
		filtered = append(filtered, e)
	}
	p.entries = filtered

	if err == nil && item != nil {
		ne := lockstepEntry{c: c, ino: item.ObjectID, off: item.Offset, root: c.State().Root}
		idx := sort.Search(len(p.entries), func(j int) bool { return !lockstepLess(p.entries[j], ne) })
		p.entries = append(p.entries, lockstepEntry{})
		copy(p.entries[idx+1:], p.entries[idx:])
		p.entries[idx] = ne
	}
}
