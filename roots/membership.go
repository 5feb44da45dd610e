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

	"github.com/extentwalk/crawld/crawl"
	"github.com/extentwalk/crawld/progress"
	"github.com/extentwalk/crawld/proto"
	"github.com/extentwalk/crawld/util/log"
)

// refreshMembership walks the fleet of subvolumes via NextRoot,
// inserting crawlers for new ones and refreshing the read-only flag on
// existing ones, then erases whichever tracked root no longer appears
// — unless the enumeration itself came back empty, in which case the
// existing set is presumed stale data rather than a real teardown of
// every subvolume at once. The last tracked crawler is never erased.
func (c *Coordinator) refreshMembership(ctx context.Context) error {
	min := c.transidMin()
	max := c.TransidMax()

	seen := make(map[uint64]bool)
	after := uint64(0)
	for {
		root, ok, err := c.backend.NextRoot(ctx, after)
		if err != nil {
			return fmt.Errorf("roots: next_root: %w", err)
		}
		if !ok {
			break
		}
		seen[root] = true
		c.insertRoot(root, min, max)
		after = root
	}

	c.mu.Lock()
	if len(seen) > 0 {
		for root := range c.crawlers {
			if seen[root] {
				continue
			}
			if len(c.crawlers) <= 1 {
				log.LogInfof("roots: subvolume root %#x vanished; retained as the last tracked entry", root)
				break
			}
			delete(c.crawlers, root)
			delete(c.trackers, root)
			c.dirty.Add(1)
			log.LogInfof("roots: subvolume root %#x vanished", root)
		}
	} else if len(c.crawlers) > 0 {
		log.LogWarnf("roots: next_root enumerated zero subvolumes; retaining %d tracked", len(c.crawlers))
	}

	crawlers := make(map[uint64]*crawl.Crawler, len(c.crawlers))
	for k, v := range c.crawlers {
		crawlers[k] = v
	}
	c.mu.Unlock()

	c.policy.NextTransid(ctx, crawlers)
	return nil
}

// insertRoot registers a newly discovered subvolume, or refreshes the
// read-only flag of one already tracked and clears its deferred flag
// so a crawler stuck at the end of its transid window gets another
// chance to open the next one on the following pop. min and max are
// the fleet's transidMin()/TransidMax() sampled once by the caller at
// the start of this refresh pass, not re-read per root.
func (c *Coordinator) insertRoot(root, min, max uint64) {
	readOnly, err := c.backend.IsReadOnly(root)
	if err != nil {
		log.LogWarnf("roots: is_read_only root %#x: %v", root, err)
		return
	}

	c.mu.Lock()
	if cr, ok := c.crawlers[root]; ok {
		c.mu.Unlock()
		cr.SetReadOnly(readOnly)
		cr.SetDeferred(false)
		return
	}
	c.mu.Unlock()

	tracker := progress.NewTracker()
	state := proto.CrawlState{Root: root, MinTransid: min, MaxTransid: max, Started: uint64(clk.Now().Unix())}
	cr := crawl.New(state, c.backend, c, tracker, readOnly, c.cfg.SendWorkaround)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.crawlers[root]; exists {
		return
	}
	c.crawlers[root] = cr
	c.trackers[root] = tracker
	c.dirty.Add(1)
	log.LogInfof("roots: discovered subvolume root %#x (read_only=%v)", root, readOnly)
}

// transidMin reports the smallest min_transid among writable
// subvolumes, the crawl-lag figure logged alongside every writeback.
// Read-only subvolumes parked by the send-compatibility workaround are
// excluded since they are never actually advanced by a worker.
func (c *Coordinator) transidMin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transidMinLocked()
}

func (c *Coordinator) transidMinLocked() uint64 {
	var (
		min   uint64
		found bool
	)
	for _, cr := range c.crawlers {
		if cr.ReadOnly() && c.cfg.SendWorkaround {
			continue
		}
		s := cr.State()
		if !found || s.MinTransid < min {
			min = s.MinTransid
			found = true
		}
	}
	if !found && len(c.crawlers) > 0 {
		log.LogErrorf("roots: transid_min: no writable subvolume among %d tracked", len(c.crawlers))
	}
	return min
}
