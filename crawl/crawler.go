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

// Package crawl implements the per-subvolume lazy cursor (C2): a
// look-ahead slot over the extent-data item stream of one subvolume,
// advancing on pop and refilling one window at a time.
package crawl

import (
	"context"
	"sync"
	"time"

	"github.com/extentwalk/crawld/fsapi"
	"github.com/extentwalk/crawld/progress"
	"github.com/extentwalk/crawld/proto"
	"github.com/extentwalk/crawld/util/log"
)

// TransidSource supplies the filesystem-wide current max generation,
// used to open a new scan window when the current one is exhausted.
type TransidSource interface {
	TransidMax() uint64
}

// Crawler is one subvolume's lazy cursor. All operations are
// serialised by mu; peek and pop never overlap.
type Crawler struct {
	mu sync.Mutex

	backend fsapi.Backend
	transid TransidSource
	tracker *progress.Tracker

	state    proto.CrawlState
	lookahead *proto.ExtentItem

	deferredFlag bool
	finished     bool

	readOnly       bool
	sendWorkaround bool
}

// New creates a crawler for state's subvolume. readOnly and
// sendWorkaround together select the read-only send-compatibility
// fast path of fetchExtents.
func New(state proto.CrawlState, backend fsapi.Backend, transid TransidSource, tracker *progress.Tracker, readOnly, sendWorkaround bool) *Crawler {
	return &Crawler{
		backend:        backend,
		transid:        transid,
		tracker:        tracker,
		state:          state,
		readOnly:       readOnly,
		sendWorkaround: sendWorkaround,
	}
}

// State returns a snapshot of the current end-cursor.
func (c *Crawler) State() proto.CrawlState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState overwrites the end-cursor.
func (c *Crawler) SetState(s proto.CrawlState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// SetDeferred sets or clears the defer flag: while deferred, the
// crawler is skipped until the next transid cycle clears it.
func (c *Crawler) SetDeferred(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deferredFlag = v
}

// Deferred reports the current defer flag.
func (c *Crawler) Deferred() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deferredFlag
}

// ReadOnly reports the crawler's current read-only flag.
func (c *Crawler) ReadOnly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readOnly
}

// SetReadOnly updates the crawler's read-only flag, refreshed by
// membership sync each transid cycle.
func (c *Crawler) SetReadOnly(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readOnly = v
}

// HoldState delegates to the progress tracker for s.
func (c *Crawler) HoldState(s proto.CrawlState) progress.Token {
	return c.tracker.Hold(s)
}

// PeekFront populates the look-ahead if absent and returns the range
// it covers without advancing.
func (c *Crawler) PeekFront(ctx context.Context) (*proto.ExtentItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fillLookahead(ctx)
}

// PopFront populates the look-ahead if absent, returns it, and clears
// the slot so the next peek/pop re-fetches.
func (c *Crawler) PopFront(ctx context.Context) (*proto.ExtentItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, err := c.fillLookahead(ctx)
	if err != nil || item == nil {
		return nil, err
	}
	c.lookahead = nil
	c.state.ObjectID = item.ObjectID + 1
	c.state.Offset = 0
	return item, nil
}

// fillLookahead runs fetchExtents if the slot is empty. Caller holds mu.
func (c *Crawler) fillLookahead(ctx context.Context) (*proto.ExtentItem, error) {
	if c.lookahead != nil {
		return c.lookahead, nil
	}
	item, err := c.fetchExtents(ctx)
	if err != nil {
		return nil, err
	}
	c.lookahead = item
	return item, nil
}

// fetchExtents implements the three fast paths plus the main
// tree-search path. Caller holds mu.
func (c *Crawler) fetchExtents(ctx context.Context) (*proto.ExtentItem, error) {
	if c.deferredFlag {
		return nil, nil
	}

	if c.state.MaxTransid <= c.state.MinTransid || c.finished {
		if !c.openNextWindow() {
			c.finished = true
			c.deferredFlag = true
			return nil, nil
		}
	}

	if c.readOnly && c.sendWorkaround {
		if c.state.ObjectID == 0 {
			// Track max_transid even though we never scan: if this root
			// is later made read-write it should not trigger an
			// expensive from-scratch search over ancient transids.
			// max_transid must never move backwards.
			if next := c.transid.TransidMax(); next > c.state.MaxTransid {
				c.state.MaxTransid = next
			}
			c.state.Started = uint64(time.Now().Unix())
		}
		c.deferredFlag = true
		return nil, nil
	}

	items, err := c.backend.TreeSearch(ctx, fsapi.TreeSearchRequest{
		Root:        c.state.Root,
		ObjectIDMin: c.state.ObjectID,
		Type:        fsapi.ItemExtentData,
		MinTransid:  c.state.MinTransid,
	})
	if err != nil {
		log.LogWarnf("crawl: tree-search root %#x: %v", c.state.Root, err)
		c.deferredFlag = true
		return nil, nil
	}
	if len(items) == 0 {
		if !c.openNextWindow() {
			c.finished = true
			c.deferredFlag = true
		}
		return nil, nil
	}

	item := items[0]
	c.state.ObjectID = item.ObjectID + 1
	c.state.Offset = 0
	return &item, nil
}

// openNextWindow slides the scan window forward: min <- old max,
// max <- new global transid_max, cursor reset to (0, 0). Returns
// false if no new window is available yet (max_transid unchanged).
func (c *Crawler) openNextWindow() bool {
	newMax := c.transid.TransidMax()
	if newMax <= c.state.MaxTransid {
		return false
	}
	c.state.MinTransid = c.state.MaxTransid
	c.state.MaxTransid = newMax
	c.state.ObjectID = 0
	c.state.Offset = 0
	c.finished = false
	return true
}
