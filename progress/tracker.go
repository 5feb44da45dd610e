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

// Package progress implements the totally-ordered progress cursor
// with hold tokens (C3): the persist point stays safe even when
// worker tasks complete out of order, because a worker holds its
// token across the whole dedupe call.
package progress

import (
	"sync"

	"github.com/google/btree"

	"github.com/extentwalk/crawld/proto"
)

const treeDegree = 32

// heldItem is one live hold token's btree entry. seq breaks ties
// between tokens holding an equal CrawlState so the multiset can
// contain duplicates; Compare on state alone still determines begin().
type heldItem struct {
	state proto.CrawlState
	seq   uint64
}

func (h heldItem) Less(other btree.Item) bool {
	o := other.(heldItem)
	if c := h.state.Compare(o.state); c != 0 {
		return c < 0
	}
	return h.seq < o.seq
}

// Token is an opaque handle returned by Hold. It must be released
// exactly once, explicitly — this environment is garbage collected,
// so nothing releases it for the caller.
type Token struct {
	item heldItem
}

// Tracker is a per-subvolume progress cursor. All operations run
// under a single mutex; no suspension occurs while holding it.
type Tracker struct {
	mu   sync.Mutex
	held *btree.BTree
	last proto.CrawlState
	seq  uint64
}

// NewTracker creates an empty tracker; its initial end() is the zero
// CrawlState.
func NewTracker() *Tracker {
	return &Tracker{held: btree.New(treeDegree)}
}

// Hold records s as an outstanding hold and returns a token that must
// later be released. Hold also advances end() to s, matching set_state
// semantics for the common case where holding and advancing coincide.
func (t *Tracker) Hold(s proto.CrawlState) Token {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	item := heldItem{state: s, seq: t.seq}
	t.held.ReplaceOrInsert(item)
	t.last = s
	return Token{item: item}
}

// Release retires tok. Releasing a non-minimum token does not move
// begin().
func (t *Tracker) Release(tok Token) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.held.Delete(tok.item)
}

// SetEnd advances the leading edge without creating a hold, used when
// a crawler's cursor moves but no worker needs a token for it (e.g.
// jumping the sentinel objectid after a scheduler pop).
func (t *Tracker) SetEnd(s proto.CrawlState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = s
}

// Begin returns the minimum held state, or End() if nothing is held.
func (t *Tracker) Begin() proto.CrawlState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if min := t.held.Min(); min != nil {
		return min.(heldItem).state
	}
	return t.last
}

// End returns the most recently set/held state.
func (t *Tracker) End() proto.CrawlState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
