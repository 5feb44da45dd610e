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
	"sync"

	"github.com/google/btree"

	"github.com/extentwalk/crawld/crawl"
)

// recentBucket groups every crawler whose min_transid is currently
// equal; within a bucket crawlers form a FIFO. The sort key is
// hard-coded (min_transid, 0) per an unresolved upstream question
// about whether the second component should track max_transid instead
// — preserved verbatim rather than "fixed".
type recentBucket struct {
	minTransid uint64
	queue      []*crawl.Crawler
}

// Less sorts buckets by descending min_transid: the most recently
// advanced subvolumes are visited first.
func (b *recentBucket) Less(other btree.Item) bool {
	return b.minTransid > other.(*recentBucket).minTransid
}

// Recent prefers recently-advanced (high min_transid) subvolumes so
// new data is deduped before it accumulates behind a large
// first-scan backlog.
type Recent struct {
	mu   sync.Mutex
	tree *btree.BTree
}

func NewRecent() *Recent { return &Recent{tree: btree.New(32)} }

func (p *Recent) Name() string { return "RECENT" }

func (p *Recent) NextTransid(ctx context.Context, crawlers map[uint64]*crawl.Crawler) {
	tree := btree.New(32)
	for _, c := range crawlers {
		item, err := c.PeekFront(ctx)
		if err != nil || item == nil {
			continue
		}
		key := c.State().MinTransid
		probe := &recentBucket{minTransid: key}
		if existing := tree.Get(probe); existing != nil {
			b := existing.(*recentBucket)
			b.queue = append(b.queue, c)
		} else {
			tree.ReplaceOrInsert(&recentBucket{minTransid: key, queue: []*crawl.Crawler{c}})
		}
	}

	p.mu.Lock()
	p.tree = tree
	p.mu.Unlock()
}

func (p *Recent) Scan(ctx context.Context, crawlBatch func(*crawl.Crawler) bool) (bool, error) {
	p.mu.Lock()
	var buckets []*recentBucket
	p.tree.Ascend(func(i btree.Item) bool {
		buckets = append(buckets, i.(*recentBucket))
		return true
	})
	p.mu.Unlock()

	for _, b := range buckets {
		p.mu.Lock()
		queue := append([]*crawl.Crawler(nil), b.queue...)
		p.mu.Unlock()

		for _, c := range queue {
			if !crawlBatch(c) {
				continue
			}
			p.advance(b, c, ctx)
			return true, nil
		}
	}
	return false, nil
}

// advance pushes c to the back of its bucket's FIFO on continued
// look-ahead, or drops it (and the bucket, once empty) otherwise.
func (p *Recent) advance(b *recentBucket, c *crawl.Crawler, ctx context.Context) {
	item, err := c.PeekFront(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	filtered := b.queue[:0:0]
	for _, e := range b.queue {
		if e == c {
			continue
		}
		filtered = append(filtered, e)
	}
	b.queue = filtered

	if err == nil && item != nil {
		b.queue = append(b.queue, c)
	}

	if len(b.queue) == 0 {
		p.tree.Delete(b)
	}
}
