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

type sequentialBucket struct {
	root uint64
	c    *crawl.Crawler
}

func (b *sequentialBucket) Less(other btree.Item) bool {
	return b.root < other.(*sequentialBucket).root
}

// Sequential completes one subvolume before moving to the next,
// worst-case for hash-index hit rate but simplest to reason about.
type Sequential struct {
	mu   sync.Mutex
	tree *btree.BTree
}

func NewSequential() *Sequential { return &Sequential{tree: btree.New(32)} }

func (p *Sequential) Name() string { return "SEQUENTIAL" }

func (p *Sequential) NextTransid(ctx context.Context, crawlers map[uint64]*crawl.Crawler) {
	tree := btree.New(32)
	for root, c := range crawlers {
		item, err := c.PeekFront(ctx)
		if err != nil || item == nil {
			continue
		}
		tree.ReplaceOrInsert(&sequentialBucket{root: root, c: c})
	}

	p.mu.Lock()
	p.tree = tree
	p.mu.Unlock()
}

func (p *Sequential) Scan(ctx context.Context, crawlBatch func(*crawl.Crawler) bool) (bool, error) {
	p.mu.Lock()
	var snapshot []*sequentialBucket
	p.tree.Ascend(func(i btree.Item) bool {
		snapshot = append(snapshot, i.(*sequentialBucket))
		return true
	})
	p.mu.Unlock()

	for _, b := range snapshot {
		if !crawlBatch(b.c) {
			continue
		}
		p.advance(b, ctx)
		return true, nil
	}
	return false, nil
}

// advance leaves the bucket in place on a successful pop; it is erased
// only once the crawler's look-ahead runs dry.
func (p *Sequential) advance(b *sequentialBucket, ctx context.Context) {
	item, err := b.c.PeekFront(ctx)
	if err == nil && item != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.tree.Delete(b)
}
