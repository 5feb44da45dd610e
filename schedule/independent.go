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

// Independent visits crawlers in a plain FIFO order, trading hash-index
// hit rate for contention-free forward progress.
type Independent struct {
	mu    sync.Mutex
	queue []*crawl.Crawler
}

func NewIndependent() *Independent { return &Independent{} }

func (p *Independent) Name() string { return "INDEPENDENT" }

func (p *Independent) NextTransid(ctx context.Context, crawlers map[uint64]*crawl.Crawler) {
	var queue []*crawl.Crawler
	for _, c := range crawlers {
		item, err := c.PeekFront(ctx)
		if err != nil || item == nil {
			continue
		}
		queue = append(queue, c)
	}
	// deterministic starting order; subsequent pops reorder via FIFO.
	sort.Slice(queue, func(i, j int) bool { return queue[i].State().Root < queue[j].State().Root })

	p.mu.Lock()
	p.queue = queue
	p.mu.Unlock()
}

func (p *Independent) Scan(ctx context.Context, crawlBatch func(*crawl.Crawler) bool) (bool, error) {
	p.mu.Lock()
	snapshot := append([]*crawl.Crawler(nil), p.queue...)
	p.mu.Unlock()

	for _, c := range snapshot {
		if !crawlBatch(c) {
			continue
		}
		p.advance(c, ctx)
		return true, nil
	}
	return false, nil
}

func (p *Independent) advance(c *crawl.Crawler, ctx context.Context) {
	item, err := c.PeekFront(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	filtered := p.queue[:0:0]
	for _, e := range p.queue {
		if e == c {
			continue
		}
		filtered = append(filtered, e)
	}
	p.queue = filtered

	if err == nil && item != nil {
		p.queue = append(p.queue, c) // push to back
	}
}
