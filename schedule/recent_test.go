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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/extentwalk/crawld/crawl"
	"github.com/extentwalk/crawld/fsapi/fake"
	"github.com/extentwalk/crawld/progress"
	"github.com/extentwalk/crawld/proto"
)

func TestRecentPrefersHigherMinTransid(t *testing.T) {
	b, err := fake.New(t.TempDir())
	require.NoError(t, err)
	b.AddSubvolume(&fake.Subvolume{Root: 256, Items: []proto.ExtentItem{
		{ObjectID: 1, Generation: 5, Kind: proto.ExtentRegular, LogicalBytes: 4096},
		{ObjectID: 2, Generation: 5, Kind: proto.ExtentRegular, LogicalBytes: 4096},
	}})
	b.AddSubvolume(&fake.Subvolume{Root: 257, Items: []proto.ExtentItem{
		{ObjectID: 1, Generation: 8, Kind: proto.ExtentRegular, LogicalBytes: 4096},
	}})
	ts := &fakeTransid{v: 10}
	crawlers := map[uint64]*crawl.Crawler{
		256: crawl.New(proto.CrawlState{Root: 256, MinTransid: 5, MaxTransid: 10}, b, ts, progress.NewTracker(), false, false),
		257: crawl.New(proto.CrawlState{Root: 257, MinTransid: 8, MaxTransid: 10}, b, ts, progress.NewTracker(), false, false),
	}

	order := popAll(t, context.Background(), NewRecent(), crawlers)
	require.Len(t, order, 3)
	require.EqualValues(t, 257, order[0].root, "higher min_transid subvolume goes first")
	require.EqualValues(t, 256, order[1].root)
	require.EqualValues(t, 256, order[2].root)
}

func TestRecentPopsEmptyBucket(t *testing.T) {
	b, err := fake.New(t.TempDir())
	require.NoError(t, err)
	b.AddSubvolume(&fake.Subvolume{Root: 256})
	ts := &fakeTransid{v: 10}
	crawlers := map[uint64]*crawl.Crawler{256: newCrawler(t, b, 256, ts, 10)}

	p := NewRecent()
	p.NextTransid(context.Background(), crawlers)
	progressed, err := p.Scan(context.Background(), func(c *crawl.Crawler) bool {
		t.Fatal("crawlBatch should not be invoked with no look-ahead")
		return false
	})
	require.NoError(t, err)
	require.False(t, progressed)
}
