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

// Package schedule implements the four pluggable scan-order policies
// (C4): each decides which subvolume's next extent is scanned next,
// given per-subvolume look-ahead state.
package schedule

import (
	"context"

	"github.com/extentwalk/crawld/crawl"
)

// Policy is the shared contract every scan-order strategy implements.
// A policy holds private ordered state rebuilt from scratch on every
// NextTransid call; Scan pops at most one range from one crawler.
type Policy interface {
	// Scan pops at most one range from one crawler and dispatches it
	// via crawlBatch, returning true if a pop happened. It returns
	// false only after every crawler has been tried once for this
	// tick.
	Scan(ctx context.Context, crawlBatch func(*crawl.Crawler) bool) (bool, error)

	// NextTransid rebuilds the ordered view from the current crawler
	// map. Crawlers whose look-ahead cannot be populated are omitted.
	NextTransid(ctx context.Context, crawlers map[uint64]*crawl.Crawler)

	Name() string
}
