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

// Package proto defines the data model shared by every crawl-and-scan
// component: crawl cursors, file ranges, and decoded tree-search items.
package proto

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SentinelObjectID is nudged onto a crawler's end-cursor after a
// scheduler pop so the same inode is not re-scheduled while its
// worker walks it internally.
const SentinelObjectID = ^uint64(0) - 65536

// CrawlState is the per-subvolume progress cursor. Its zero value is
// the state of a subvolume that has never been scanned.
type CrawlState struct {
	Root       uint64
	ObjectID   uint64
	Offset     uint64
	MinTransid uint64
	MaxTransid uint64
	Started    uint64
}

// Compare implements the total order (min_transid, max_transid,
// objectid, offset, root). It returns <0, 0, or >0 the way
// bytes.Compare does.
func (s CrawlState) Compare(o CrawlState) int {
	switch {
	case s.MinTransid != o.MinTransid:
		return cmpUint64(s.MinTransid, o.MinTransid)
	case s.MaxTransid != o.MaxTransid:
		return cmpUint64(s.MaxTransid, o.MaxTransid)
	case s.ObjectID != o.ObjectID:
		return cmpUint64(s.ObjectID, o.ObjectID)
	case s.Offset != o.Offset:
		return cmpUint64(s.Offset, o.Offset)
	default:
		return cmpUint64(s.Root, o.Root)
	}
}

// Less reports whether s sorts strictly before o under Compare, the
// shape google/btree.Item wants.
func (s CrawlState) Less(o CrawlState) bool {
	return s.Compare(o) < 0
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String reproduces the informational rendering the original C++
// operator<< produces for a crawl state: root/objectid/offset in hex,
// the transid window, and age since the window started.
func (s CrawlState) String() string {
	age := time.Duration(0)
	if s.Started != 0 {
		age = time.Since(time.Unix(int64(s.Started), 0))
	}
	return fmt.Sprintf("root %#x objectid %#x offset %#x transid [%#x,%#x) age %s",
		s.Root, s.ObjectID, s.Offset, s.MinTransid, s.MaxTransid, age.Truncate(time.Second))
}

const startTsFormat = "2006-01-02-15-04-05"

// MarshalRecord renders s as one line of the beescrawl.dat grammar.
// Records with MaxTransid == 0 are the caller's responsibility to
// omit; MarshalRecord always emits a full line.
func (s CrawlState) MarshalRecord() string {
	startTs := time.Unix(int64(s.Started), 0).UTC().Format(startTsFormat)
	return fmt.Sprintf("root %x objectid %x offset %x min_transid %x max_transid %x started %x start_ts %s",
		s.Root, s.ObjectID, s.Offset, s.MinTransid, s.MaxTransid, s.Started, startTs)
}

// legacy key aliases accepted on read.
var keyAliases = map[string]string{
	"gen_current": "min_transid",
	"gen_next":    "max_transid",
}

// ParseCrawlStateRecord parses one whitespace-keyed record line.
// repaired reports whether a sentinel u64::MAX value was found and
// reset (MinTransid -> 0, MaxTransid -> MinTransid).
func ParseCrawlStateRecord(line string) (s CrawlState, repaired bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return CrawlState{}, false, nil
	}
	if len(fields)%2 != 0 {
		return CrawlState{}, false, fmt.Errorf("proto: malformed record %q: odd field count", line)
	}

	seen := map[string]uint64{}
	for i := 0; i < len(fields); i += 2 {
		key := fields[i]
		if alias, ok := keyAliases[key]; ok {
			key = alias
		}
		if key == "start_ts" {
			// advisory only; value has no '_' separators to worry about
			continue
		}
		val, perr := strconv.ParseUint(fields[i+1], 16, 64)
		if perr != nil {
			return CrawlState{}, false, fmt.Errorf("proto: malformed record %q: field %s: %w", line, key, perr)
		}
		seen[key] = val
	}

	s = CrawlState{
		Root:       seen["root"],
		ObjectID:   seen["objectid"],
		Offset:     seen["offset"],
		MinTransid: seen["min_transid"],
		MaxTransid: seen["max_transid"],
		Started:    seen["started"],
	}

	const maxU64 = ^uint64(0)
	if s.MinTransid == maxU64 {
		s.MinTransid = 0
		repaired = true
	}
	if s.MaxTransid == maxU64 {
		s.MaxTransid = s.MinTransid
		repaired = true
	}
	return s, repaired, nil
}
