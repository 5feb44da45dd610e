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

package progress

import (
	"bufio"
	"fmt"
	"io"

	"github.com/extentwalk/crawld/proto"
	"github.com/extentwalk/crawld/util/log"
)

// StateFileName is the fixed literal name of the on-disk checkpoint,
// relative to the daemon's state directory.
const StateFileName = "beescrawl.dat"

// SaveState writes one record per state, in order, skipping any state
// whose MaxTransid is zero (never scanned).
func SaveState(w io.Writer, states []proto.CrawlState) error {
	bw := bufio.NewWriter(w)
	for _, s := range states {
		if s.MaxTransid == 0 {
			continue
		}
		if _, err := fmt.Fprintln(bw, s.MarshalRecord()); err != nil {
			return fmt.Errorf("progress: write state record: %w", err)
		}
	}
	return bw.Flush()
}

// LoadState parses every non-blank line as a CrawlState record.
// repaired is the count of records that required sentinel repair.
// Malformed lines are logged and skipped rather than aborting the
// whole load — a single corrupt line should not lose every other
// subvolume's progress.
func LoadState(r io.Reader) (states []proto.CrawlState, repaired int, err error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		s, wasRepaired, perr := proto.ParseCrawlStateRecord(line)
		if perr != nil {
			log.LogWarnf("progress: skipping malformed state record: %v", perr)
			continue
		}
		if s == (proto.CrawlState{}) {
			continue // blank line
		}
		if wasRepaired {
			repaired++
			log.LogWarnf("progress: repaired sentinel transid in state record for root %#x", s.Root)
		}
		states = append(states, s)
	}
	if err = sc.Err(); err != nil {
		return nil, repaired, fmt.Errorf("progress: read state file: %w", err)
	}
	return states, repaired, nil
}
