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

// Package dedupe defines the downstream contracts a FileCrawl worker
// calls into once it has a dedupe-candidate range, plus reference
// implementations usable in tests and as a starting point for a real
// clone-range backend.
package dedupe

import (
	"context"

	"github.com/extentwalk/crawld/proto"
)

// Deduper makes a candidate range's bytes physically shared with an
// already-scanned copy, or reports that it could not (yet).
// ScanForward returns retry=true when the caller should re-offer the
// same range later without moving its progress cursor forward.
type Deduper interface {
	ScanForward(ctx context.Context, r proto.FileRange) (retry bool, err error)
}

// InodeMutexRegistry hands out a non-blocking, per-inode exclusion
// lock: at most one FileCrawl may hold a given inode's lock at a time.
type InodeMutexRegistry interface {
	// TryLock attempts to acquire ino's lock. On success it returns a
	// non-nil unlock func the caller must invoke exactly once; on
	// failure it returns ok=false without side effects.
	TryLock(ino uint64) (unlock func(), ok bool)
}

// Blacklist reports whether a file has been excluded from dedupe
// consideration, typically because backref resolution against it was
// observed to be pathologically slow (a "toxic" extent).
type Blacklist interface {
	IsBlacklisted(id proto.FileID) bool
}
