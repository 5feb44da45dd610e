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

// Package roots implements the roots coordinator (C5): it owns the
// crawler map, drives the transid watcher and writeback loops, tracks
// subvolume membership, and dispatches FileCrawl workers.
package roots

import (
	"time"

	"github.com/extentwalk/crawld/util/routinepool"
)

// Config carries every roots-level tunable. Zero values are filled in
// by setDefaults.
type Config struct {
	// StateDir holds the beescrawl.dat checkpoint.
	StateDir string
	// Policy is one of LOCKSTEP, INDEPENDENT, SEQUENTIAL, RECENT.
	Policy string
	// Workers bounds the FileCrawl worker pool.
	Workers int
	// TransidPollFloor floors the transid watcher's poll interval.
	TransidPollFloor time.Duration
	// WritebackInterval is the writeback loop's tick period.
	WritebackInterval time.Duration
	// SendWorkaround enables the read-only send-compatibility fast
	// path: read-only subvolumes are never popped, only tracked.
	SendWorkaround bool
	// RootFDCacheSize and InoFDCacheSize bound fdcache's two LRUs.
	RootFDCacheSize int
	InoFDCacheSize  int
	// ExtentBlockSize is the filesystem block size used to advance a
	// FileCrawl's cursor past a processed extent.
	ExtentBlockSize uint64
}

func (cfg *Config) setDefaults() {
	if cfg.Policy == "" {
		cfg.Policy = "LOCKSTEP"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = routinepool.DefaultMaxRoutineNum
	}
	if cfg.TransidPollFloor <= 0 {
		cfg.TransidPollFloor = time.Second
	}
	if cfg.WritebackInterval <= 0 {
		cfg.WritebackInterval = 15 * time.Second
	}
	if cfg.RootFDCacheSize <= 0 {
		cfg.RootFDCacheSize = 1024
	}
	if cfg.InoFDCacheSize <= 0 {
		cfg.InoFDCacheSize = 4096
	}
	if cfg.ExtentBlockSize == 0 {
		cfg.ExtentBlockSize = 4096
	}
}
