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

package roots

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/extentwalk/crawld/dedupe"
	"github.com/extentwalk/crawld/fsapi"
	"github.com/extentwalk/crawld/fsapi/fake"
	"github.com/extentwalk/crawld/proto"
	"github.com/extentwalk/crawld/util/config"
)

func newTestCoordinator(t *testing.T, backend fsapi.Backend, deduper dedupe.Deduper) (*Coordinator, string) {
	t.Helper()
	stateDir := t.TempDir()
	cfg := Config{
		StateDir:          stateDir,
		Policy:            "LOCKSTEP",
		Workers:           4,
		TransidPollFloor:  10 * time.Millisecond,
		WritebackInterval: 10 * time.Millisecond,
	}
	c, err := NewCoordinator(cfg, backend, deduper, dedupe.NewKeyedInodeLocks(), dedupe.NewMapBlacklist())
	require.NoError(t, err)
	return c, stateDir
}

func TestCoordinatorColdStartScansSingleSubvolume(t *testing.T) {
	dir := t.TempDir()
	backend, err := fake.New(dir)
	require.NoError(t, err)

	backend.AddSubvolume(&fake.Subvolume{
		Root: 257,
		Items: []proto.ExtentItem{
			{ObjectID: 300, Offset: 0, Kind: proto.ExtentRegular, PhysBytenr: 0x1000, LogicalBytes: 4096, Generation: 5},
		},
	})
	backend.SetTransidMax(10)

	c, _ := newTestCoordinator(t, backend, dedupe.NoopDeduper{})
	require.NoError(t, c.Start(config.LoadConfigString("{}")))
	defer c.Shutdown()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		tr := c.trackers[257]
		c.mu.Unlock()
		if tr == nil {
			return false
		}
		b := tr.Begin()
		return b.ObjectID == 300 && b.Offset == 0
	}, time.Second, time.Millisecond, "the sole extent should be scanned and its hold token advanced past it")
}

func TestCoordinatorRestartReloadsPersistedState(t *testing.T) {
	dir := t.TempDir()
	backend, err := fake.New(dir)
	require.NoError(t, err)
	backend.AddSubvolume(&fake.Subvolume{Root: 257})
	backend.SetTransidMax(20)

	c1, stateDir := newTestCoordinator(t, backend, dedupe.NoopDeduper{})
	require.NoError(t, c1.Start(config.LoadConfigString("{}")))

	seeded := proto.CrawlState{Root: 257, ObjectID: 42, MinTransid: 5, MaxTransid: 10}
	c1.mu.Lock()
	c1.trackers[257].SetEnd(seeded)
	c1.mu.Unlock()
	c1.dirty.Add(1)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(stateDir, "beescrawl.dat"))
		return err == nil
	}, time.Second, time.Millisecond)
	c1.Shutdown()

	cfg2 := Config{StateDir: stateDir, Policy: "LOCKSTEP", Workers: 4, TransidPollFloor: 10 * time.Millisecond, WritebackInterval: time.Hour}
	c2, err := NewCoordinator(cfg2, backend, dedupe.NoopDeduper{}, dedupe.NewKeyedInodeLocks(), dedupe.NewMapBlacklist())
	require.NoError(t, err)
	require.NoError(t, c2.Start(config.LoadConfigString("{}")))
	defer c2.Shutdown()

	c2.mu.Lock()
	got := c2.trackers[257].End()
	c2.mu.Unlock()
	require.Equal(t, seeded.ObjectID, got.ObjectID, "a restarted coordinator must resume from the persisted cursor, not from scratch")
}

func TestCoordinatorMembershipNeverEmptiesOnTransientEnumeration(t *testing.T) {
	dir := t.TempDir()
	backend, err := fake.New(dir)
	require.NoError(t, err)
	backend.AddSubvolume(&fake.Subvolume{Root: 257})
	backend.SetTransidMax(1)

	c, _ := newTestCoordinator(t, backend, dedupe.NoopDeduper{})
	require.NoError(t, c.refreshMembership(context.Background()))

	c.mu.Lock()
	_, tracked := c.crawlers[257]
	c.mu.Unlock()
	require.True(t, tracked)

	backend.RemoveSubvolume(257)
	require.NoError(t, c.refreshMembership(context.Background()))

	c.mu.Lock()
	_, stillTracked := c.crawlers[257]
	c.mu.Unlock()
	require.True(t, stillTracked, "the last tracked crawler must be retained even after its subvolume vanished")
}
