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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/time/rate"

	"github.com/extentwalk/crawld/cmd/common"
	"github.com/extentwalk/crawld/crawl"
	"github.com/extentwalk/crawld/dedupe"
	"github.com/extentwalk/crawld/fdcache"
	"github.com/extentwalk/crawld/fsapi"
	"github.com/extentwalk/crawld/progress"
	"github.com/extentwalk/crawld/proto"
	"github.com/extentwalk/crawld/schedule"
	"github.com/extentwalk/crawld/util/atomicutil"
	"github.com/extentwalk/crawld/util/config"
	"github.com/extentwalk/crawld/util/log"
	"github.com/extentwalk/crawld/util/routinepool"
)

// Coordinator is the roots coordinator (C5). It owns every subvolume's
// crawler and progress tracker, drives the transid watcher and
// writeback loops, and dispatches FileCrawl workers into a bounded
// pool. It implements cmd/common.Server so it plugs into the same
// start/shutdown/sync state machine every daemon component here uses.
type Coordinator struct {
	control common.Control

	cfg        Config
	backend    fsapi.Backend
	deduper    dedupe.Deduper
	inodeLocks dedupe.InodeMutexRegistry
	blacklist  dedupe.Blacklist

	fdc  *fdcache.Cache
	pool *routinepool.RoutinePool

	policy schedule.Policy

	mu       sync.Mutex
	crawlers map[uint64]*crawl.Crawler
	trackers map[uint64]*progress.Tracker

	transidMax     atomicutil.Uint64
	rate           rateEstimator
	watcherLimiter *rate.Limiter

	dirty atomicutil.Int64
	clean atomicutil.Int64

	stopScanC      chan struct{}
	stopWatcherC   chan struct{}
	stopWritebackC chan struct{}
	writebackDoneC chan struct{}
	loopsWg        sync.WaitGroup
}

// NewCoordinator builds a Coordinator. cfg is copied and defaulted;
// backend, deduper, inodeLocks, and blacklist are the collaborators a
// FileCrawl worker calls into for each candidate range it discovers.
func NewCoordinator(cfg Config, backend fsapi.Backend, deduper dedupe.Deduper, inodeLocks dedupe.InodeMutexRegistry, blacklist dedupe.Blacklist) (*Coordinator, error) {
	cfg.setDefaults()

	policy, err := policyByName(cfg.Policy)
	if err != nil {
		return nil, err
	}

	fdc, err := fdcache.New(backend, cfg.RootFDCacheSize, cfg.InoFDCacheSize)
	if err != nil {
		return nil, fmt.Errorf("roots: new fdcache: %w", err)
	}

	return &Coordinator{
		cfg:            cfg,
		backend:        backend,
		deduper:        deduper,
		inodeLocks:     inodeLocks,
		blacklist:      blacklist,
		fdc:            fdc,
		pool:           routinepool.NewRoutinePool(cfg.Workers),
		policy:         policy,
		crawlers:       make(map[uint64]*crawl.Crawler),
		trackers:       make(map[uint64]*progress.Tracker),
		watcherLimiter: rate.NewLimiter(rate.Every(cfg.TransidPollFloor), 1),
	}, nil
}

func policyByName(name string) (schedule.Policy, error) {
	switch name {
	case "LOCKSTEP":
		return schedule.NewLockstep(), nil
	case "INDEPENDENT":
		return schedule.NewIndependent(), nil
	case "SEQUENTIAL":
		return schedule.NewSequential(), nil
	case "RECENT":
		return schedule.NewRecent(), nil
	default:
		return nil, fmt.Errorf("roots: unknown scan policy %q", name)
	}
}

// Start implements common.Server, delegating the standby->running
// transition to control the way lcnode.Start does.
func (c *Coordinator) Start(cfg *config.Config) error {
	return c.control.Start(c, cfg, doStart)
}

// Shutdown implements common.Server.
func (c *Coordinator) Shutdown() {
	c.control.Shutdown(c, doShutdown)
}

// Sync implements common.Server, blocking until Shutdown completes.
func (c *Coordinator) Sync() {
	c.control.Sync()
}

// TransidMax implements crawl.TransidSource.
func (c *Coordinator) TransidMax() uint64 {
	return c.transidMax.Load()
}

func doStart(s common.Server, cfg *config.Config) error {
	c, ok := s.(*Coordinator)
	if !ok {
		return fmt.Errorf("roots: doStart: unexpected server type %T", s)
	}

	if err := os.MkdirAll(c.cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("roots: create state dir: %w", err)
	}
	if err := c.loadState(); err != nil {
		return err
	}
	ctx := context.Background()
	if err := c.sampleTransidMax(ctx); err != nil {
		return err
	}
	if err := c.refreshMembership(ctx); err != nil {
		return err
	}

	c.stopScanC = make(chan struct{})
	c.stopWatcherC = make(chan struct{})
	c.stopWritebackC = make(chan struct{})
	c.writebackDoneC = make(chan struct{})

	c.loopsWg.Add(2)
	go func() {
		defer c.loopsWg.Done()
		c.scanLoop()
	}()
	go func() {
		defer c.loopsWg.Done()
		c.transidWatcherLoop()
	}()
	go func() {
		defer close(c.writebackDoneC)
		c.writebackLoop()
	}()

	log.LogInfof("roots: started, policy=%s workers=%d state_dir=%s", c.cfg.Policy, c.cfg.Workers, c.cfg.StateDir)
	return nil
}

// doShutdown stops discovery and scanning first, drains every
// in-flight FileCrawl worker, and only then lets the writeback loop
// take its final flush — so the last beescrawl.dat write observes a
// fully quiesced set of trackers.
func doShutdown(s common.Server) {
	c, ok := s.(*Coordinator)
	if !ok {
		return
	}
	close(c.stopScanC)
	close(c.stopWatcherC)
	c.loopsWg.Wait()

	c.pool.WaitAndClose()

	close(c.stopWritebackC)
	<-c.writebackDoneC

	log.LogInfof("roots: shutdown complete")
}

func (c *Coordinator) scanLoop() {
	for {
		select {
		case <-c.stopScanC:
			return
		default:
		}

		popped, err := c.policy.Scan(context.Background(), c.crawlBatch)
		if err != nil {
			log.LogWarnf("roots: scan: %v", err)
		}
		if popped {
			continue
		}

		select {
		case <-c.stopScanC:
			return
		case <-clk.After(50 * time.Millisecond):
		}
	}
}

// crawlBatch is the roots-level half of one scheduler pop: it derives
// (subvolume, inode) from the popped range, spawns a FileCrawl worker
// bound to a fresh hold token, and nudges the crawler's own end-cursor
// so the scheduler does not immediately re-offer the same inode while
// the worker is still walking it.
func (c *Coordinator) crawlBatch(cr *crawl.Crawler) bool {
	ctx := context.Background()

	preState := cr.State()
	item, err := cr.PopFront(ctx)
	if err != nil {
		log.LogWarnf("roots: pop_front root %#x: %v", preState.Root, err)
		return false
	}
	if item == nil {
		return false
	}

	tracker := c.trackerFor(preState.Root)
	if tracker == nil {
		log.LogErrorf("roots: crawl_batch: no tracker for root %#x", preState.Root)
		return false
	}

	fc := &FileCrawl{
		id:      xid.New().String(),
		coord:   c,
		tracker: tracker,
		root:    preState.Root,
		ino:     item.ObjectID,
		window:  preState,
		cursor:  item.Offset,
		hold:    tracker.Hold(preState),
	}
	if _, err := c.pool.Submit(fc.run); err != nil {
		log.LogWarnf("roots: submit file_crawl root %#x ino %#x: %v", fc.root, fc.ino, err)
		tracker.Release(fc.hold)
		return false
	}

	// The same inode must not be handed out again until fc finishes
	// walking it; nudging the offset past every real byte offset keeps
	// it out of the next pop without disturbing objectid ordering.
	sentinel := cr.State()
	if sentinel.Offset < proto.SentinelObjectID {
		sentinel.Offset = proto.SentinelObjectID
	}
	cr.SetState(sentinel)

	c.dirty.Add(1)
	return true
}

func (c *Coordinator) trackerFor(root uint64) *progress.Tracker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trackers[root]
}

func (c *Coordinator) transidWatcherLoop() {
	for {
		interval := c.rate.PollInterval(c.cfg.TransidPollFloor)
		select {
		case <-c.stopWatcherC:
			return
		case <-clk.After(interval):
		}

		if err := c.watcherLimiter.Wait(context.Background()); err != nil {
			continue
		}
		if err := c.tick(context.Background()); err != nil {
			log.LogWarnf("roots: transid_watcher tick: %v", err)
		}
	}
}

func (c *Coordinator) tick(ctx context.Context) error {
	prev := c.TransidMax()
	if err := c.sampleTransidMax(ctx); err != nil {
		return err
	}
	if c.TransidMax() <= prev {
		return nil
	}
	c.rate.Observe()
	c.fdc.Clear()
	return c.refreshMembership(ctx)
}

func (c *Coordinator) sampleTransidMax(ctx context.Context) error {
	t, err := c.backend.TransidMaxNocache(ctx)
	if err != nil {
		return fmt.Errorf("roots: transid_max: %w", err)
	}
	c.transidMax.Store(t)
	return nil
}

func (c *Coordinator) writebackLoop() {
	ticker := clk.Ticker(c.cfg.WritebackInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.flushIfDirty()
		case <-c.stopWritebackC:
			if err := c.flush(); err != nil {
				log.LogErrorf("roots: final writeback: %v", err)
			}
			return
		}
	}
}

func (c *Coordinator) flushIfDirty() {
	dirty := c.dirty.Load()
	if dirty == c.clean.Load() {
		return
	}
	if err := c.flush(); err != nil {
		log.LogErrorf("roots: writeback: %v", err)
		return
	}
	c.clean.Store(dirty)
}

func (c *Coordinator) flush() error {
	states := c.snapshotBeginStates()
	path := filepath.Join(c.cfg.StateDir, progress.StateFileName)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("roots: open state tmp file: %w", err)
	}
	if err := progress.SaveState(f, states); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("roots: close state tmp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("roots: rename state file: %w", err)
	}

	log.LogInfof("roots: writeback: %d subvolume state(s) persisted, transid_min=%#x transid_max=%#x",
		len(states), c.transidMin(), c.TransidMax())
	return nil
}

func (c *Coordinator) snapshotBeginStates() []proto.CrawlState {
	c.mu.Lock()
	trackers := make([]*progress.Tracker, 0, len(c.trackers))
	for _, tr := range c.trackers {
		trackers = append(trackers, tr)
	}
	c.mu.Unlock()

	states := make([]proto.CrawlState, 0, len(trackers))
	for _, tr := range trackers {
		states = append(states, tr.Begin())
	}
	return states
}

func (c *Coordinator) loadState() error {
	path := filepath.Join(c.cfg.StateDir, progress.StateFileName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("roots: open state file: %w", err)
	}
	defer f.Close()

	states, repaired, err := progress.LoadState(f)
	if err != nil {
		return err
	}
	if repaired > 0 {
		log.LogWarnf("roots: repaired %d crawl state record(s) on load", repaired)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range states {
		readOnly, err := c.backend.IsReadOnly(s.Root)
		if err != nil {
			log.LogWarnf("roots: is_read_only root %#x during load: %v", s.Root, err)
			continue
		}
		tracker := progress.NewTracker()
		tracker.SetEnd(s)
		cr := crawl.New(s, c.backend, c, tracker, readOnly, c.cfg.SendWorkaround)
		c.crawlers[s.Root] = cr
		c.trackers[s.Root] = tracker
	}
	return nil
}
