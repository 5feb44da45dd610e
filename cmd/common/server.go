// Package common carries the state machine every long-running daemon
// component in crawld drives its lifecycle through. crawld runs a
// single Server per process (roots.Coordinator), so every transition
// is logged against that one instance rather than a fleet of named
// peers.
package common

import (
	"sync"
	"sync/atomic"

	"github.com/extentwalk/crawld/util/config"
	"github.com/extentwalk/crawld/util/log"
)

const (
	StateStandby uint32 = iota
	StateStart
	StateRunning
	StateShutdown
	StateStopped
)

var stateNames = [...]string{
	StateStandby:  "standby",
	StateStart:    "starting",
	StateRunning:  "running",
	StateShutdown: "shutting_down",
	StateStopped:  "stopped",
}

type Control struct {
	state uint32
	wg    sync.WaitGroup
}

type Server interface {
	Start(cfg *config.Config) error
	Shutdown()
	// Sync blocks the calling goroutine until this server has shut down.
	Sync()
}

type DoStartFunc func(s Server, cfg *config.Config) (err error)
type DoShutdownFunc func(s Server)

func (c *Control) Start(s Server, cfg *config.Config, do DoStartFunc) (err error) {
	if atomic.CompareAndSwapUint32(&c.state, StateStandby, StateStart) {
		defer func() {
			var newState uint32
			if err != nil {
				newState = StateStandby
				log.LogWarnf("common: %T failed to start: %v", s, err)
			} else {
				newState = StateRunning
				log.LogInfof("common: %T is now %s", s, stateNames[newState])
			}
			atomic.StoreUint32(&c.state, newState)
		}()
		if err = do(s, cfg); err != nil {
			return
		}
		c.wg.Add(1)
	}
	return

}

func (c *Control) Shutdown(s Server, do DoShutdownFunc) {
	if atomic.CompareAndSwapUint32(&c.state, StateRunning, StateShutdown) {
		do(s)
		c.wg.Done()
		atomic.StoreUint32(&c.state, StateStopped)
		log.LogInfof("common: %T is now %s", s, stateNames[StateStopped])
	}

}

func (c *Control) Sync() {
	if atomic.LoadUint32(&c.state) == StateRunning {
		c.wg.Wait()
	}
}
