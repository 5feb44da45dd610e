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

// Command crawld runs the crawl-and-scan core standalone. It has no
// CLI beyond a single config flag and does not handle signals: an
// operator manages its lifecycle with the process supervisor, the way
// the daemon's own Non-goals describe.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/extentwalk/crawld/dedupe"
	"github.com/extentwalk/crawld/fsapi/fake"
	"github.com/extentwalk/crawld/roots"
	"github.com/extentwalk/crawld/util/config"
	"github.com/extentwalk/crawld/util/errors"
	"github.com/extentwalk/crawld/util/log"
)

var configFile = flag.String("c", "", "path to a crawld config file")

func main() {
	flag.Parse()
	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "usage: crawld -c <config file>")
		os.Exit(1)
	}

	cfg, err := config.LoadConfigFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "crawld: load config: %v\n", err)
		os.Exit(1)
	}

	logDir := cfg.GetString("log_dir")
	if logDir == "" {
		logDir = "./log"
	}
	if _, err := log.NewLog(logDir, "crawld", parseLevel(cfg.GetString("log_level"))); err != nil {
		fmt.Fprintf(os.Stderr, "crawld: init log: %v\n", err)
		os.Exit(1)
	}
	defer log.LogFlush()

	if err := errors.AtPanic(log.LogFlush); err != nil {
		log.LogWarnf("crawld: panic hook unavailable, log buffers may be lost on crash: %v", err)
	}

	instanceID := uuid.New().String()
	log.LogInfof("crawld: starting instance %s", instanceID)

	backend, err := fake.New(cfg.GetString("mount"))
	if err != nil {
		log.LogFatalf("crawld: open mount: %v", err)
	}

	rcfg := roots.Config{
		StateDir:          cfg.GetString("state_dir"),
		Policy:            cfg.GetString("scan_policy"),
		Workers:           int(cfg.GetInt64("workers")),
		TransidPollFloor:  time.Duration(cfg.GetInt64("transid_poll_floor_ms")) * time.Millisecond,
		WritebackInterval: time.Duration(cfg.GetInt64("writeback_interval_ms")) * time.Millisecond,
		SendWorkaround:    cfg.GetBoolWithDefault("send_workaround", false),
	}

	coordinator, err := roots.NewCoordinator(rcfg, backend, dedupe.NoopDeduper{}, dedupe.NewKeyedInodeLocks(), dedupe.NewMapBlacklist())
	if err != nil {
		log.LogFatalf("crawld: new coordinator: %v", err)
	}
	if err := coordinator.Start(cfg); err != nil {
		log.LogFatalf("crawld: start: %v", err)
	}

	log.LogInfof("crawld: instance %s running", instanceID)
	coordinator.Sync()
}

func parseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
