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
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// clk is a package-level swappable clock, the way the teacher's
// request-rate counter swaps in a fake clock under test instead of
// sleeping real wall time.
var clk clock.Clock = clock.New()

// emaWeight is the exponential moving average's smoothing factor:
// higher reacts faster to a filesystem that just got busy, lower rides
// out noise from a single unusually quick or slow transid bump.
const emaWeight = 0.25

// rateEstimator smooths the observed interval between transid bumps.
// The transid watcher uses it to back off its poll interval on a quiet
// filesystem instead of hammering TransidMaxNocache on a fixed tick.
type rateEstimator struct {
	mu       sync.Mutex
	last     time.Time
	smoothed time.Duration
}

// Observe records a transid bump at the current clock time and folds
// the interval since the previous bump into the running average.
func (r *rateEstimator) Observe() {
	now := clk.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.last.IsZero() {
		interval := now.Sub(r.last)
		if r.smoothed == 0 {
			r.smoothed = interval
		} else {
			r.smoothed = time.Duration(float64(r.smoothed)*(1-emaWeight) + float64(interval)*emaWeight)
		}
	}
	r.last = now
}

// PollInterval returns the smoothed inter-bump interval, floored so a
// freshly started daemon with no history still polls promptly.
func (r *rateEstimator) PollInterval(floor time.Duration) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.smoothed < floor {
		return floor
	}
	return r.smoothed
}
