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

package dedupe

import (
	"sync"

	trymutex "github.com/extentwalk/crawld/util/try_mutex"
)

// keyedLock is one inode's try-lock plus a reference count so idle,
// unlocked entries can be garbage-collected instead of accumulating
// one lock per inode ever seen.
type keyedLock struct {
	lock trymutex.TryMutexLock
	refs int
}

// KeyedInodeLocks is the reference InodeMutexRegistry: a per-inode
// try-lock keyed the way KeyConcurrentLimit keys a counter by string,
// generalized from a counting limiter to a one-shot try-lock.
type KeyedInodeLocks struct {
	mu    sync.Mutex
	locks map[uint64]*keyedLock
}

// NewKeyedInodeLocks creates an empty registry.
func NewKeyedInodeLocks() *KeyedInodeLocks {
	return &KeyedInodeLocks{locks: make(map[uint64]*keyedLock)}
}

func (r *KeyedInodeLocks) TryLock(ino uint64) (func(), bool) {
	r.mu.Lock()
	kl, ok := r.locks[ino]
	if !ok {
		kl = &keyedLock{}
		r.locks[ino] = kl
	}
	kl.refs++
	r.mu.Unlock()

	if !kl.lock.TryLock() {
		r.release(ino, kl)
		return nil, false
	}

	unlocked := false
	unlock := func() {
		if unlocked {
			return
		}
		unlocked = true
		kl.lock.Unlock()
		r.release(ino, kl)
	}
	return unlock, true
}

// release drops a reference and deletes the entry once both unlocked
// and unreferenced, so the map does not grow without bound over a
// long-running daemon's inode churn.
func (r *KeyedInodeLocks) release(ino uint64, kl *keyedLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		if current, ok := r.locks[ino]; ok && current == kl {
			delete(r.locks, ino)
		}
	}
}
