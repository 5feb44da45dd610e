// Copyright (c) 2016 Nebulous Inc.
//
// The MIT License (MIT)
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package trymutex provides a mutex with a non-blocking TryLock, the
// primitive KeyedInodeLocks builds its per-inode dedup lock on. It is
// the one piece of the reference limiter worth keeping: crawld never
// blocks a worker waiting on an inode someone else is deduping: the
// worker ends its walk of that inode instead, and nothing re-queues it
// when the lock is released.
package trymutex

import "sync"

// TryMutexLock is a mutex whose zero value is ready to use.
type TryMutexLock struct {
	sync.Once
	lockChan chan struct{}
}

func (lock *TryMutexLock) initlock() {
	lock.lockChan = make(chan struct{}, 1)
	lock.lockChan <- struct{}{}
}

// TryLock acquires the lock without blocking, reporting whether it
// succeeded.
func (lock *TryMutexLock) TryLock() bool {
	lock.Do(lock.initlock)
	select {
	case <-lock.lockChan:
		return true
	default:
		return false
	}
}

// Unlock releases a lock held by a prior successful TryLock. It
// panics if the lock is not currently held.
func (lock *TryMutexLock) Unlock() {
	lock.Do(lock.initlock)

	select {
	case lock.lockChan <- struct{}{}:
		// Success - do nothing.
	default:
		panic("TryMutexLock is not locked")
	}
}
