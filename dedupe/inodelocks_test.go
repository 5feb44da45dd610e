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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedInodeLocksExclusive(t *testing.T) {
	r := NewKeyedInodeLocks()

	unlock1, ok := r.TryLock(42)
	require.True(t, ok)

	_, ok = r.TryLock(42)
	require.False(t, ok, "a second try-lock on the same inode must fail while the first is held")

	// a different inode is unaffected.
	unlock2, ok := r.TryLock(43)
	require.True(t, ok)
	unlock2()

	unlock1()

	unlock3, ok := r.TryLock(42)
	require.True(t, ok, "the inode must be lockable again once released")
	unlock3()
}

func TestKeyedInodeLocksGCsIdleEntries(t *testing.T) {
	r := NewKeyedInodeLocks()

	unlock, ok := r.TryLock(7)
	require.True(t, ok)
	unlock()

	r.mu.Lock()
	_, present := r.locks[7]
	r.mu.Unlock()
	require.False(t, present, "an unlocked, unreferenced entry should be garbage-collected")
}

func TestKeyedInodeLocksUnlockIsIdempotent(t *testing.T) {
	r := NewKeyedInodeLocks()

	unlock, ok := r.TryLock(1)
	require.True(t, ok)
	require.NotPanics(t, func() {
		unlock()
		unlock()
	})
}
