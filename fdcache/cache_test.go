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

package fdcache

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/extentwalk/crawld/fsapi"
	"github.com/extentwalk/crawld/fsapi/fake"
)

func newFakeBackend(t *testing.T) *fake.Backend {
	t.Helper()
	b, err := fake.New(t.TempDir())
	require.NoError(t, err)
	return b
}

// encodedRootName is the fake-only convention (see fsapi/fake) that
// lets Backend.Stat decode a resolved (root, ino) back out of an
// opened path.
func encodedRootName(root uint64) string {
	return fmt.Sprintf("r%d-i%d", root, fsapi.FirstFreeObjectID)
}

func TestOpenRootMountRoot(t *testing.T) {
	b := newFakeBackend(t)
	c, err := New(b, 8, 8)
	require.NoError(t, err)

	f, err := c.OpenRoot(context.Background(), fsapi.FirstFreeObjectID)
	require.NoError(t, err)
	require.Same(t, b.MountFd(), f)
}

func TestOpenRootChild(t *testing.T) {
	b := newFakeBackend(t)
	b.AddSubvolume(&fake.Subvolume{
		Root:       257,
		ParentRoot: fsapi.FirstFreeObjectID,
		DirID:      fsapi.FirstFreeObjectID,
		Name:       encodedRootName(257),
	})
	c, err := New(b, 8, 8)
	require.NoError(t, err)

	f, err := c.OpenRoot(context.Background(), 257)
	require.NoError(t, err)
	require.NotNil(t, f)

	// second call is served from cache; same *os.File pointer.
	f2, err := c.OpenRoot(context.Background(), 257)
	require.NoError(t, err)
	require.Same(t, f, f2)
}

func TestOpenRootMissingReturnsNilNil(t *testing.T) {
	b := newFakeBackend(t)
	c, err := New(b, 8, 8)
	require.NoError(t, err)

	f, err := c.OpenRoot(context.Background(), 999)
	require.NoError(t, err)
	require.Nil(t, f)
}

func TestOpenRootInoResolves(t *testing.T) {
	b := newFakeBackend(t)
	b.AddSubvolume(&fake.Subvolume{Root: 256})
	c, err := New(b, 8, 8)
	require.NoError(t, err)

	f, err := c.OpenRootIno(context.Background(), 256, 300)
	require.NoError(t, err)
	require.NotNil(t, f)
}

func TestOpenRootInoRejectsNoCOW(t *testing.T) {
	b := newFakeBackend(t)
	b.AddSubvolume(&fake.Subvolume{
		Root:  256,
		NoCOW: map[uint64]bool{300: true},
	})
	c, err := New(b, 8, 8)
	require.NoError(t, err)

	f, err := c.OpenRootIno(context.Background(), 256, 300)
	require.NoError(t, err)
	require.Nil(t, f)
}

func TestRegisterTempFileShortCircuits(t *testing.T) {
	b := newFakeBackend(t)
	c, err := New(b, 8, 8)
	require.NoError(t, err)

	f, err := b.Open(t.TempDir()+"/tmp", false)
	require.NoError(t, err)
	c.RegisterTempFile(256, 42, f)

	got, err := c.OpenRootIno(context.Background(), 256, 42)
	require.NoError(t, err)
	require.Same(t, f, got)
}

func TestClearPurgesCaches(t *testing.T) {
	b := newFakeBackend(t)
	b.AddSubvolume(&fake.Subvolume{Root: 256})
	c, err := New(b, 8, 8)
	require.NoError(t, err)

	_, err = c.OpenRootIno(context.Background(), 256, 300)
	require.NoError(t, err)
	require.Equal(t, 1, c.inoCache.Len())

	c.Clear()
	require.Equal(t, 0, c.inoCache.Len())
	require.Equal(t, 0, c.rootCache.Len())
}
