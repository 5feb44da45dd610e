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

package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/extentwalk/crawld/proto"
)

func TestSaveStateOmitsNeverScanned(t *testing.T) {
	states := []proto.CrawlState{
		{Root: 256, MaxTransid: 10},
		{Root: 257, MaxTransid: 0}, // never scanned, must be omitted
	}
	var buf bytes.Buffer
	require.NoError(t, SaveState(&buf, states))

	require.Equal(t, 1, strings.Count(buf.String(), "\n"))
	require.Contains(t, buf.String(), "root 100")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	states := []proto.CrawlState{
		{Root: 256, ObjectID: 300, Offset: 0, MinTransid: 0, MaxTransid: 10, Started: 111},
		{Root: 257, ObjectID: 0, Offset: 0, MinTransid: 5, MaxTransid: 12, Started: 222},
	}
	var buf bytes.Buffer
	require.NoError(t, SaveState(&buf, states))

	got, repaired, err := LoadState(&buf)
	require.NoError(t, err)
	require.Equal(t, 0, repaired)
	require.Equal(t, states, got)
}

func TestLoadStateRepairsAndCounts(t *testing.T) {
	in := "root 100 objectid 0 offset 0 min_transid ffffffffffffffff max_transid ffffffffffffffff\n" +
		"root 101 objectid 0 offset 0 min_transid 5 max_transid a\n"
	got, repaired, err := LoadState(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, 1, repaired)
	require.Len(t, got, 2)
	require.EqualValues(t, 0, got[0].MinTransid)
	require.EqualValues(t, 0, got[0].MaxTransid)
}

func TestLoadStateSkipsMalformedLine(t *testing.T) {
	in := "root zz objectid 0\nroot 100 objectid 1 offset 0 min_transid 0 max_transid a\n"
	got, _, err := LoadState(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
}
