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

package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCrawlStateCompareOrder(t *testing.T) {
	a := CrawlState{MinTransid: 1, MaxTransid: 5, ObjectID: 10, Offset: 0, Root: 256}
	b := CrawlState{MinTransid: 1, MaxTransid: 5, ObjectID: 10, Offset: 0, Root: 257}
	c := CrawlState{MinTransid: 1, MaxTransid: 5, ObjectID: 11, Offset: 0, Root: 1}
	d := CrawlState{MinTransid: 2, MaxTransid: 0, ObjectID: 0, Offset: 0, Root: 0}

	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.True(t, c.Less(d))
	require.Equal(t, 0, a.Compare(a))
}

func TestCrawlStateRoundTrip(t *testing.T) {
	s := CrawlState{Root: 256, ObjectID: 300, Offset: 0x1000, MinTransid: 5, MaxTransid: 10, Started: 1700000000}
	line := s.MarshalRecord()

	got, repaired, err := ParseCrawlStateRecord(line)
	require.NoError(t, err)
	require.False(t, repaired)
	require.Equal(t, s, got)
}

func TestParseCrawlStateRecordLegacyKeys(t *testing.T) {
	line := "root 100 objectid 1 offset 0 gen_current 5 gen_next a"
	got, repaired, err := ParseCrawlStateRecord(line)
	require.NoError(t, err)
	require.False(t, repaired)
	require.EqualValues(t, 5, got.MinTransid)
	require.EqualValues(t, 0xa, got.MaxTransid)
}

func TestParseCrawlStateRecordRepairsSentinels(t *testing.T) {
	line := "root 100 objectid 0 offset 0 min_transid ffffffffffffffff max_transid ffffffffffffffff"
	got, repaired, err := ParseCrawlStateRecord(line)
	require.NoError(t, err)
	require.True(t, repaired)
	require.EqualValues(t, 0, got.MinTransid)
	require.EqualValues(t, 0, got.MaxTransid)
}

func TestParseCrawlStateRecordRepairsMaxOnly(t *testing.T) {
	line := "root 100 objectid 0 offset 0 min_transid 5 max_transid ffffffffffffffff"
	got, repaired, err := ParseCrawlStateRecord(line)
	require.NoError(t, err)
	require.True(t, repaired)
	require.EqualValues(t, 5, got.MinTransid)
	require.EqualValues(t, 5, got.MaxTransid)
}

func TestParseCrawlStateRecordBlankLine(t *testing.T) {
	got, repaired, err := ParseCrawlStateRecord("   ")
	require.NoError(t, err)
	require.False(t, repaired)
	require.Equal(t, CrawlState{}, got)
}

func TestParseCrawlStateRecordMalformed(t *testing.T) {
	_, _, err := ParseCrawlStateRecord("root 100 objectid")
	require.Error(t, err)
}

func TestFileRangeValid(t *testing.T) {
	require.True(t, FileRange{Begin: 0, End: 4096}.Valid())
	require.False(t, FileRange{Begin: 100, End: 100}.Valid())
	require.False(t, FileRange{Begin: 0, End: (uint64(1) << 63) + 1}.Valid())
}
