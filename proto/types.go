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

import "fmt"

// FileRange is a candidate byte range offered to the deduper.
type FileRange struct {
	Root  uint64
	Ino   uint64
	Begin uint64
	End   uint64
}

func (r FileRange) String() string {
	return fmt.Sprintf("root %#x ino %#x [%#x,%#x)", r.Root, r.Ino, r.Begin, r.End)
}

// Valid reports whether the range satisfies begin < end <= 2^63.
func (r FileRange) Valid() bool {
	const max63 = uint64(1) << 63
	return r.Begin < r.End && r.End <= max63
}

// FileID identifies a file for blacklist lookups.
type FileID struct {
	Root uint64
	Ino  uint64
}

// ExtentKind classifies a decoded extent-data tree-search item.
type ExtentKind int

const (
	ExtentInline ExtentKind = iota
	ExtentPrealloc
	ExtentRegular
	ExtentOther
)

func (k ExtentKind) String() string {
	switch k {
	case ExtentInline:
		return "inline"
	case ExtentPrealloc:
		return "prealloc"
	case ExtentRegular:
		return "regular"
	default:
		return "other"
	}
}

// ExtentItem is a decoded tree-search result for one extent-data item.
type ExtentItem struct {
	ObjectID     uint64
	Offset       uint64
	Kind         ExtentKind
	PhysBytenr   uint64
	LogicalBytes uint64
	Generation   uint64
}
