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

	"github.com/extentwalk/crawld/proto"
)

// MapBlacklist is the reference Blacklist: a set of excluded files
// backed by sync.Map, safe for concurrent lookups from every
// FileCrawl worker.
type MapBlacklist struct {
	set sync.Map // proto.FileID -> struct{}
}

func NewMapBlacklist() *MapBlacklist { return &MapBlacklist{} }

func (b *MapBlacklist) Add(id proto.FileID) {
	b.set.Store(id, struct{}{})
}

func (b *MapBlacklist) Remove(id proto.FileID) {
	b.set.Delete(id)
}

func (b *MapBlacklist) IsBlacklisted(id proto.FileID) bool {
	_, ok := b.set.Load(id)
	return ok
}
