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
	"context"

	"github.com/extentwalk/crawld/proto"
)

// NoopDeduper never dedupes and never asks for a retry. It exercises
// the full pop -> lock -> fetch -> filter -> dedupe -> advance path
// in tests without a real clone-range ioctl behind it.
type NoopDeduper struct{}

func (NoopDeduper) ScanForward(ctx context.Context, r proto.FileRange) (bool, error) {
	return false, nil
}
