// Copyright 2018 The CubeFS Authors.
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

package log

import (
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLog(t *testing.T) {
	dir := t.TempDir()

	l, err := NewLog(dir, "crawld", DebugLevel)
	require.NoError(t, err)
	require.NotNil(t, l)

	for i := 0; i < 5; i++ {
		LogDebugf("[debug] current time %v.", time.Now())
		LogWarnf("[warn] current time %v.", time.Now())
		LogErrorf("[error] current time %v.", time.Now())
		LogInfof("[info] current time %v.", time.Now())
	}
	LogFlush()

	infoPath := path.Join(dir, "crawld"+InfoLogFileName)
	errPath := path.Join(dir, "crawld"+ErrLogFileName)

	_, err = os.Stat(infoPath)
	require.NoError(t, err)
	_, err = os.Stat(errPath)
	require.NoError(t, err)
}
