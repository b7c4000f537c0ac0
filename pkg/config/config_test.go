/*
 * Copyright 2019-2020 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromRunCommand(t *testing.T) {
	c := NewWithOpts(WithRun())
	cmd := &cobra.Command{Use: "run"}
	c.MustViperize(cmd)

	require.NoError(t, c.Init())
	require.NoError(t, c.Validate())

	assert.Equal(t, uint64(4096), c.Snapshot.PageSize)
	assert.False(t, c.Snapshot.EagerCopy)
	assert.Equal(t, 0, c.Snapshot.MaxPages)
	assert.Equal(t, "localhost:8084", c.API.Transport)
	assert.Equal(t, time.Second*15, c.API.Timeout)
}

func TestLoadConfigFile(t *testing.T) {
	yml := `
snapshot:
  page-size: 8KB
  eager-copy: true
  max-pages: 128
logging:
  level: debug
`
	file := filepath.Join(t.TempDir(), "memctx.yml")
	require.NoError(t, os.WriteFile(file, []byte(yml), 0o644))

	c := NewWithOpts(WithRun())
	cmd := &cobra.Command{Use: "run"}
	c.MustViperize(cmd)

	require.NoError(t, c.TryLoadFile(file))
	require.NoError(t, c.Init())
	require.NoError(t, c.Validate())

	assert.Equal(t, uint64(8192), c.Snapshot.PageSize)
	assert.True(t, c.Snapshot.EagerCopy)
	assert.Equal(t, 128, c.Snapshot.MaxPages)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestValidateUnknownKey(t *testing.T) {
	yml := `
snapshot:
  page-sze: 4096
`
	file := filepath.Join(t.TempDir(), "memctx.yml")
	require.NoError(t, os.WriteFile(file, []byte(yml), 0o644))

	c := NewWithOpts(WithRun())
	cmd := &cobra.Command{Use: "run"}
	c.MustViperize(cmd)
	require.NoError(t, cmd.PersistentFlags().Set(configFile, file))

	require.NoError(t, c.TryLoadFile(c.File()))
	require.NoError(t, c.Init())
	require.Error(t, c.Validate())
}
