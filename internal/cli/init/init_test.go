package initcmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/pipelinescope/internal/config"
)

func TestNewInitCmd(t *testing.T) {
	cmd := NewInitCmd()

	assert.Equal(t, "init [dir]", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	force := cmd.Flags().Lookup("force")
	require.NotNil(t, force)
	assert.Equal(t, "false", force.DefValue)
}

func TestRunInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)

	var out bytes.Buffer
	require.NoError(t, runInit(&out, dir, false))
	assert.Contains(t, out.String(), "Created")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().SampleSize, cfg.SampleSize)

	// An existing file is kept.
	require.NoError(t, os.WriteFile(path, []byte("sample_size: 7\n"), 0o644))
	out.Reset()
	require.NoError(t, runInit(&out, dir, false))
	assert.Contains(t, out.String(), "already exists")
	cfg, err = config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.SampleSize)

	out.Reset()
	require.NoError(t, runInit(&out, dir, true))
	cfg, err = config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSampleSize, cfg.SampleSize)
}

func TestInitCmd_Execute(t *testing.T) {
	dir := t.TempDir()
	cmd := NewInitCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{dir})

	require.NoError(t, cmd.Execute())
	assert.FileExists(t, filepath.Join(dir, config.FileName))
}
