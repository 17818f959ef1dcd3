package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleWriter(t *testing.T) {
	var buffer bytes.Buffer
	logger := zerolog.New(NewConsoleWriter(&buffer))

	logger.Info().Str("task", "main").Msg("wrote 3 files")
	assert.Contains(t, buffer.String(), "main: wrote 3 files")
	assert.Contains(t, buffer.String(), "\x1b[32m")

	buffer.Reset()
	logger.Error().Err(errors.New("boom")).Msg("build failed")
	assert.Contains(t, buffer.String(), "Error: build failed")
	assert.Contains(t, buffer.String(), "boom")
	assert.Contains(t, buffer.String(), "\x1b[31m")
}

func TestConsoleWriterRejectsGarbage(t *testing.T) {
	_, err := NewConsoleWriter(&bytes.Buffer{}).Write([]byte("not json"))
	require.Error(t, err)
}

func TestSplitOptions(t *testing.T) {
	options, rest := splitOptions([]string{"global_name=kv", "extra", "empty=", "a=b=c"})

	assert.Equal(t, map[string]string{"global_name": "kv", "empty": "", "a": "b=c"}, options)
	assert.Equal(t, []string{"extra"}, rest)
}
