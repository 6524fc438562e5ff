package logging

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewOutput(t *testing.T) {
	testCases := []struct {
		name       string
		level      zerolog.Level
		withFile   bool
		wantStdout bool
		wantStderr bool
		wantJSON   bool
	}{
		{name: "info without file is JSON on stderr", level: zerolog.InfoLevel, wantStderr: true, wantJSON: true},
		{name: "debug without file is console on stderr only", level: zerolog.DebugLevel, wantStderr: true},
		{name: "info with file leaves the terminal quiet", level: zerolog.InfoLevel, withFile: true},
		{name: "debug with file adds console on stdout", level: zerolog.DebugLevel, withFile: true, wantStdout: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			var stdout, stderr bytes.Buffer
			cfg := Config{}
			if tc.withFile {
				cfg.File = filepath.Join(t.TempDir(), "out.log")
			}

			// Act
			logger := zerolog.New(newOutput(cfg, tc.level, &stdout, &stderr)).Level(tc.level)
			logger.Info().Msg("hello")

			// Assert
			assert.Equal(t, tc.wantStdout, stdout.Len() > 0)
			assert.Equal(t, tc.wantStderr, stderr.Len() > 0)
			if tc.wantStderr {
				assert.Equal(t, 1, bytes.Count(stderr.Bytes(), []byte("hello")))
				assert.Equal(t, tc.wantJSON, bytes.HasPrefix(stderr.Bytes(), []byte("{")))
			}
		})
	}
}
