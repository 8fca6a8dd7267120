package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrecall/pkg/version"
)

func TestVersionCmd(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, out string)
	}{
		{
			name: "default",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "amanrecall")
				assert.Contains(t, out, version.Version)
				assert.Contains(t, out, "commit")
			},
		},
		{
			name: "short",
			args: []string{"--short"},
			check: func(t *testing.T, out string) {
				assert.Equal(t, version.Version, strings.TrimSpace(out))
			},
		},
		{
			name: "json",
			args: []string{"--json"},
			check: func(t *testing.T, out string) {
				var info map[string]string
				require.NoError(t, json.Unmarshal([]byte(out), &info))
				assert.Equal(t, version.Version, info["version"])
				for _, key := range []string{"commit", "date", "go_version", "os", "arch"} {
					assert.Contains(t, info, key)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a version command
			cmd := newVersionCmd()
			buf := &bytes.Buffer{}
			cmd.SetOut(buf)
			cmd.SetArgs(append([]string{}, tt.args...))

			// When: executing it
			err := cmd.Execute()

			// Then: the output has the requested shape
			require.NoError(t, err)
			tt.check(t, buf.String())
		})
	}
}
