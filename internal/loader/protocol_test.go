package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"success reply", `{"ok":true,"result":{"status":"success"}}`, true},
		{"failure reply", `  {"ok":false,"error":"boom"}`, true},
		{"workflow json without ok", `{"rows":3}`, false},
		{"ok with wrong type", `{"ok":"yes"}`, false},
		{"plain text", "processing sheet 1", false},
		{"truncated json", `{"ok":true`, false},
		{"json array", `[{"ok":true}]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := decodeResponse(tt.line)
			assert.Equal(t, tt.want, ok)
		})
	}

	resp, ok := decodeResponse(`{"ok":false,"error":"boom","traceback":"tb"}`)
	require.True(t, ok)
	assert.False(t, resp.OK)
	assert.Equal(t, "boom", resp.Error)
	assert.Equal(t, "tb", resp.Traceback)
}
