package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    Size
		wantErr bool
	}{
		{in: "200x200", want: Size{Width: 200, Height: 200}},
		{in: " 800X600 ", want: Size{Width: 800, Height: 600}},
		{in: "200", wantErr: true},
		{in: "ax200", wantErr: true},
		{in: "200xb", wantErr: true},
		{in: "0x200", wantErr: true},
		{in: "-5x5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestThumbnailJSON(t *testing.T) {
	th := Thumbnail{ID: "t1", ImageID: "i1", Size: Size{Width: 500, Height: 500}, Status: StatusPending, Attempt: 1}

	b, err := json.Marshal(th)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "500x500", raw["size"])
	assert.Equal(t, "pending", raw["status"])
	assert.Nil(t, raw["path"])
	assert.Nil(t, raw["error"])

	var back Thumbnail
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, th.Size, back.Size)
}

func TestThumbnailStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusReady.Terminal())
	assert.True(t, StatusFailed.Terminal())
}
