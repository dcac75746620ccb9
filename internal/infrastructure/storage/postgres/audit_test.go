package postgres

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovementLogRepo_SnapshotEncoding(t *testing.T) {
	repo, err := NewMovementLogRepo(nil)
	require.NoError(t, err)
	repo.compressThreshold = 64

	small := json.RawMessage(`{"quantity":3}`)
	large := json.RawMessage(`{"notes":"` + string(bytes.Repeat([]byte("a"), 500)) + `"}`)

	tests := []struct {
		name     string
		snapshot json.RawMessage
		wantAlgo CompressionAlgo
		wantRaw  bool
	}{
		{"empty", nil, CompressionNone, false},
		{"below threshold", small, CompressionNone, true},
		{"above threshold", large, CompressionZstd, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, compressed, algo := repo.encodeSnapshot(tt.snapshot)
			assert.Equal(t, tt.wantAlgo, algo)
			assert.Equal(t, tt.wantRaw, raw != nil)

			decoded, err := repo.decodeSnapshot(raw, compressed, algo)
			require.NoError(t, err)
			if len(tt.snapshot) == 0 {
				assert.Nil(t, decoded)
				return
			}
			assert.JSONEq(t, string(tt.snapshot), string(decoded))
		})
	}
}

func TestMovementLogRepo_DecodeRejectsUnknownAlgo(t *testing.T) {
	repo, err := NewMovementLogRepo(nil)
	require.NoError(t, err)

	_, err = repo.decodeSnapshot(nil, []byte{1, 2}, CompressionAlgo("lz4"))
	assert.Error(t, err)
}
