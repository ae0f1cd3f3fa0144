package handlers

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	state := encodeState("account-1")

	accountID, err := decodeState(state)
	require.NoError(t, err)
	assert.Equal(t, "account-1", accountID)
}

func TestDecodeStateRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not base64", "%%%"},
		{"not json", base64.URLEncoding.EncodeToString([]byte("hello"))},
		{"missing account", base64.URLEncoding.EncodeToString([]byte(`{"timestamp":1}`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeState(tt.raw)
			assert.ErrorIs(t, err, errInvalidState)
		})
	}
}

func TestDecodeStateRejectsExpired(t *testing.T) {
	payload, err := json.Marshal(oauthState{
		AccountID: "account-1",
		Timestamp: time.Now().Add(-11 * time.Minute).UnixMilli(),
	})
	require.NoError(t, err)

	_, err = decodeState(base64.URLEncoding.EncodeToString(payload))
	assert.ErrorIs(t, err, errExpiredState)
}

func TestDecodeStateAcceptsRecent(t *testing.T) {
	payload, err := json.Marshal(oauthState{
		AccountID: "account-1",
		Timestamp: time.Now().Add(-9 * time.Minute).UnixMilli(),
	})
	require.NoError(t, err)

	accountID, err := decodeState(base64.URLEncoding.EncodeToString(payload))
	require.NoError(t, err)
	assert.Equal(t, "account-1", accountID)
}
