package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

// stateTTL bounds how long an OAuth state parameter stays acceptable.
const stateTTL = 10 * time.Minute

var (
	errInvalidState = errors.New("invalid state")
	errExpiredState = errors.New("expired state")
)

type oauthState struct {
	AccountID string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// encodeState packs the account id and issue time into the OAuth state
// parameter. The state ties the callback to the account that started the
// flow, since the callback itself is unauthenticated.
func encodeState(accountID string) string {
	payload, _ := json.Marshal(oauthState{
		AccountID: accountID,
		Timestamp: time.Now().UnixMilli(),
	})
	return base64.URLEncoding.EncodeToString(payload)
}

// decodeState validates and unpacks a state parameter.
func decodeState(raw string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		return "", errInvalidState
	}
	var state oauthState
	if err := json.Unmarshal(decoded, &state); err != nil || state.AccountID == "" {
		return "", errInvalidState
	}
	issued := time.UnixMilli(state.Timestamp)
	if time.Since(issued) > stateTTL {
		return "", errExpiredState
	}
	return state.AccountID, nil
}
