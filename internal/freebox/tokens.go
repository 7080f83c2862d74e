package freebox

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// tokens is the on-disk layout of the token file. The app token is granted
// once during pairing; the session token changes on every refresh.
type tokens struct {
	AppToken          string `json:"app_token"`
	SessionToken      string `json:"session_token,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
	LastSessionUpdate string `json:"last_session_update,omitempty"`
}

func loadTokens(path string) (tokens, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tokens{}, err
	}

	var t tokens
	if err := json.Unmarshal(data, &t); err != nil {
		return tokens{}, fmt.Errorf("parsing token file: %w", err)
	}

	return t, nil
}

func saveTokens(path string, t tokens) error {
	if t.CreatedAt == "" {
		t.CreatedAt = time.Now().Format(time.RFC3339)
	}
	t.LastSessionUpdate = time.Now().Format(time.RFC3339)

	data, err := json.MarshalIndent(&t, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}
