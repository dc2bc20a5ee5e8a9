// Package presence defines the user-presence record published and resolved
// through the DHT, and the key derivation that places user identifiers in
// the DHT's identifier space.
package presence

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Record describes how to reach a user: the endpoints they listen on plus
// identity metadata. It travels through the DHT as an opaque JSON value.
type Record struct {
	UserID     string   `json:"user_id"`
	Username   string   `json:"username,omitempty"`
	Endpoints  []string `json:"endpoints"`
	PublicKey  string   `json:"public_key,omitempty"`
	LastSeen   float64  `json:"last_seen,omitempty"`
	Reputation float64  `json:"reputation_score,omitempty"`
}

// Validate checks the fields a record must carry to be announced.
func (r *Record) Validate() error {
	if r.UserID == "" {
		return errors.New("presence: user id required")
	}
	for i, ep := range r.Endpoints {
		if ep == "" {
			return fmt.Errorf("presence: endpoint %d is empty", i)
		}
	}
	return nil
}

// Value renders the record as the opaque DHT value.
func (r *Record) Value() (json.RawMessage, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("presence: encode record: %w", err)
	}
	return raw, nil
}

// FromValue decodes a DHT value back into a presence record.
func FromValue(raw json.RawMessage) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("presence: decode record: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// KeySeed is the string digested into the DHT key a user's presence lives
// under.
func KeySeed(userID string) string {
	return "user:" + userID
}
