package presence

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordValidate(t *testing.T) {
	rec := &Record{UserID: "alice", Endpoints: []string{"203.0.113.5:8470"}}
	assert.NoError(t, rec.Validate())

	assert.Error(t, (&Record{}).Validate(), "user id is required")
	assert.Error(t, (&Record{UserID: "alice", Endpoints: []string{""}}).Validate())
	assert.NoError(t, (&Record{UserID: "alice"}).Validate(), "no endpoints is valid")
}

func TestRecordValueRoundTrip(t *testing.T) {
	rec := &Record{
		UserID:     "alice",
		Username:   "Alice",
		Endpoints:  []string{"203.0.113.5:8470", "198.51.100.7:8470"},
		PublicKey:  "abcdef",
		LastSeen:   1724668800,
		Reputation: 0.75,
	}

	raw, err := rec.Value()
	require.NoError(t, err)

	back, err := FromValue(raw)
	require.NoError(t, err)
	assert.Equal(t, rec, back)
}

func TestRecordWireFieldNames(t *testing.T) {
	rec := &Record{UserID: "alice", Endpoints: []string{"a:1"}, Reputation: 0.5}
	raw, err := rec.Value()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "user_id")
	assert.Contains(t, decoded, "endpoints")
	assert.Contains(t, decoded, "reputation_score")
	assert.NotContains(t, decoded, "username", "empty optional fields are omitted")
}

func TestFromValueRejectsGarbage(t *testing.T) {
	_, err := FromValue(json.RawMessage(`{not json`))
	assert.Error(t, err)

	_, err = FromValue(json.RawMessage(`{"username":"no id"}`))
	assert.Error(t, err, "a record without a user id is not a presence record")
}

func TestKeySeed(t *testing.T) {
	assert.Equal(t, "user:alice", KeySeed("alice"))
}

func TestValueRefusesInvalidRecord(t *testing.T) {
	_, err := (&Record{}).Value()
	assert.Error(t, err)
}
