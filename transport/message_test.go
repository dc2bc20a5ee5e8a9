package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageWireShape(t *testing.T) {
	t.Run("requests carry type and sender", func(t *testing.T) {
		raw, err := json.Marshal(Message{
			Type:   MessageTypePing,
			Sender: &NodeInfo{NodeID: "ab", Host: "127.0.0.1", Port: 9000},
		})
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, "PING", decoded["type"])
		sender := decoded["sender"].(map[string]interface{})
		assert.Equal(t, "127.0.0.1", sender["host"])
		assert.NotContains(t, decoded, "nodes")
		assert.NotContains(t, decoded, "value")
	})

	t.Run("STORED is bare", func(t *testing.T) {
		raw, err := json.Marshal(Message{Type: MessageTypeStored})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"STORED"}`, string(raw))
	})

	t.Run("ERROR detail travels as message", func(t *testing.T) {
		raw, err := json.Marshal(ErrorMessage("unknown request type"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"ERROR","message":"unknown request type"}`, string(raw))
	})

	t.Run("FOUND_VALUE carries opaque value", func(t *testing.T) {
		raw, err := json.Marshal(Message{
			Type:  MessageTypeFoundValue,
			Value: json.RawMessage(`{"user_id":"alice"}`),
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"FOUND_VALUE","value":{"user_id":"alice"}}`, string(raw))

		var back Message
		require.NoError(t, json.Unmarshal(raw, &back))
		assert.Equal(t, MessageTypeFoundValue, back.Type)
		assert.JSONEq(t, `{"user_id":"alice"}`, string(back.Value))
	})
}
