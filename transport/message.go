package transport

import "encoding/json"

// MessageType identifies one of the DHT wire message kinds. The set is
// closed: anything outside it is answered with MessageTypeError.
type MessageType string

const (
	MessageTypePing       MessageType = "PING"
	MessageTypePong       MessageType = "PONG"
	MessageTypeFindNode   MessageType = "FIND_NODE"
	MessageTypeFoundNodes MessageType = "FOUND_NODES"
	MessageTypeFindValue  MessageType = "FIND_VALUE"
	MessageTypeFoundValue MessageType = "FOUND_VALUE"
	MessageTypeStore      MessageType = "STORE"
	MessageTypeStored     MessageType = "STORED"
	MessageTypeError      MessageType = "ERROR"
)

// MaxMessageBytes caps the size of a single encoded message. Requests and
// responses larger than this are rejected before decoding.
const MaxMessageBytes = 64 * 1024

// NodeInfo is the wire descriptor for a peer. Every request carries one as
// its sender so recipients can learn about the caller from any traffic.
type NodeInfo struct {
	NodeID   string  `json:"node_id"`
	Host     string  `json:"host"`
	Port     uint16  `json:"port"`
	LastSeen float64 `json:"last_seen,omitempty"`
}

// Message is the single envelope for all DHT traffic. Which fields are
// populated depends on Type:
//
//	PING         sender
//	PONG         sender
//	FIND_NODE    sender, target
//	FOUND_NODES  nodes
//	FIND_VALUE   sender, key
//	FOUND_VALUE  value
//	STORE        sender, key, value
//	STORED       (bare)
//	ERROR        message
type Message struct {
	Type   MessageType     `json:"type"`
	Sender *NodeInfo       `json:"sender,omitempty"`
	Target string          `json:"target,omitempty"`
	Key    string          `json:"key,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
	Nodes  []NodeInfo      `json:"nodes,omitempty"`
	Error  string          `json:"message,omitempty"`
}

// ErrorMessage builds an ERROR response carrying the given detail.
func ErrorMessage(detail string) Message {
	return Message{Type: MessageTypeError, Error: detail}
}
