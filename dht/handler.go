package dht

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/kaddir/transport"
)

// HandleMessage answers one inbound DHT request using the local routing
// table and store. It always returns a typed response: malformed or
// unrecognized input yields ERROR, never a panic or a transport-level
// failure. Before dispatching, the request's sender is added to the routing
// table, so peers are learned passively from all traffic.
func (m *Manager) HandleMessage(req transport.Message) transport.Message {
	m.learnSender(req.Sender)

	switch req.Type {
	case transport.MessageTypePing:
		return m.handlePing()
	case transport.MessageTypeFindNode:
		return m.handleFindNode(req)
	case transport.MessageTypeFindValue:
		return m.handleFindValue(req)
	case transport.MessageTypeStore:
		return m.handleStore(req)
	default:
		return transport.ErrorMessage(fmt.Sprintf("unknown request type %q", req.Type))
	}
}

// learnSender folds a valid sender descriptor into the routing table. An
// invalid descriptor is ignored without failing the request.
func (m *Manager) learnSender(sender *transport.NodeInfo) {
	if sender == nil {
		return
	}
	peer, err := PeerFromNodeInfo(*sender, m.clock.Now())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "learnSender",
			"node_id":  sender.NodeID,
			"error":    err.Error(),
		}).Debug("Ignoring invalid sender descriptor")
		return
	}
	m.table.Add(peer)
}

func (m *Manager) handlePing() transport.Message {
	info := m.self.NodeInfo()
	return transport.Message{
		Type:   transport.MessageTypePong,
		Sender: &info,
	}
}

func (m *Manager) handleFindNode(req transport.Message) transport.Message {
	target, err := ParseNodeID(req.Target)
	if err != nil {
		return transport.ErrorMessage("invalid target: " + err.Error())
	}
	return m.foundNodes(target)
}

func (m *Manager) handleFindValue(req transport.Message) transport.Message {
	key, err := ParseNodeID(req.Key)
	if err != nil {
		return transport.ErrorMessage("invalid key: " + err.Error())
	}

	if value, ok := m.store.Get(key); ok {
		return transport.Message{
			Type:  transport.MessageTypeFoundValue,
			Value: value,
		}
	}
	return m.foundNodes(key)
}

func (m *Manager) handleStore(req transport.Message) transport.Message {
	key, err := ParseNodeID(req.Key)
	if err != nil {
		return transport.ErrorMessage("invalid key: " + err.Error())
	}
	if len(req.Value) == 0 {
		return transport.ErrorMessage("missing value")
	}

	m.store.Put(key, req.Value, m.cfg.ValueTTL)
	return transport.Message{Type: transport.MessageTypeStored}
}

// foundNodes builds the FOUND_NODES response shared by FIND_NODE and the
// miss branch of FIND_VALUE.
func (m *Manager) foundNodes(target NodeID) transport.Message {
	closest := m.table.Closest(target, m.cfg.K)
	nodes := make([]transport.NodeInfo, 0, len(closest))
	for _, peer := range closest {
		nodes = append(nodes, peer.NodeInfo())
	}
	return transport.Message{
		Type:  transport.MessageTypeFoundNodes,
		Nodes: nodes,
	}
}
