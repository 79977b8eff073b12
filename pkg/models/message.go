// Package models defines the shared data types exchanged between agents,
// the runtime, and the swarm coordinator: messages, tasks, agent snapshots,
// and resource/constraint descriptors.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Performative classifies the communicative intent of a message.
type Performative string

const (
	// PerformativeInform shares information with no reply expected
	PerformativeInform Performative = "inform"
	// PerformativeRequest asks the receiver to perform an action
	PerformativeRequest Performative = "request"
	// PerformativePropose offers a course of action for acceptance
	PerformativePropose Performative = "propose"
	// PerformativeAccept accepts a prior proposal
	PerformativeAccept Performative = "accept"
	// PerformativeReject rejects a prior proposal
	PerformativeReject Performative = "reject"
	// PerformativeQuery asks for information
	PerformativeQuery Performative = "query"
	// PerformativeSubscribe asks for ongoing updates on a topic
	PerformativeSubscribe Performative = "subscribe"
)

// ProtocolFIPAACL is the only message protocol in use.
const ProtocolFIPAACL = "fipa-acl"

// Message is the unit of agent-to-agent communication.
// Content is arbitrary JSON-compatible data; the performative tells the
// receiver how to treat it.
type Message struct {
	ID             string         `json:"id"`
	Performative   Performative   `json:"performative"`
	Sender         string         `json:"sender"`
	Receiver       string         `json:"receiver"`
	Content        map[string]any `json:"content"`
	Protocol       string         `json:"protocol"`
	ConversationID string         `json:"conversation_id"`
	InReplyTo      string         `json:"in_reply_to,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// NewMessage creates a message with a fresh ID and conversation ID.
func NewMessage(performative Performative, sender, receiver string, content map[string]any) *Message {
	return &Message{
		ID:             uuid.NewString(),
		Performative:   performative,
		Sender:         sender,
		Receiver:       receiver,
		Content:        content,
		Protocol:       ProtocolFIPAACL,
		ConversationID: uuid.NewString(),
		Timestamp:      time.Now(),
	}
}

// Reply creates a response message in the same conversation.
func (m *Message) Reply(performative Performative, content map[string]any) *Message {
	return &Message{
		ID:             uuid.NewString(),
		Performative:   performative,
		Sender:         m.Receiver,
		Receiver:       m.Sender,
		Content:        content,
		Protocol:       m.Protocol,
		ConversationID: m.ConversationID,
		InReplyTo:      m.ID,
		Timestamp:      time.Now(),
	}
}

// ValidPerformative reports whether p is one of the seven known performatives.
func ValidPerformative(p Performative) bool {
	switch p {
	case PerformativeInform, PerformativeRequest, PerformativePropose,
		PerformativeAccept, PerformativeReject, PerformativeQuery, PerformativeSubscribe:
		return true
	}
	return false
}
