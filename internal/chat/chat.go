// Package chat is the participant side of the room text chat.
package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mossy-p/call-signaling/internal/models"
)

var ErrEmptyMessage = errors.New("empty chat message")

// Sender puts one event on the signaling connection
type Sender interface {
	Send(event string, payload any) error
}

type Chat struct {
	roomID string
	selfID string
	sender Sender
	log    *Log
}

// New returns the chat for roomID as seen by connection selfID
func New(roomID, selfID string, sender Sender) *Chat {
	return &Chat{
		roomID: roomID,
		selfID: selfID,
		sender: sender,
		log:    NewLog(),
	}
}

func (c *Chat) Log() *Log {
	return c.log
}

// Send trims text and sends it to the room. The relay does not echo, so the
// message is recorded locally as our own right away.
func (c *Chat) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	if err := c.sender.Send(models.EventChatMessage, models.ChatRequest{RoomID: c.roomID, Message: text}); err != nil {
		return fmt.Errorf("send chat message: %w", err)
	}
	c.log.Append(Entry{SenderID: c.selfID, Content: text, Self: true})
	return nil
}

// Receive records a message forwarded by the relay
func (c *Chat) Receive(msg models.ChatForward) {
	c.log.Append(Entry{
		SenderID: msg.SenderID,
		Content:  msg.Content,
		Self:     msg.SenderID == c.selfID,
	})
}
