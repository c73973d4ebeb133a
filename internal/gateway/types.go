// Package gateway is a minimal chat client: a websocket event session and a
// REST client for the few endpoints the bot uses.
package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Snowflake is an object id. On the wire it is a decimal string.
type Snowflake uint64

func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

func (s Snowflake) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Snowflake) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		var n uint64
		if err2 := json.Unmarshal(data, &n); err2 != nil {
			return fmt.Errorf("snowflake: %w", err)
		}
		*s = Snowflake(n)
		return nil
	}
	if str == "" {
		*s = 0
		return nil
	}
	n, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return fmt.Errorf("snowflake %q: %w", str, err)
	}
	*s = Snowflake(n)
	return nil
}

// User is a chat account.
type User struct {
	ID       Snowflake `json:"id"`
	Username string    `json:"username"`
	Bot      bool      `json:"bot,omitempty"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID          Snowflake `json:"id"`
	Filename    string    `json:"filename"`
	Size        int       `json:"size"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type,omitempty"`
}

// Message is a channel message.
type Message struct {
	ID          Snowflake    `json:"id"`
	ChannelID   Snowflake    `json:"channel_id"`
	Author      User         `json:"author"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
}

// Embed is a rich message block.
type Embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color,omitempty"`
}

// Reference points a reply at another message.
type Reference struct {
	MessageID Snowflake `json:"message_id"`
}

// OutgoingMessage is the body of a create or edit request.
type OutgoingMessage struct {
	Content   string     `json:"content,omitempty"`
	Embeds    []Embed    `json:"embeds,omitempty"`
	Reference *Reference `json:"message_reference,omitempty"`
}
