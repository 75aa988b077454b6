package chat

import (
	"fmt"
	"time"
)

// textMessageEvent is the only live chat item type the pipeline ingests.
// Everything else (super chats, membership events, deletions) is skipped.
const textMessageEvent = "textMessageEvent"

// Message is the canonical record of one chat message. It is constructed once
// by the fetcher, immutable afterwards, and copied into every subscriber's
// stream.
type Message struct {
	// YouTubeID is the upstream message id and the deduplication key.
	YouTubeID   string    `json:"message_id"`
	ChannelID   string    `json:"channel_id"`
	DisplayName string    `json:"display_name"`
	Message     string    `json:"message"`
	// SentAt is assigned by YouTube and may be skewed relative to arrival.
	SentAt time.Time `json:"sent_at"`
	// ReceivedAt is assigned locally at ingestion time.
	ReceivedAt time.Time `json:"received_at"`
}

// Item is one raw entry from a live chat list response, flattened by the
// upstream adapter. Absent upstream fields arrive as empty strings.
type Item struct {
	ID             string
	Type           string
	ChannelID      string
	DisplayName    string
	DisplayMessage string
	PublishedAt    string // RFC 3339
}

// Page is one page of the live chat listing.
type Page struct {
	Items         []Item
	NextPageToken string
	// PollInterval is the upstream-mandated delay before the next list call.
	PollInterval time.Duration
}

// MappingError reports a single item that could not be converted to a Message.
// It is always scoped to one item; the enclosing poll continues.
type MappingError struct {
	ItemID string
	Field  string
	Err    error
}

func (e *MappingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("map item %q: field %s: %v", e.ItemID, e.Field, e.Err)
	}
	return fmt.Sprintf("map item %q: missing field %s", e.ItemID, e.Field)
}

func (e *MappingError) Unwrap() error { return e.Err }

// MapItem converts a raw text message item into a Message. receivedAt is the
// local ingestion time. A missing id, author, message body or timestamp makes
// only this item fail; callers skip it and keep the poll alive.
func MapItem(it Item, receivedAt time.Time) (Message, error) {
	switch {
	case it.ID == "":
		return Message{}, &MappingError{ItemID: it.ID, Field: "id"}
	case it.ChannelID == "":
		return Message{}, &MappingError{ItemID: it.ID, Field: "authorDetails.channelId"}
	case it.DisplayName == "":
		return Message{}, &MappingError{ItemID: it.ID, Field: "authorDetails.displayName"}
	case it.DisplayMessage == "":
		return Message{}, &MappingError{ItemID: it.ID, Field: "snippet.displayMessage"}
	case it.PublishedAt == "":
		return Message{}, &MappingError{ItemID: it.ID, Field: "snippet.publishedAt"}
	}
	sentAt, err := time.Parse(time.RFC3339Nano, it.PublishedAt)
	if err != nil {
		return Message{}, &MappingError{ItemID: it.ID, Field: "snippet.publishedAt", Err: err}
	}
	return Message{
		YouTubeID:   it.ID,
		ChannelID:   it.ChannelID,
		DisplayName: it.DisplayName,
		Message:     it.DisplayMessage,
		SentAt:      sentAt.UTC(),
		ReceivedAt:  receivedAt.UTC(),
	}, nil
}
