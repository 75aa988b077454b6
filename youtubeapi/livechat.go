package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/chat-relay/chat"
	"github.com/onnwee/chat-relay/telemetry"
)

// ErrSendRejected marks an outbound message the upstream (or our own
// validation) refused. Retrying the same message will not help.
var ErrSendRejected = errors.New("message rejected by live chat")

// ErrNoLiveChat is returned by Send when no live chat id has been resolved yet.
var ErrNoLiveChat = errors.New("no live chat id available")

// maxMessageLength is the YouTube live chat limit.
const maxMessageLength = 200

// clientFunc builds an authenticated *yt.Service. Indirection keeps the
// adapters testable against a mock API server.
type clientFunc func(ctx context.Context) (*yt.Service, error)

// LiveChatClient adapts the YouTube Data API to the fetcher's upstream
// interface, authenticated as the streamer identity.
type LiveChatClient struct {
	client clientFunc
}

func NewLiveChatClient(svc *Service) *LiveChatClient {
	return &LiveChatClient{client: svc.Client}
}

// ListLiveChat fetches one page of chat items. A response without an item list
// means the broadcast is over and maps to chat.ErrBroadcastEnded, as do the
// API's liveChatEnded/liveChatNotFound errors.
func (c *LiveChatClient) ListLiveChat(ctx context.Context, liveChatID, pageToken string) (*chat.Page, error) {
	svc, err := c.client(ctx)
	if err != nil {
		return nil, fmt.Errorf("youtube client: %w", err)
	}
	call := svc.LiveChatMessages.List(liveChatID, []string{"snippet", "authorDetails"})
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		if reason, ended := endedReason(err); ended {
			return nil, fmt.Errorf("%w: %s", chat.ErrBroadcastEnded, reason)
		}
		return nil, fmt.Errorf("list live chat: %w", err)
	}
	if resp.Items == nil {
		return nil, chat.ErrBroadcastEnded
	}

	page := &chat.Page{
		Items:         make([]chat.Item, 0, len(resp.Items)),
		NextPageToken: resp.NextPageToken,
		PollInterval:  time.Duration(resp.PollingIntervalMillis) * time.Millisecond,
	}
	for _, it := range resp.Items {
		item := chat.Item{ID: it.Id}
		if sn := it.Snippet; sn != nil {
			item.Type = sn.Type
			item.DisplayMessage = sn.DisplayMessage
			item.PublishedAt = sn.PublishedAt
		}
		if ad := it.AuthorDetails; ad != nil {
			item.ChannelID = ad.ChannelId
			item.DisplayName = ad.DisplayName
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// ActiveLiveChatID resolves the live chat id of the streamer's currently
// active broadcast.
func (c *LiveChatClient) ActiveLiveChatID(ctx context.Context) (string, error) {
	svc, err := c.client(ctx)
	if err != nil {
		return "", fmt.Errorf("youtube client: %w", err)
	}
	resp, err := svc.LiveBroadcasts.List([]string{"snippet"}).
		BroadcastStatus("active").
		BroadcastType("all").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("list active broadcasts: %w", err)
	}
	for _, b := range resp.Items {
		if b.Snippet != nil && b.Snippet.LiveChatId != "" {
			return b.Snippet.LiveChatId, nil
		}
	}
	return "", chat.ErrNoActiveBroadcast
}

// endedReason reports whether err is the API telling us the chat is gone
// rather than a transient failure.
func endedReason(err error) (string, bool) {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return "", false
	}
	for _, e := range apiErr.Errors {
		switch e.Reason {
		case "liveChatEnded", "liveChatDisabled", "liveChatNotFound":
			return e.Reason, true
		}
	}
	if apiErr.Code == 404 {
		return "not found", true
	}
	return "", false
}

// Sender posts messages into the currently active live chat as the bot
// identity. The target id is read from the shared ref on every call so sends
// follow the fetcher across broadcast changes.
type Sender struct {
	client clientFunc
	ref    *chat.LiveChatRef
}

func NewSender(svc *Service, ref *chat.LiveChatRef) *Sender {
	return &Sender{client: svc.Client, ref: ref}
}

// Send validates and inserts one text message. Validation failures and 4xx
// API responses wrap ErrSendRejected; anything else is transient.
func (s *Sender) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty message", ErrSendRejected)
	}
	if len([]rune(text)) > maxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrSendRejected, maxMessageLength)
	}
	id := s.ref.Get()
	if id == "" {
		return ErrNoLiveChat
	}
	svc, err := s.client(ctx)
	if err != nil {
		telemetry.IncSendFailures()
		return fmt.Errorf("youtube client: %w", err)
	}
	msg := &yt.LiveChatMessage{
		Snippet: &yt.LiveChatMessageSnippet{
			LiveChatId:         id,
			Type:               "textMessageEvent",
			TextMessageDetails: &yt.LiveChatTextMessageDetails{MessageText: text},
		},
	}
	_, err = svc.LiveChatMessages.Insert([]string{"snippet"}, msg).Context(ctx).Do()
	if err != nil {
		telemetry.IncSendFailures()
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 {
			return fmt.Errorf("%w: %v", ErrSendRejected, err)
		}
		return fmt.Errorf("insert live chat message: %w", err)
	}
	telemetry.IncMessagesSent()
	return nil
}
