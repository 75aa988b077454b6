package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

type listResult struct {
	page *Page
	err  error
}

type activeResult struct {
	id  string
	err error
}

// scriptedClient serves pre-scripted results and cancels the run context when
// its script is exhausted, so Fetcher.Run returns deterministically.
type scriptedClient struct {
	cancel context.CancelFunc

	listResults []listResult
	listIDs     []string
	listTokens  []string

	activeResults []activeResult
	activeCalls   int
}

func (c *scriptedClient) ListLiveChat(ctx context.Context, liveChatID, pageToken string) (*Page, error) {
	c.listIDs = append(c.listIDs, liveChatID)
	c.listTokens = append(c.listTokens, pageToken)
	if len(c.listResults) == 0 {
		c.cancel()
		return nil, context.Canceled
	}
	r := c.listResults[0]
	c.listResults = c.listResults[1:]
	return r.page, r.err
}

func (c *scriptedClient) ActiveLiveChatID(ctx context.Context) (string, error) {
	if len(c.activeResults) == 0 {
		c.cancel()
		return "", context.Canceled
	}
	c.activeCalls++
	r := c.activeResults[0]
	c.activeResults = c.activeResults[1:]
	return r.id, r.err
}

type fakeStore struct {
	inserted []Message
	seen     map[string]bool
	failIDs  map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: make(map[string]bool), failIDs: make(map[string]bool)}
}

func (s *fakeStore) InsertIfAbsent(ctx context.Context, msg Message) (bool, error) {
	if s.failIDs[msg.YouTubeID] {
		return false, errors.New("storage down")
	}
	if s.seen[msg.YouTubeID] {
		return false, nil
	}
	s.seen[msg.YouTubeID] = true
	s.inserted = append(s.inserted, msg)
	return true, nil
}

func textItem(id string) Item {
	return Item{
		ID:             id,
		Type:           "textMessageEvent",
		ChannelID:      "chan-1",
		DisplayName:    "alice",
		DisplayMessage: "msg " + id,
		PublishedAt:    "2026-03-01T12:00:00Z",
	}
}

func runFetcher(t *testing.T, client *scriptedClient, store *fakeStore, ref *LiveChatRef) (*Hub, *Subscription) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client.cancel = cancel

	hub := NewHub(64)
	sub := hub.Subscribe()

	f := &Fetcher{
		Client:          client,
		Store:           store,
		Hub:             hub,
		Ref:             ref,
		RecoveryBackoff: time.Millisecond,
	}
	if err := f.Run(ctx); !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want context cancellation", err)
	}
	if ctx.Err() == context.DeadlineExceeded {
		t.Fatal("fetcher did not finish its script before the deadline")
	}
	sub.Close()
	return hub, sub
}

func published(sub *Subscription) []string {
	var ids []string
	for msg := range sub.Events() {
		ids = append(ids, msg.YouTubeID)
	}
	return ids
}

func insertedIDs(store *fakeStore) []string {
	ids := make([]string, 0, len(store.inserted))
	for _, m := range store.inserted {
		ids = append(ids, m.YouTubeID)
	}
	return ids
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestFetcher_IngestsAndPublishesInOrder(t *testing.T) {
	client := &scriptedClient{
		listResults: []listResult{
			{page: &Page{Items: []Item{textItem("a"), textItem("b")}, NextPageToken: "t1", PollInterval: time.Millisecond}},
		},
	}
	store := newFakeStore()

	_, sub := runFetcher(t, client, store, NewLiveChatRef("lc1"))

	if got := insertedIDs(store); !equalIDs(got, []string{"a", "b"}) {
		t.Errorf("stored = %v, want [a b]", got)
	}
	if got := published(sub); !equalIDs(got, []string{"a", "b"}) {
		t.Errorf("published = %v, want [a b]", got)
	}
	if len(client.listTokens) < 2 || client.listTokens[0] != "" || client.listTokens[1] != "t1" {
		t.Errorf("page tokens = %v, want continuation carried to next poll", client.listTokens)
	}
}

func TestFetcher_DuplicateAcrossPollsStoredAndPublishedOnce(t *testing.T) {
	client := &scriptedClient{
		listResults: []listResult{
			{page: &Page{Items: []Item{textItem("a"), textItem("b")}, PollInterval: time.Millisecond}},
			{page: &Page{Items: []Item{textItem("b"), textItem("c")}, PollInterval: time.Millisecond}},
		},
	}
	store := newFakeStore()

	_, sub := runFetcher(t, client, store, NewLiveChatRef("lc1"))

	if got := insertedIDs(store); !equalIDs(got, []string{"a", "b", "c"}) {
		t.Errorf("stored = %v, want [a b c]", got)
	}
	if got := published(sub); !equalIDs(got, []string{"a", "b", "c"}) {
		t.Errorf("published = %v, want [a b c]", got)
	}
}

func TestFetcher_SkipsNonTextItems(t *testing.T) {
	super := textItem("x")
	super.Type = "superChatEvent"
	client := &scriptedClient{
		listResults: []listResult{
			{page: &Page{Items: []Item{super, textItem("a")}, PollInterval: time.Millisecond}},
		},
	}
	store := newFakeStore()

	_, sub := runFetcher(t, client, store, NewLiveChatRef("lc1"))

	if got := insertedIDs(store); !equalIDs(got, []string{"a"}) {
		t.Errorf("stored = %v, want [a]", got)
	}
	if got := published(sub); !equalIDs(got, []string{"a"}) {
		t.Errorf("published = %v, want [a]", got)
	}
}

func TestFetcher_MappingErrorSkipsOnlyThatItem(t *testing.T) {
	broken := textItem("bad")
	broken.DisplayName = ""
	client := &scriptedClient{
		listResults: []listResult{
			{page: &Page{Items: []Item{broken, textItem("a")}, PollInterval: time.Millisecond}},
		},
	}
	store := newFakeStore()

	_, sub := runFetcher(t, client, store, NewLiveChatRef("lc1"))

	if got := insertedIDs(store); !equalIDs(got, []string{"a"}) {
		t.Errorf("stored = %v, want [a]", got)
	}
	if got := published(sub); !equalIDs(got, []string{"a"}) {
		t.Errorf("published = %v, want [a]", got)
	}
	if client.activeCalls != 0 {
		t.Errorf("recovery ran %d times for a mapping error, want 0", client.activeCalls)
	}
}

func TestFetcher_StorageErrorSkipsPublish(t *testing.T) {
	client := &scriptedClient{
		listResults: []listResult{
			{page: &Page{Items: []Item{textItem("a"), textItem("b")}, PollInterval: time.Millisecond}},
		},
	}
	store := newFakeStore()
	store.failIDs["a"] = true

	_, sub := runFetcher(t, client, store, NewLiveChatRef("lc1"))

	if got := insertedIDs(store); !equalIDs(got, []string{"b"}) {
		t.Errorf("stored = %v, want [b]", got)
	}
	// A message that was not persisted must not reach subscribers.
	if got := published(sub); !equalIDs(got, []string{"b"}) {
		t.Errorf("published = %v, want [b]", got)
	}
}

func TestFetcher_ListFailureTriggersRecovery(t *testing.T) {
	client := &scriptedClient{
		listResults: []listResult{
			{err: errors.New("http 500")},
			{page: &Page{Items: []Item{textItem("a")}, PollInterval: time.Millisecond}},
		},
		activeResults: []activeResult{{id: "lc-new"}},
	}
	store := newFakeStore()
	ref := NewLiveChatRef("lc-old")

	runFetcher(t, client, store, ref)

	if ref.Get() != "lc-new" {
		t.Errorf("live chat ref = %q after recovery, want lc-new", ref.Get())
	}
	if client.activeCalls != 1 {
		t.Errorf("recovery calls = %d, want 1", client.activeCalls)
	}
	if len(client.listIDs) < 2 || client.listIDs[0] != "lc-old" || client.listIDs[1] != "lc-new" {
		t.Errorf("list ids = %v, want old id then adopted id", client.listIDs)
	}
	// Continuation token must be cleared after recovery.
	if len(client.listTokens) < 2 || client.listTokens[1] != "" {
		t.Errorf("page tokens = %v, want empty token after recovery", client.listTokens)
	}
}

func TestFetcher_BroadcastEndedTriggersRecovery(t *testing.T) {
	client := &scriptedClient{
		listResults: []listResult{
			{err: ErrBroadcastEnded},
		},
		activeResults: []activeResult{{id: "lc-2"}},
	}
	store := newFakeStore()
	ref := NewLiveChatRef("lc-1")

	runFetcher(t, client, store, ref)

	if ref.Get() != "lc-2" {
		t.Errorf("live chat ref = %q, want lc-2", ref.Get())
	}
}

func TestFetcher_StartsInRecoveryWhenRefEmpty(t *testing.T) {
	client := &scriptedClient{
		activeResults: []activeResult{
			{err: ErrNoActiveBroadcast},
			{id: "lc-9"},
		},
	}
	store := newFakeStore()
	ref := NewLiveChatRef("")

	runFetcher(t, client, store, ref)

	if ref.Get() != "lc-9" {
		t.Errorf("live chat ref = %q, want lc-9", ref.Get())
	}
	if client.activeCalls != 2 {
		t.Errorf("recovery calls = %d, want 2 (one failed, one adopted)", client.activeCalls)
	}
}
