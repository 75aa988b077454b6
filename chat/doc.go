// Package chat contains the live chat ingestion pipeline: the poll loop against
// the YouTube live chat API, the canonical message type, and the in-process
// fan-out hub.
//
// The pipeline has one producer and many consumers:
//   - Fetcher polls liveChatMessages.list for the active broadcast, maps each
//     textMessageEvent into a Message, persists it through a Store (at most once
//     per youtube id) and publishes newly stored messages to the Hub.
//   - Hub delivers a copy of every published message to each live Subscription.
//     A subscription that cannot keep up is dropped rather than slowing the
//     producer or other subscribers.
//
// When a poll fails or the upstream reports the broadcast has ended, the
// fetcher re-resolves the active broadcast's live chat id and resumes with a
// cleared page token. Resolution retries forever; a broadcast is expected to
// eventually exist.
package chat
