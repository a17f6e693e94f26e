// Package chat contains the message ingestion core: the recency cache used for
// duplicate suppression, the append-only message store, the lazily populated
// avatar cache and the pipeline that ties them together.
//
// Flow:
//   - A Transport (TwitchTransport in production) delivers one Event per inbound
//     chat line. Events from the authenticated user are marked Self and never
//     reach the store.
//   - Pipeline.OnChatEvent resolves the display identity, consults the
//     RecencyCache and, on acceptance, records the message, appends it to the
//     Store and asks the Renderer to update the view for that single message.
//   - Profile images are resolved asynchronously. The pipeline only asks the
//     Fetcher once per username; a message whose avatar is still unknown is
//     rendered without one.
//
// None of the types here lock. They are owned by a single session event loop
// (see package session) and must only be touched from it.
package chat
