// Package transcript holds the authoritative ordered conversation log for
// a live session.
//
// Core types:
//   - Item: one message or breadcrumb in the log
//   - Store: ordered, in-place-mutable item list with deferred subscriber
//     notification
//   - Turn: derived pairing of an assistant utterance with its replies
//
// The store guarantees exactly one notification per mutating call, flushed
// asynchronously so subscribers never run inside the mutation.
package transcript
