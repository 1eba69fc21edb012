// Package store persists assembled conversations.
//
// FileSink writes one JSON document per conversation to the logs directory.
// Index keeps a chromem-go vector index of titles and summaries for semantic
// search. Publisher announces saved conversations on NATS. Watcher reports
// changes to the logs directory so cached listings can be invalidated.
//
// Store composes the three: the file write must succeed, while indexing and
// publishing failures are logged and otherwise ignored.
package store
