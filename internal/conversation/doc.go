// Package conversation assembles enriched conversation records from raw chat
// messages.
//
// An Assembler runs each conversation through a fixed sequence of states:
//
//	RECEIVED -> SUMMARIZING -> CLASSIFYING(i=1..n) -> ASSEMBLED
//
// The conversation is summarized once, then every message is classified and
// enriched in input order. Nothing in this sequence retries; the summarizer,
// classifier and aggregator each degrade internally, so the only error an
// Assembler reports is ErrCredentialRequired, checked before any work starts.
//
// A failure while processing message k, including a panic, marks that
// message as type "error" with default enrichment and leaves message k+1
// untouched.
//
// # Input formats
//
// ReadRequest loads messages from a JSON array, a JSON object with a
// "messages" field, or a JSONL transcript as written by coding assistants.
//
// # Concurrency
//
// A single conversation is processed sequentially. AssembleBatch processes
// independent conversations on a bounded number of goroutines and returns
// records in input order.
package conversation
