// Package services wires the chat log pipeline from configuration.
//
// Build creates the secrets scrubber, the optional LLM client, the lazily
// loaded local models, the pipeline stages and the store, and returns them
// behind a Registry. Both binaries start from here.
package services
