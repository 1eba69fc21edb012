// Package mcp exposes chat history over the Model Context Protocol.
//
// The server runs on stdio and registers three tools: save_chat_history
// assembles and stores a conversation, search_chat_history queries the
// semantic index and list_projects summarizes what has been saved.
package mcp
