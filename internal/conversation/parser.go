package conversation

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxErrors bounds how many line errors a ParseResult keeps.
const maxErrors = 10

// transcriptLine is one line of a JSONL transcript.
type transcriptLine struct {
	Type      string          `json:"type"`
	Message   json.RawMessage `json:"message,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

type transcriptMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentBlock is one element of a structured content list.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func joinText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		if (b.Type == "text" || b.Type == "") && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ParseResult holds the messages of a transcript and the lines that failed.
type ParseResult struct {
	SessionID  string
	Messages   []RawMessage
	ErrorCount int
	Errors     []ParseError
}

// ParseError is a failure at a specific line.
type ParseError struct {
	Line  int
	Error string
}

func (r *ParseResult) addError(line int, format string, args ...any) {
	r.ErrorCount++
	if len(r.Errors) < maxErrors {
		r.Errors = append(r.Errors, ParseError{Line: line, Error: fmt.Sprintf(format, args...)})
	}
}

// ParseTranscript reads a JSONL transcript. Only user and assistant lines
// with text are kept; malformed lines are counted and skipped.
func ParseTranscript(path string) (*ParseResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	result := &ParseResult{
		SessionID: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Messages:  make([]RawMessage, 0),
	}

	scanner := bufio.NewScanner(file)
	const maxScanTokenSize = 10 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var tl transcriptLine
		if err := json.Unmarshal(line, &tl); err != nil {
			result.addError(lineNum, "JSON parse error: %v", err)
			continue
		}
		if tl.Type != "user" && tl.Type != "assistant" {
			continue
		}
		if tl.SessionID != "" {
			result.SessionID = tl.SessionID
		}

		content := contentText(tl.Message)
		role := tl.Type
		if content == "" {
			var tm transcriptMessage
			if err := json.Unmarshal(tl.Message, &tm); err != nil {
				result.addError(lineNum, "message parse error: %v", err)
				continue
			}
			content = contentText(tm.Content)
			if tm.Role != "" {
				role = tm.Role
			}
		}
		if strings.TrimSpace(content) == "" {
			continue
		}

		result.Messages = append(result.Messages, RawMessage{
			Role:      ParseRole(role),
			Content:   content,
			Timestamp: tl.Timestamp,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning file: %w", err)
	}
	return result, nil
}

// ReadRequest loads a Request from path. Files ending in .jsonl are read as
// transcripts; anything else must be a JSON array of messages or an object
// with a "messages" field.
func ReadRequest(path string) (Request, error) {
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		res, err := ParseTranscript(path)
		if err != nil {
			return Request{}, err
		}
		return Request{ID: res.SessionID, Messages: res.Messages}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Request{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return DecodeRequest(data)
}

// DecodeRequest decodes a JSON array of messages or a Request object.
func DecodeRequest(data []byte) (Request, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var msgs []RawMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			return Request{}, fmt.Errorf("decoding messages: %w", err)
		}
		return Request{Messages: msgs}, nil
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("decoding request: %w", err)
	}
	return req, nil
}
