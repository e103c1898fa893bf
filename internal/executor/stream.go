package executor

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

const maxLineSize = 4 * 1024 * 1024

type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ReadStream accumulates choices[0].delta.content from "data:" lines of an
// event stream. Malformed lines and the [DONE] sentinel are skipped. When no
// delta content arrives the non-blank lines are joined and read as a single
// completion object's choices[0].message.content.
func ReadStream(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var content strings.Builder
	var body []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		body = append(body, line)

		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimLeft(line[len("data:"):], " \t")
		if payload == "[DONE]" {
			continue
		}
		var chunk completionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != nil {
			content.WriteString(*chunk.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	if content.Len() == 0 && len(body) > 0 {
		var full completionChunk
		if err := json.Unmarshal([]byte(strings.Join(body, "")), &full); err == nil && len(full.Choices) > 0 {
			return full.Choices[0].Message.Content, nil
		}
	}
	return content.String(), nil
}
