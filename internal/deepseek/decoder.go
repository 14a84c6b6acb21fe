package deepseek

import (
	"encoding/json"
	"strings"
)

// FrameKind classifies a decoded stream frame.
type FrameKind int

const (
	// FrameDelta carries an incremental fragment of assistant text.
	FrameDelta FrameKind = iota
	// FrameDone marks the upstream [DONE] sentinel; nothing follows it.
	FrameDone
	// FrameMalformed marks a data line whose payload did not parse. Consumers
	// skip these; one corrupt frame must not lose the rest of the response.
	FrameMalformed
)

// Frame is one decoded unit of a streamed chat-completion response.
// For FrameDelta, Payload is the extracted content fragment (possibly empty).
// For FrameMalformed, Payload is the raw payload that failed to parse.
type Frame struct {
	Kind    FrameKind
	Payload string
}

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// streamChunk mirrors one SSE event body of the chat-completions stream.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// FrameDecoder turns raw response-body chunks into discrete frames. Network
// reads may split one event line across chunks or bundle several lines into
// one chunk; the decoder holds any trailing partial line and prepends it to
// the next chunk, so chunk boundaries never alter the decoded output.
//
// A decoder serves exactly one stream; create a new one per request.
type FrameDecoder struct {
	pending string
	done    bool
}

// NewFrameDecoder creates a decoder for a single stream.
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{}
}

// Feed consumes the next raw chunk and returns the frames completed by it.
// After a done frame has been produced, further input is ignored.
func (d *FrameDecoder) Feed(chunk string) []Frame {
	if d.done {
		return nil
	}

	buf := d.pending + chunk
	lines := strings.Split(buf, "\n")
	// The final element has no terminating newline yet; hold it for the next
	// chunk rather than decoding a truncated payload.
	d.pending = lines[len(lines)-1]
	return d.decodeLines(lines[:len(lines)-1])
}

// Flush decodes any held partial line. Call once at end of input for streams
// whose last event line lacks a trailing newline.
func (d *FrameDecoder) Flush() []Frame {
	if d.done || d.pending == "" {
		return nil
	}
	line := d.pending
	d.pending = ""
	return d.decodeLines([]string{line})
}

// Done reports whether the [DONE] sentinel has been seen.
func (d *FrameDecoder) Done() bool {
	return d.done
}

func (d *FrameDecoder) decodeLines(lines []string) []Frame {
	var frames []Frame
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			// Comments, event names, blank keepalive lines.
			continue
		}
		payload := strings.TrimSpace(line[len(dataPrefix):])
		if payload == doneSentinel {
			d.done = true
			frames = append(frames, Frame{Kind: FrameDone})
			return frames
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			frames = append(frames, Frame{Kind: FrameMalformed, Payload: payload})
			continue
		}

		var content strings.Builder
		for _, choice := range chunk.Choices {
			content.WriteString(choice.Delta.Content)
		}
		frames = append(frames, Frame{Kind: FrameDelta, Payload: content.String()})
	}
	return frames
}
