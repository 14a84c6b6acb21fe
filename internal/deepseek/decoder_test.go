package deepseek

import (
	"testing"
)

func deltas(frames []Frame) []string {
	var out []string
	for _, f := range frames {
		if f.Kind == FrameDelta {
			out = append(out, f.Payload)
		}
	}
	return out
}

func decodeAll(d *FrameDecoder, chunks []string) []Frame {
	var frames []Frame
	for _, c := range chunks {
		frames = append(frames, d.Feed(c)...)
	}
	frames = append(frames, d.Flush()...)
	return frames
}

func TestDecoderSingleChunk(t *testing.T) {
	d := NewFrameDecoder()
	frames := d.Feed("data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n")

	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if frames[0].Kind != FrameDelta || frames[0].Payload != "Hello" {
		t.Errorf("Expected delta 'Hello', got kind=%d payload=%q", frames[0].Kind, frames[0].Payload)
	}
}

func TestDecoderFrameSplitAcrossChunks(t *testing.T) {
	// Mirrors a real network read splitting one event mid-payload.
	d := NewFrameDecoder()

	frames := d.Feed("data: {\"choices\":[{\"delta\":{\"content\":\"Hel")
	if len(frames) != 0 {
		t.Fatalf("Expected no frames for partial line, got %d", len(frames))
	}

	frames = d.Feed("lo\"}}]}\n\ndata: [DONE]\n")
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if frames[0].Kind != FrameDelta || frames[0].Payload != "Hello" {
		t.Errorf("Expected delta 'Hello', got kind=%d payload=%q", frames[0].Kind, frames[0].Payload)
	}
	if frames[1].Kind != FrameDone {
		t.Errorf("Expected done frame, got kind=%d", frames[1].Kind)
	}
	if !d.Done() {
		t.Error("Expected decoder to report done")
	}
}

func TestDecoderRechunkingIdempotence(t *testing.T) {
	raw := "data: {\"choices\":[{\"delta\":{\"content\":\"one \"}}]}\n" +
		": keepalive comment\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"two \"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"three\"}}]}\n" +
		"data: [DONE]\n"

	whole := decodeAll(NewFrameDecoder(), []string{raw})
	want := deltas(whole)
	if len(want) != 3 {
		t.Fatalf("Baseline decode produced %d deltas, want 3", len(want))
	}

	// Every possible two-way split, including splits mid-frame, must decode to
	// the same delta sequence as the unsplit input.
	for cut := 0; cut <= len(raw); cut++ {
		got := deltas(decodeAll(NewFrameDecoder(), []string{raw[:cut], raw[cut:]}))
		if len(got) != len(want) {
			t.Fatalf("Split at %d: got %d deltas, want %d", cut, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Split at %d: delta %d = %q, want %q", cut, i, got[i], want[i])
			}
		}
	}

	// Byte-at-a-time delivery.
	var chunks []string
	for i := 0; i < len(raw); i++ {
		chunks = append(chunks, raw[i:i+1])
	}
	got := deltas(decodeAll(NewFrameDecoder(), chunks))
	if len(got) != len(want) {
		t.Fatalf("Byte-at-a-time: got %d deltas, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Byte-at-a-time: delta %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDecoderMalformedPayload(t *testing.T) {
	d := NewFrameDecoder()
	frames := d.Feed("data: {not json\ndata: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n")

	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if frames[0].Kind != FrameMalformed {
		t.Errorf("Expected malformed frame first, got kind=%d", frames[0].Kind)
	}
	if frames[1].Kind != FrameDelta || frames[1].Payload != "ok" {
		t.Errorf("Expected stream to continue past malformed frame, got kind=%d payload=%q", frames[1].Kind, frames[1].Payload)
	}
}

func TestDecoderIgnoresNonDataLines(t *testing.T) {
	d := NewFrameDecoder()
	frames := d.Feed("event: message\nid: 7\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n")

	if len(frames) != 1 {
		t.Fatalf("Expected only the data line to decode, got %d frames", len(frames))
	}
	if frames[0].Payload != "x" {
		t.Errorf("Expected payload 'x', got %q", frames[0].Payload)
	}
}

func TestDecoderStopsAfterDone(t *testing.T) {
	d := NewFrameDecoder()
	frames := d.Feed("data: [DONE]\ndata: {\"choices\":[{\"delta\":{\"content\":\"late\"}}]}\n")

	if len(frames) != 1 || frames[0].Kind != FrameDone {
		t.Fatalf("Expected exactly the done frame, got %v", frames)
	}

	if got := d.Feed("data: {\"choices\":[{\"delta\":{\"content\":\"more\"}}]}\n"); got != nil {
		t.Errorf("Expected no frames after done, got %v", got)
	}
	if got := d.Flush(); got != nil {
		t.Errorf("Expected no frames from flush after done, got %v", got)
	}
}

func TestDecoderFlushDrainsUnterminatedLine(t *testing.T) {
	d := NewFrameDecoder()
	if frames := d.Feed("data: {\"choices\":[{\"delta\":{\"content\":\"tail\"}}]}"); len(frames) != 0 {
		t.Fatalf("Expected no frames before flush, got %d", len(frames))
	}
	frames := d.Flush()
	if len(frames) != 1 || frames[0].Payload != "tail" {
		t.Fatalf("Expected flushed delta 'tail', got %v", frames)
	}
}

func TestDecoderCRLF(t *testing.T) {
	d := NewFrameDecoder()
	frames := d.Feed("data: {\"choices\":[{\"delta\":{\"content\":\"win\"}}]}\r\n")
	if len(frames) != 1 || frames[0].Payload != "win" {
		t.Fatalf("Expected delta 'win' from CRLF line, got %v", frames)
	}
}
