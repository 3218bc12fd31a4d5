package llm

import (
	"context"
	"strings"
)

// Delimiters around model reasoning in streamed output.
const (
	ThinkOpen  = "<think>"
	ThinkClose = "</think>"
)

// ChunkKind tags a piece of streamed text.
type ChunkKind int

const (
	// KindContent is final answer text.
	KindContent ChunkKind = iota
	// KindReasoning is text between ThinkOpen and ThinkClose.
	KindReasoning
)

// String returns the kind name.
func (k ChunkKind) String() string {
	if k == KindReasoning {
		return "reasoning"
	}
	return "content"
}

// Tagged is a piece of streamed text with its kind.
type Tagged struct {
	Kind ChunkKind
	Text string
}

// ThinkSplitter tracks whether a stream is inside a think block and tags
// each chunk accordingly. Delimiters are consumed, never emitted. A
// delimiter split across two chunks is not recognised.
type ThinkSplitter struct {
	inThink bool
}

// InThink reports whether the splitter is currently inside a think block.
func (s *ThinkSplitter) InThink() bool {
	return s.inThink
}

// Split tags chunk. A chunk that is only a delimiter yields nothing.
func (s *ThinkSplitter) Split(chunk string) []Tagged {
	var out []Tagged
	rest := chunk
	for rest != "" {
		delim := ThinkOpen
		if s.inThink {
			delim = ThinkClose
		}

		i := strings.Index(rest, delim)
		if i < 0 {
			out = append(out, Tagged{Kind: s.kind(), Text: rest})
			break
		}
		if i > 0 {
			out = append(out, Tagged{Kind: s.kind(), Text: rest[:i]})
		}
		s.inThink = !s.inThink
		rest = rest[i+len(delim):]
	}
	return out
}

func (s *ThinkSplitter) kind() ChunkKind {
	if s.inThink {
		return KindReasoning
	}
	return KindContent
}

// StreamResult is the accumulated output of a stream.
type StreamResult struct {
	Content   string
	Reasoning string
	Usage     *TokenUsage
}

// Collect drains ch, calling onChunk for every tagged piece, and returns the
// accumulated content and reasoning. It stops early on a chunk error or
// when ctx is done.
func Collect(ctx context.Context, ch <-chan StreamChunk, onChunk func(Tagged)) (StreamResult, error) {
	var (
		splitter  ThinkSplitter
		content   strings.Builder
		reasoning strings.Builder
		res       StreamResult
	)

	for {
		select {
		case <-ctx.Done():
			return res, NewError("stream", ctx.Err(), false)
		case chunk, ok := <-ch:
			if !ok {
				res.Content = content.String()
				res.Reasoning = reasoning.String()
				return res, nil
			}
			if chunk.Error != nil {
				res.Content = content.String()
				res.Reasoning = reasoning.String()
				return res, chunk.Error
			}
			for _, piece := range splitter.Split(chunk.Content) {
				if piece.Kind == KindReasoning {
					reasoning.WriteString(piece.Text)
				} else {
					content.WriteString(piece.Text)
				}
				if onChunk != nil {
					onChunk(piece)
				}
			}
			if chunk.Usage != nil {
				res.Usage = chunk.Usage
			}
		}
	}
}

// StripThink removes every think block from text.
func StripThink(text string) string {
	var s ThinkSplitter
	var b strings.Builder
	for _, piece := range s.Split(text) {
		if piece.Kind == KindContent {
			b.WriteString(piece.Text)
		}
	}
	return b.String()
}
