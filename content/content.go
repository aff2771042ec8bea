// Package content implements the ordered, author-tagged chunk sequence that
// backs one document's text. Positions are 0-based UTF-8 codepoint offsets
// into the concatenation of all chunks.
package content

import (
	"errors"
	"fmt"
)

// UserID identifies a user across a session. 0 is reserved for the server
// itself, used as the owner of documents nobody created. Chunks with no
// attributed user carry a nil Author rather than this id.
type UserID uint32

// ServerUserID is the reserved id for the server acting as a document owner
// or chunk author.
const ServerUserID UserID = 0

// ErrOutOfBounds is returned when a position or length falls outside the
// content's current length.
var ErrOutOfBounds = errors.New("content: position out of bounds")

// Chunk is a contiguous run of text attributed to a single author. Author is
// nil for chunks with no attributed user (e.g. a document's initial seed
// text).
type Chunk struct {
	Text   string
	Author *UserID
}

func sameAuthor(a, b *UserID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneAuthor(a *UserID) *UserID {
	if a == nil {
		return nil
	}
	u := *a
	return &u
}

// Content is an ordered sequence of chunks. The zero value is not usable;
// construct with New.
type Content struct {
	chunks []Chunk
}

// New returns a Content seeded with a single chunk of text, or an empty
// Content if text is "".
func New(text string, author *UserID) *Content {
	c := &Content{}
	if text != "" {
		c.chunks = append(c.chunks, Chunk{Text: text, Author: cloneAuthor(author)})
	}
	return c
}

// Length returns the content length in codepoints.
func (c *Content) Length() int {
	n := 0
	for _, ch := range c.chunks {
		n += len([]rune(ch.Text))
	}
	return n
}

// Text returns the full concatenated text.
func (c *Content) Text() string {
	s := ""
	for _, ch := range c.chunks {
		s += ch.Text
	}
	return s
}

// Chunks returns a snapshot of the current chunk sequence, safe for the
// caller to retain (it does not alias internal storage).
func (c *Content) Chunks() []Chunk {
	out := make([]Chunk, len(c.chunks))
	for i, ch := range c.chunks {
		out[i] = Chunk{Text: ch.Text, Author: cloneAuthor(ch.Author)}
	}
	return out
}

// chunkRunes is a rune-addressable view of one chunk, used internally so
// insert/delete can work in codepoint space without repeatedly converting
// the whole document.
type chunkRunes struct {
	runes  []rune
	author *UserID
}

func (c *Content) toRunes() []chunkRunes {
	out := make([]chunkRunes, len(c.chunks))
	for i, ch := range c.chunks {
		out[i] = chunkRunes{runes: []rune(ch.Text), author: ch.Author}
	}
	return out
}

func (c *Content) fromRunes(rs []chunkRunes) {
	chunks := make([]Chunk, 0, len(rs))
	for _, r := range rs {
		if len(r.runes) == 0 {
			continue
		}
		if n := len(chunks); n > 0 && sameAuthor(chunks[n-1].Author, r.author) {
			chunks[n-1].Text += string(r.runes)
			continue
		}
		chunks = append(chunks, Chunk{Text: string(r.runes), Author: r.author})
	}
	c.chunks = chunks
}

// InsertAt inserts text at pos (codepoint offset), attributing it to author
// (nil for unattributed). pos must be in [0, Length()].
func (c *Content) InsertAt(pos int, text string, author *UserID) error {
	if pos < 0 || pos > c.Length() {
		return fmt.Errorf("%w: insert pos %d, length %d", ErrOutOfBounds, pos, c.Length())
	}
	if text == "" {
		return nil
	}
	rs := c.toRunes()
	out := make([]chunkRunes, 0, len(rs)+1)
	offset := 0
	inserted := false
	newChunk := chunkRunes{runes: []rune(text), author: cloneAuthor(author)}
	for _, r := range rs {
		end := offset + len(r.runes)
		if !inserted && pos >= offset && pos <= end {
			left := r.runes[:pos-offset]
			right := r.runes[pos-offset:]
			if len(left) > 0 {
				out = append(out, chunkRunes{runes: left, author: r.author})
			}
			out = append(out, newChunk)
			if len(right) > 0 {
				out = append(out, chunkRunes{runes: right, author: r.author})
			}
			inserted = true
		} else {
			out = append(out, r)
		}
		offset = end
	}
	if !inserted {
		out = append(out, newChunk)
	}
	c.fromRunes(out)
	return nil
}

// DeleteAt removes length codepoints starting at pos.
func (c *Content) DeleteAt(pos, length int) error {
	if length == 0 {
		return nil
	}
	if pos < 0 || length < 0 || pos+length > c.Length() {
		return fmt.Errorf("%w: delete pos %d len %d, content length %d", ErrOutOfBounds, pos, length, c.Length())
	}
	rs := c.toRunes()
	out := make([]chunkRunes, 0, len(rs))
	offset := 0
	end := pos + length
	for _, r := range rs {
		cEnd := offset + len(r.runes)
		// Portions of this chunk before [pos,end) and after it survive,
		// retaining the original author, per the split-author invariant.
		delStart := maxInt(pos, offset)
		delEnd := minInt(end, cEnd)
		if delStart < delEnd {
			before := r.runes[:delStart-offset]
			after := r.runes[delEnd-offset:]
			if len(before) > 0 {
				out = append(out, chunkRunes{runes: before, author: r.author})
			}
			if len(after) > 0 {
				out = append(out, chunkRunes{runes: after, author: r.author})
			}
		} else {
			out = append(out, r)
		}
		offset = cEnd
	}
	c.fromRunes(out)
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
