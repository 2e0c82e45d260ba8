package trigram

import "strings"

// Token represents a single corpus token, either a bare word or a word
// paired with its part-of-speech tag
type Token struct {
	Word   string `json:"word"`             // Surface form
	Tag    string `json:"tag,omitempty"`    // Part-of-speech tag (empty for plain tokens)
	Tagged bool   `json:"tagged,omitempty"` // Whether the token carries a tag
}

// Plain creates an untagged token
func Plain(word string) Token {
	return Token{Word: word}
}

// WithTag creates a (word, tag) token
func WithTag(word, tag string) Token {
	return Token{Word: word, Tag: tag, Tagged: true}
}

// String returns the token in word/TAG notation for tagged tokens
func (t Token) String() string {
	if t.Tagged {
		return t.Word + "/" + t.Tag
	}
	return t.Word
}

// TokenSequence is a slice of tokens
type TokenSequence []Token

// PlainSequence wraps bare words as plain tokens
func PlainSequence(words []string) TokenSequence {
	seq := make(TokenSequence, len(words))
	for i, w := range words {
		seq[i] = Plain(w)
	}
	return seq
}

// TaggedSequence wraps (word, tag) pairs as tagged tokens
func TaggedSequence(pairs [][2]string) TokenSequence {
	seq := make(TokenSequence, len(pairs))
	for i, p := range pairs {
		seq[i] = WithTag(p[0], p[1])
	}
	return seq
}

// Words returns the surface forms of the sequence
func (ts TokenSequence) Words() []string {
	words := make([]string, len(ts))
	for i, t := range ts {
		words[i] = t.Word
	}
	return words
}

// Context is the pair of tokens preceding a successor in a trigram
type Context struct {
	W1 Token `json:"w1"`
	W2 Token `json:"w2"`
}

// NewContext creates a context from two tokens
func NewContext(w1, w2 Token) Context {
	return Context{W1: w1, W2: w2}
}

// Advance shifts the context by one token: (w1, w2) -> (w2, next)
func (c Context) Advance(next Token) Context {
	return Context{W1: c.W2, W2: next}
}

// String returns the context as a space-separated string
func (c Context) String() string {
	var b strings.Builder
	b.WriteString(c.W1.String())
	b.WriteString(" ")
	b.WriteString(c.W2.String())
	return b.String()
}
