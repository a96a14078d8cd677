// Package model adapts pretrained text-classification artifacts and inference
// backends to the score model port.
package model

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"poetry_server/core/port/out"

	"golang.org/x/text/unicode/norm"
)

// Special tokens of a BERT vocabulary.
const (
	TokenUnknown = "[UNK]"
	TokenClass   = "[CLS]"
	TokenSep     = "[SEP]"
	TokenPad     = "[PAD]"
)

const maxWordRunes = 100

// WordPieceTokenizer is a BERT-style tokenizer: basic whitespace/punctuation
// splitting followed by greedy longest-match-first WordPiece.
// It is read-only after construction.
type WordPieceTokenizer struct {
	vocab     map[string]int64
	lowerCase bool

	unkID, clsID, sepID, padID int64
}

// LoadWordPiece reads a vocab.txt file (one token per line, line number = id).
func LoadWordPiece(path string, lowerCase bool) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		tokens = append(tokens, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	return NewWordPiece(tokens, lowerCase)
}

// NewWordPiece builds a tokenizer from an ordered token list.
func NewWordPiece(tokens []string, lowerCase bool) (*WordPieceTokenizer, error) {
	vocab := make(map[string]int64, len(tokens))
	for i, tok := range tokens {
		if _, dup := vocab[tok]; !dup {
			vocab[tok] = int64(i)
		}
	}

	t := &WordPieceTokenizer{vocab: vocab, lowerCase: lowerCase}
	for _, special := range []struct {
		token string
		id    *int64
	}{
		{TokenUnknown, &t.unkID},
		{TokenClass, &t.clsID},
		{TokenSep, &t.sepID},
		{TokenPad, &t.padID},
	} {
		id, ok := vocab[special.token]
		if !ok {
			return nil, fmt.Errorf("vocab has no %s token", special.token)
		}
		*special.id = id
	}
	return t, nil
}

// VocabSize returns the number of distinct tokens.
func (t *WordPieceTokenizer) VocabSize() int { return len(t.vocab) }

// Encode tokenizes text into exactly maxLen positions: [CLS] tokens [SEP] [PAD]...
// Tokens beyond the budget are dropped from the end.
func (t *WordPieceTokenizer) Encode(text string, maxLen int) (*out.Encoding, error) {
	if maxLen < 2 {
		return nil, fmt.Errorf("max length %d leaves no room for special tokens", maxLen)
	}
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("text is not valid UTF-8")
	}

	budget := maxLen - 2
	tokens := make([]string, 0, maxLen)
	ids := make([]int64, 0, maxLen)
	tokens = append(tokens, TokenClass)
	ids = append(ids, t.clsID)

	var kept []string
	truncated := false
	for _, word := range t.basicTokenize(text) {
		pieces := t.wordPiece(word)
		if len(ids)-1+len(pieces) > budget {
			for _, p := range pieces {
				if len(ids)-1 >= budget {
					break
				}
				tokens = append(tokens, p)
				ids = append(ids, t.id(p))
			}
			truncated = true
			break
		}
		for _, p := range pieces {
			tokens = append(tokens, p)
			ids = append(ids, t.id(p))
		}
		kept = append(kept, word)
	}

	tokens = append(tokens, TokenSep)
	ids = append(ids, t.sepID)

	mask := make([]int64, maxLen)
	for i := range ids {
		mask[i] = 1
	}
	for len(ids) < maxLen {
		ids = append(ids, t.padID)
	}

	return &out.Encoding{
		IDs:           ids,
		AttentionMask: mask,
		TypeIDs:       make([]int64, maxLen),
		Tokens:        tokens,
		Text:          strings.Join(kept, " "),
		Truncated:     truncated,
	}, nil
}

func (t *WordPieceTokenizer) id(token string) int64 {
	if id, ok := t.vocab[token]; ok {
		return id
	}
	return t.unkID
}

// basicTokenize cleans text and splits it on whitespace and punctuation.
func (t *WordPieceTokenizer) basicTokenize(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == 0 || r == utf8.RuneError:
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsControl(r) || unicode.In(r, unicode.Cf):
		default:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	if t.lowerCase {
		cleaned = stripAccents(strings.ToLower(cleaned))
	}

	var words []string
	for _, field := range strings.Fields(cleaned) {
		start := 0
		runes := []rune(field)
		for i, r := range runes {
			if isPunctuation(r) {
				if start < i {
					words = append(words, string(runes[start:i]))
				}
				words = append(words, string(r))
				start = i + 1
			}
		}
		if start < len(runes) {
			words = append(words, string(runes[start:]))
		}
	}
	return words
}

// wordPiece splits a word into vocabulary pieces, or [UNK] if it cannot.
func (t *WordPieceTokenizer) wordPiece(word string) []string {
	runes := []rune(word)
	if len(runes) > maxWordRunes {
		return []string{TokenUnknown}
	}

	var pieces []string
	for start := 0; start < len(runes); {
		end := len(runes)
		match := ""
		for start < end {
			candidate := string(runes[start:end])
			if start > 0 {
				candidate = "##" + candidate
			}
			if _, ok := t.vocab[candidate]; ok {
				match = candidate
				break
			}
			end--
		}
		if match == "" {
			return []string{TokenUnknown}
		}
		pieces = append(pieces, match)
		start = end
	}
	return pieces
}

// stripAccents removes combining marks, which also drops Arabic diacritics.
func stripAccents(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}
