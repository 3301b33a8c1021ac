package tracker

import (
	"regexp"
	"strings"
	"sync"
)

// DefaultIdentifier is the fence language tag used when none is configured.
const DefaultIdentifier = "sim"

// Block is one fenced tracker region found in chat text.
// It is derived fresh on every extraction and never stored.
type Block struct {
	Raw        string
	Identifier string
	Payload    string
	Start      int
	End        int
}

var patterns sync.Map // identifier -> *regexp.Regexp

// fencePattern matches ```<identifier> ... ``` non-greedily across newlines.
// The identifier must be followed by whitespace or the closing fence so that
// "sim" does not match a "simulation" block.
func fencePattern(identifier string) *regexp.Regexp {
	if re, ok := patterns.Load(identifier); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile("(?s)```" + regexp.QuoteMeta(identifier) + "(\\s.*?)?```")
	patterns.Store(identifier, re)
	return re
}

// Extract returns the first complete tracker block in text.
// An unterminated fence (for example one still streaming in) is not a block.
func Extract(text, identifier string) (Block, error) {
	re := fencePattern(identifier)
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return Block{}, ErrNotFound
	}
	return blockAt(text, identifier, loc), nil
}

// ExtractAll returns every complete tracker block in text, in order.
func ExtractAll(text, identifier string) []Block {
	re := fencePattern(identifier)
	locs := re.FindAllStringSubmatchIndex(text, -1)
	blocks := make([]Block, 0, len(locs))
	for _, loc := range locs {
		blocks = append(blocks, blockAt(text, identifier, loc))
	}
	return blocks
}

// HasBlock reports whether text contains at least one complete tracker block.
func HasBlock(text, identifier string) bool {
	return fencePattern(identifier).MatchString(text)
}

// Fence wraps a serialized payload in tracker fence delimiters.
func Fence(identifier, body string) string {
	return "```" + identifier + "\n" + strings.TrimSpace(body) + "\n```"
}

func blockAt(text, identifier string, loc []int) Block {
	b := Block{
		Raw:        text[loc[0]:loc[1]],
		Identifier: identifier,
		Start:      loc[0],
		End:        loc[1],
	}
	if loc[2] >= 0 {
		b.Payload = strings.TrimSpace(text[loc[2]:loc[3]])
	}
	return b
}
