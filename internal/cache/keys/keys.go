// Package keys builds deterministic cache keys for Features API responses.
package keys

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
)

const namespace = "resp"

// Query is the part of a features request that determines its response.
type Query struct {
	Layer    string
	Endpoint string
	Table    string
	BBox     model.BBox
	Limit    int
	Offset   int
}

// Key renders resp:<layer>:<table>:l=<limit>:o=<offset>:f=<hash>. The hash
// covers endpoint and bbox so equal rectangles share an entry across clients.
func Key(q Query) string {
	layer := sanitize(strings.TrimSpace(q.Layer))
	table := sanitize(strings.TrimSpace(q.Table))
	if table == "" {
		table = "-"
	}
	sum := xxhash.Sum64String(strings.TrimSpace(q.Endpoint) + "|" + q.BBox.String())
	return fmt.Sprintf("%s:%s:%s:l=%s:o=%s:f=%016x",
		namespace, layer, table, strconv.Itoa(q.Limit), strconv.Itoa(q.Offset), sum)
}

// LayerPrefix matches every key for a layer, used on invalidation.
func LayerPrefix(layer string) string {
	return namespace + ":" + sanitize(strings.TrimSpace(layer)) + ":"
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// ':' is the segment separator, so it is replaced too
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
