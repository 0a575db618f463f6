// Package naming derives canonical metric names.
//
// A canonical name is a dotted string made of a namespace, one or more name
// parts and an optional type postfix. Every segment is sanitized on its own,
// so a dot inside a raw segment survives as a separator.
package naming

import (
	"strings"
	"unicode/utf8"

	"github.com/elastic/go-freelru"
	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
	"github.com/zeebo/xxh3"
)

// Separator joins the segments of a canonical name.
const Separator = "."

const sanitizeCacheSize = 4096

var sanitized *freelru.SyncedLRU[string, string]

func init() {
	var err error
	sanitized, err = freelru.NewSynced[string, string](sanitizeCacheSize, hashString)
	if err != nil {
		panic(err)
	}
}

func hashString(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

const hexDigits = "0123456789ABCDEF"

func legal(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
		r == '.' || r == '_' || r == '-'
}

// Sanitize escapes every character other than ASCII letters, digits, '.',
// '_' and '-' as '_' followed by the upper-case hex of its UTF-8 bytes.
// Surrounding whitespace is trimmed first.
func Sanitize(segment string) string {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return ""
	}
	if out, ok := sanitized.Get(segment); ok {
		return out
	}

	clean := true
	for _, r := range segment {
		if !legal(r) {
			clean = false
			break
		}
	}
	if clean {
		sanitized.Add(segment, segment)
		return segment
	}

	// Invalid UTF-8 is escaped byte by byte.
	var b strings.Builder
	b.Grow(len(segment) * 2)
	for i := 0; i < len(segment); {
		r, n := utf8.DecodeRuneInString(segment[i:])
		if legal(r) {
			b.WriteRune(r)
			i += n
			continue
		}
		b.WriteByte('_')
		for _, c := range []byte(segment[i : i+n]) {
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
		i += n
	}
	out := b.String()
	sanitized.Add(segment, out)
	return out
}

// Join sanitizes parts and joins the non-blank ones with Separator.
func Join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := Sanitize(p); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, Separator)
}

// Build returns the canonical name for a metric of the given kind. The
// top-level name must not be blank. The kind's postfix is appended when the
// policy applies to it and the name does not already end with it.
func Build(namespace string, kind metrics.Kind, policy PostfixPolicy, topLevelName string,
	additionalNames ...string,
) (string, error) {
	if strings.TrimSpace(topLevelName) == "" {
		return "", errors.InvalidArgument("top-level name must not be blank").
			WithDetail("namespace", namespace)
	}

	parts := make([]string, 0, len(additionalNames)+2)
	parts = append(parts, namespace, topLevelName)
	parts = append(parts, additionalNames...)
	name := Join(parts...)

	if postfix := kind.Postfix(); postfix != "" && policy.Applies(kind) && !strings.HasSuffix(name, postfix) {
		name += postfix
	}
	return name, nil
}

// IsUnder reports whether name lies strictly inside namespace.
func IsUnder(name, namespace string) bool {
	if namespace == "" {
		return true
	}
	return len(name) > len(namespace) && strings.HasPrefix(name, namespace) &&
		name[len(namespace)] == Separator[0]
}
