// Package token finds $secret{alias} markers in text and substitutes them
// with resolved secret values.
package token

import "strings"

const (
	// Marker opens a protected token.
	Marker = "$secret{"
	// Terminator closes a protected token.
	Terminator = "}"
	// AliasPrefix marks a configuration value that names a secret alias as a whole.
	AliasPrefix = "secretAlias:"
)

// ProtectedToken is one located $secret{...} occurrence.
// StartIndex is the offset of the marker and EndIndex the offset of the
// closing brace.
type ProtectedToken struct {
	StartIndex int
	EndIndex   int
	Value      string
}

// ValueIndex returns the offset of the alias's first character.
func (t ProtectedToken) ValueIndex() int {
	return t.StartIndex + len(Marker)
}

// Resolver supplies decrypted values for protected aliases.
type Resolver interface {
	IsInitialized() bool
	IsTokenProtected(value string) bool
	Resolve(value string) string
}

// ExtractProtectedTokens returns the tokens in text in left-to-right order.
// The first closing brace after a marker ends the token; an unterminated
// marker stops the scan and the remainder stays literal.
func ExtractProtectedTokens(text string) []ProtectedToken {
	var tokens []ProtectedToken
	pos := 0
	for {
		start := strings.Index(text[pos:], Marker)
		if start < 0 {
			return tokens
		}
		start += pos
		valueStart := start + len(Marker)

		end := strings.Index(text[valueStart:], Terminator)
		if end < 0 {
			return tokens
		}
		end += valueStart

		tokens = append(tokens, ProtectedToken{
			StartIndex: start,
			EndIndex:   end,
			Value:      text[valueStart:end],
		})
		pos = end + len(Terminator)
	}
}

// Resolve substitutes every protected token in text. Text without tokens
// is itself treated as an alias and resolved when protected. Tokens the
// resolver does not protect are left as written.
func Resolve(text string, resolver Resolver) string {
	if resolver == nil || !resolver.IsInitialized() {
		return text
	}

	tokens := ExtractProtectedTokens(text)
	if len(tokens) == 0 {
		if resolver.IsTokenProtected(text) {
			return resolver.Resolve(text)
		}
		return text
	}

	// Highest offset first keeps earlier offsets valid.
	out := text
	for i := len(tokens) - 1; i >= 0; i-- {
		tok := tokens[i]
		if !resolver.IsTokenProtected(tok.Value) {
			continue
		}
		out = out[:tok.StartIndex] + resolver.Resolve(tok.Value) + out[tok.EndIndex+len(Terminator):]
	}
	return out
}

// ResolveMap returns a copy of values with Resolve applied to each entry.
// A value of the form "secretAlias:<alias>" is replaced by the resolved alias.
func ResolveMap(values map[string]string, resolver Resolver) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if alias, ok := strings.CutPrefix(v, AliasPrefix); ok && resolver != nil && resolver.IsInitialized() {
			out[k] = resolver.Resolve(alias)
			continue
		}
		out[k] = Resolve(v, resolver)
	}
	return out
}
