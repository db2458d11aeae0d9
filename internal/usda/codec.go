// Package usda reads and rewrites the small vocabulary of scalar
// attributes and variant strings the bridge protocol embeds in USDA
// documents. It is deliberately not a USD parser: the producer's
// documents use a fixed set of `def` blocks with `<type> <name> = <value>`
// attribute lines, and textual search is both sufficient and tolerant of
// fields added by future protocol versions.
package usda

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// Matches a block declaration by name, e.g. `def Xform "Answer"`.
	// The kind token between def and the quoted name is free-form.
	blockDeclPattern = `def\s+[^"{]*"%s"`

	stringAttrPattern = `string %s = "([^"]*)"`
	intAttrPattern    = `int %s = (-?\d+)`
	floatAttrPattern  = `(?:float|double) %s = ([\d.]+)`
)

// HasBlock reports whether the document declares a block with the given
// name. Callers that must not fall back to document scope check this
// before FindBlock.
func HasBlock(doc, name string) bool {
	re := regexp.MustCompile(fmt.Sprintf(blockDeclPattern, regexp.QuoteMeta(name)))
	return re.MatchString(doc)
}

// FindBlock returns the text enclosed by the braces of the first block
// declared with the given name. Nested blocks are handled by depth
// counting. When the declaration is absent the whole document is
// returned, so attribute lookups degrade to a document-scope search
// instead of failing.
func FindBlock(doc, name string) string {
	re := regexp.MustCompile(fmt.Sprintf(blockDeclPattern, regexp.QuoteMeta(name)))
	loc := re.FindStringIndex(doc)
	if loc == nil {
		return doc
	}

	open := strings.IndexByte(doc[loc[1]:], '{')
	if open < 0 {
		return doc
	}
	start := loc[1] + open + 1

	depth := 1
	for i := start; i < len(doc); i++ {
		switch doc[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return doc[start:i]
			}
		}
	}
	// Unbalanced braces; take everything after the opener.
	return doc[start:]
}

// ParseAttribute extracts the raw value of a scalar attribute from block
// text. Patterns are tried in a fixed order (string, int, float/double);
// the first match wins. The second return is false when no pattern
// matches, which is the normal "field absent" outcome rather than an
// error.
func ParseAttribute(block, name string) (string, bool) {
	quoted := regexp.QuoteMeta(name)

	for _, pattern := range []string{stringAttrPattern, intAttrPattern, floatAttrPattern} {
		re := regexp.MustCompile(fmt.Sprintf(pattern, quoted))
		if m := re.FindStringSubmatch(block); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ParseVariant extracts a document-scope named string, e.g. sync_status
// or message_type. Variants share the quoted-string attribute syntax but
// are never nested inside a named block, so the whole document is
// searched.
func ParseVariant(doc, name string) (string, bool) {
	re := regexp.MustCompile(fmt.Sprintf(stringAttrPattern, regexp.QuoteMeta(name)))
	if m := re.FindStringSubmatch(doc); m != nil {
		return m[1], true
	}
	return "", false
}

// UpdateVariant rewrites the value of a document-scope string in place.
// The new value is spliced verbatim: variant values are a controlled
// vocabulary, never user text, so no escaping is applied. If the variant
// is absent the document is returned unchanged.
func UpdateVariant(doc, name, value string) string {
	search := fmt.Sprintf("string %s = \"", name)
	start := strings.Index(doc, search)
	if start < 0 {
		return doc
	}
	start += len(search)

	end := strings.IndexByte(doc[start:], '"')
	if end < 0 {
		return doc
	}
	return doc[:start] + value + doc[start+end:]
}

// UpdateAttribute rewrites a scalar attribute in place. String values
// have backslash and double-quote escaped before splicing. Non-string
// values try the type prefixes int, float, double, bool in order and
// replace the token run up to the next whitespace or semicolon with the
// raw literal. A document without the attribute is returned unchanged.
//
// The search is document-scope by attribute name: primName is accepted
// for call-site clarity but not used to narrow the match. The producer's
// documents keep attribute names unique across blocks, and writes must
// stay byte-compatible with it.
func UpdateAttribute(doc, primName, attrName, value string, isString bool) string {
	_ = primName

	if isString {
		search := fmt.Sprintf("string %s = \"", attrName)
		start := strings.Index(doc, search)
		if start < 0 {
			return doc
		}
		start += len(search)

		end := strings.IndexByte(doc[start:], '"')
		if end < 0 {
			return doc
		}
		escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value)
		return doc[:start] + escaped + doc[start+end:]
	}

	for _, prefix := range []string{"int", "float", "double", "bool"} {
		search := fmt.Sprintf("%s %s = ", prefix, attrName)
		start := strings.Index(doc, search)
		if start < 0 {
			continue
		}
		start += len(search)

		end := start
		for end < len(doc) {
			c := doc[end]
			if c == '\n' || c == '\r' || c == ';' || c == ' ' || c == '\t' {
				break
			}
			end++
		}
		return doc[:start] + value + doc[end:]
	}
	return doc
}
