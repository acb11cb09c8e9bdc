// Package content defines the closed set of payload variants an Item can
// carry. The source library this engine is modeled on leans on an
// open-ended class hierarchy for content; here it is a single tagged sum
// with a fixed case set, dispatched by Kind (see spec §3, §9).
package content

import "fmt"

// Kind tags which variant a Content value holds. Values are stable wire
// identifiers matching the codec's content-ref table (spec §4.7).
type Kind uint8

const (
	KindGC      Kind = 0
	KindDeleted Kind = 1
	KindJSON    Kind = 2 // legacy alias of Any, kept for wire compatibility
	KindBinary  Kind = 3
	KindString  Kind = 4
	KindEmbed   Kind = 5
	KindFormat  Kind = 6
	KindType    Kind = 7
	KindAny     Kind = 8
	KindDoc     Kind = 9
	KindSkip    Kind = 10
)

func (k Kind) String() string {
	switch k {
	case KindGC:
		return "gc"
	case KindDeleted:
		return "deleted"
	case KindJSON:
		return "json"
	case KindBinary:
		return "binary"
	case KindString:
		return "string"
	case KindEmbed:
		return "embed"
	case KindFormat:
		return "format"
	case KindType:
		return "type"
	case KindAny:
		return "any"
	case KindDoc:
		return "doc"
	case KindSkip:
		return "skip"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// SubDoc is satisfied by a sub-document handle (doc.Document implements
// it) so that insert-generics (spec §4.2) can recognize a sub-document
// value without content importing package doc.
type SubDoc interface {
	DocGUID() string
}

// Content is the tagged union. Exactly one of the typed fields is
// meaningful, selected by Kind.
type Content struct {
	Kind Kind

	// Any / JSON: a run of JSON-primitive values (string, float64, bool,
	// nil, map[string]any, []any), coalesced on insert.
	Any []any

	// String: text indexed by Unicode scalar value (rune), not UTF-16
	// code unit. This engine only ever talks to itself, so there's no
	// wire format to match index-for-index with a UTF-16 host; runes give
	// the same indexing as UTF-16 for every character outside the astral
	// planes (U+10000 and up), where a UTF-16 host would split a single
	// rune into a two-unit surrogate pair and this one won't. The codec
	// encodes this field as UTF-8 bytes, not UTF-16.
	String []rune

	// Binary: an immutable byte blob. Never mergeable (spec §3).
	Binary []byte

	// Embed: opaque JSON value, single unit, never mergeable.
	Embed any

	// Format: a rich-text attribute delta. Not countable.
	FormatKey   string
	FormatValue any

	// Deleted: tombstone length (the unit count this content covers).
	DeletedLen uint32

	// Type: nested container handle. Typed as any rather than a narrow
	// interface because the concrete container type lives in package
	// container, which imports item, which imports content — content
	// cannot import either back. Packages that need the real type (only
	// integrate and codec do) type-assert to *container.Container.
	Type any

	// Doc: sub-document reference, identified by guid.
	DocGUID string
}

// Len reports the number of content units this value occupies.
func (c Content) Len() int {
	switch c.Kind {
	case KindAny, KindJSON:
		return len(c.Any)
	case KindString:
		return len(c.String)
	case KindBinary:
		return len(c.Binary)
	case KindDeleted:
		return int(c.DeletedLen)
	case KindEmbed, KindFormat, KindType, KindDoc:
		return 1
	default:
		return 0
	}
}

// IsCountable reports whether this content contributes to a sequence
// container's length/index (spec §3).
func (c Content) IsCountable() bool {
	switch c.Kind {
	case KindFormat, KindDeleted, KindGC, KindSkip:
		return false
	default:
		return true
	}
}

// Mergeable reports whether adjacent content of this kind, from the same
// client with contiguous clocks, may be coalesced into one unit (spec §3).
func (c Content) Mergeable() bool {
	switch c.Kind {
	case KindAny, KindJSON, KindString, KindDeleted:
		return true
	default:
		return false
	}
}

// SplitAt splits content at unit offset n (0 < n < Len()), returning the
// left and right halves. Only defined for mergeable/countable variants
// that can meaningfully be cut mid-run; callers must check Len() first.
func (c Content) SplitAt(n int) (left, right Content) {
	switch c.Kind {
	case KindAny, KindJSON:
		left = Content{Kind: c.Kind, Any: append([]any{}, c.Any[:n]...)}
		right = Content{Kind: c.Kind, Any: append([]any{}, c.Any[n:]...)}
	case KindString:
		left = Content{Kind: c.Kind, String: append([]rune{}, c.String[:n]...)}
		right = Content{Kind: c.Kind, String: append([]rune{}, c.String[n:]...)}
	case KindBinary:
		left = Content{Kind: c.Kind, Binary: append([]byte{}, c.Binary[:n]...)}
		right = Content{Kind: c.Kind, Binary: append([]byte{}, c.Binary[n:]...)}
	case KindDeleted:
		left = Content{Kind: c.Kind, DeletedLen: uint32(n)}
		right = Content{Kind: c.Kind, DeletedLen: c.DeletedLen - uint32(n)}
	default:
		// Not splittable: caller error. Return the whole value on both
		// sides so callers that forget to check Len()==1 fail loudly at
		// the next length-sum invariant check rather than silently.
		left, right = c, c
	}
	return
}

// TryMerge attempts to append other's units onto the end of c, returning
// the merged content and true on success. Only same-kind mergeable
// content merges.
func (c Content) TryMerge(other Content) (Content, bool) {
	if c.Kind != other.Kind || !c.Mergeable() {
		return c, false
	}
	switch c.Kind {
	case KindAny, KindJSON:
		return Content{Kind: c.Kind, Any: append(append([]any{}, c.Any...), other.Any...)}, true
	case KindString:
		return Content{Kind: c.Kind, String: append(append([]rune{}, c.String...), other.String...)}, true
	case KindDeleted:
		return Content{Kind: c.Kind, DeletedLen: c.DeletedLen + other.DeletedLen}, true
	default:
		return c, false
	}
}

// NewAny builds Any content from a run of primitive JSON values.
func NewAny(vs ...any) Content { return Content{Kind: KindAny, Any: vs} }

// NewString builds String content from text.
func NewString(s string) Content { return Content{Kind: KindString, String: []rune(s)} }

// NewBinary builds Binary content from a byte blob.
func NewBinary(b []byte) Content { return Content{Kind: KindBinary, Binary: b} }

// NewEmbed builds an opaque single-unit Embed value.
func NewEmbed(v any) Content { return Content{Kind: KindEmbed, Embed: v} }

// NewFormat builds a rich-text attribute delta.
func NewFormat(key string, value any) Content {
	return Content{Kind: KindFormat, FormatKey: key, FormatValue: value}
}

// NewDeleted builds a tombstone placeholder covering length units.
func NewDeleted(length uint32) Content { return Content{Kind: KindDeleted, DeletedLen: length} }

// NewType wraps a nested container reference (a *container.Container,
// left untyped here to avoid an import cycle — see the Type field doc).
func NewType(ref any) Content { return Content{Kind: KindType, Type: ref} }

// NewDoc builds a sub-document reference.
func NewDoc(guid string) Content { return Content{Kind: KindDoc, DocGUID: guid} }
