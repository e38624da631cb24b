// Package wbxml implements the compact binary XML encoding used by the
// ActiveSync protocol. Documents are represented as trees of Elements;
// Encode and Decode are pure transforms between trees and bytes.
package wbxml

// Control tokens of the WBXML byte stream.
const (
	tokenSwitchPage = 0x00
	tokenEnd        = 0x01
	tokenStrI       = 0x03
	tokenOpaque     = 0xC3

	// tagContentMask marks a tag token as having content (children,
	// inline text, or opaque data) followed by an END token.
	tagContentMask = 0x40

	// headerVersion is WBXML 1.3, the only version ActiveSync uses.
	headerVersion = 0x03
	// headerPublicID is "unknown or missing public identifier".
	headerPublicID = 0x01
	// headerCharsetUTF8 is the IANA MIB enum for UTF-8.
	headerCharsetUTF8 = 0x6A
)

// Element is one node of a WBXML document. Exactly one of Text, Opaque, or
// Children is normally populated; an element with none of them encodes as
// an empty tag. Page and Tag identify the element within its codepage; tag
// values carry no content bit.
type Element struct {
	Page     byte
	Tag      byte
	Text     string
	Opaque   []byte
	Children []*Element
}

// New returns an empty element on the given codepage.
func New(page, tag byte) *Element {
	return &Element{Page: page, Tag: tag}
}

// NewText returns a leaf element holding inline text.
func NewText(page, tag byte, text string) *Element {
	return &Element{Page: page, Tag: tag, Text: text}
}

// Add appends children and returns the element for chaining.
func (el *Element) Add(children ...*Element) *Element {
	el.Children = append(el.Children, children...)
	return el
}

// AddText appends a text leaf child and returns the parent.
func (el *Element) AddText(page, tag byte, text string) *Element {
	return el.Add(NewText(page, tag, text))
}

// hasContent reports whether the element encodes with the content bit set.
func (el *Element) hasContent() bool {
	return el.Text != "" || el.Opaque != nil || len(el.Children) > 0
}

// Child returns the first direct child matching page and tag, or nil.
func (el *Element) Child(page, tag byte) *Element {
	for _, c := range el.Children {
		if c.Page == page && c.Tag == tag {
			return c
		}
	}
	return nil
}

// ChildAll returns every direct child matching page and tag.
func (el *Element) ChildAll(page, tag byte) []*Element {
	var out []*Element
	for _, c := range el.Children {
		if c.Page == page && c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// ChildText returns the inline text of the first matching direct child,
// or "" when the child is absent or empty.
func (el *Element) ChildText(page, tag byte) string {
	if c := el.Child(page, tag); c != nil {
		return c.Text
	}
	return ""
}

// Has reports whether a direct child with the given page and tag exists.
func (el *Element) Has(page, tag byte) bool {
	return el.Child(page, tag) != nil
}

// Equal reports deep structural equality of two elements.
func (el *Element) Equal(other *Element) bool {
	if el == nil || other == nil {
		return el == other
	}
	if el.Page != other.Page || el.Tag != other.Tag || el.Text != other.Text {
		return false
	}
	if len(el.Opaque) != len(other.Opaque) || len(el.Children) != len(other.Children) {
		return false
	}
	for i := range el.Opaque {
		if el.Opaque[i] != other.Opaque[i] {
			return false
		}
	}
	for i := range el.Children {
		if !el.Children[i].Equal(other.Children[i]) {
			return false
		}
	}
	return true
}
