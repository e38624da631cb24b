package wbxml

import (
	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
)

// A decoder parses a WBXML byte stream. Like the encoder, the first error
// is sticky and aborts the walk.
type decoder struct {
	data []byte
	pos  int
	page byte
	err  error
}

// Decode parses WBXML bytes into an Element tree. The input must contain
// exactly one root element; malformed input yields a protocol error.
func Decode(data []byte) (*Element, error) {
	dec := &decoder{data: data}

	version := dec.readByte()
	if dec.err == nil && (version < 0x01 || version > headerVersion) {
		dec.setErr(errs.Protocol("wbxml", "unsupported version 0x%02X", version))
	}
	dec.readMBUint() // public id, ignored
	dec.readMBUint() // charset; servers always send UTF-8
	if n := dec.readMBUint(); dec.err == nil && n > 0 {
		// String table is unused by ActiveSync; skip it if present.
		dec.skip(int(n))
	}

	// The body may open with a page switch before the root tag.
	dec.switchPages()
	root := dec.element()

	if dec.err != nil {
		return nil, dec.err
	}
	if dec.pos != len(dec.data) {
		return nil, errs.Protocol("wbxml", "%d trailing bytes after document", len(dec.data)-dec.pos)
	}
	return root, nil
}

func (dec *decoder) setErr(err error) {
	if dec.err == nil {
		dec.err = err
	}
}

func (dec *decoder) readByte() byte {
	if dec.err != nil {
		return 0
	}
	if dec.pos >= len(dec.data) {
		dec.setErr(errs.Protocol("wbxml", "unexpected end of document"))
		return 0
	}
	b := dec.data[dec.pos]
	dec.pos++
	return b
}

func (dec *decoder) peekByte() (byte, bool) {
	if dec.err != nil || dec.pos >= len(dec.data) {
		return 0, false
	}
	return dec.data[dec.pos], true
}

func (dec *decoder) skip(n int) {
	if dec.err != nil {
		return
	}
	if dec.pos+n > len(dec.data) {
		dec.setErr(errs.Protocol("wbxml", "truncated document"))
		return
	}
	dec.pos += n
}

func (dec *decoder) readMBUint() uint32 {
	var v uint32
	for i := 0; ; i++ {
		if i == 5 {
			dec.setErr(errs.Protocol("wbxml", "multi-byte integer overflow"))
			return 0
		}
		b := dec.readByte()
		if dec.err != nil {
			return 0
		}
		v = v<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return v
		}
	}
}

// readString reads a NUL-terminated inline string.
func (dec *decoder) readString() string {
	if dec.err != nil {
		return ""
	}
	start := dec.pos
	for dec.pos < len(dec.data) {
		if dec.data[dec.pos] == 0 {
			s := string(dec.data[start:dec.pos])
			dec.pos++
			return s
		}
		dec.pos++
	}
	dec.setErr(errs.Protocol("wbxml", "unterminated inline string"))
	return ""
}

// switchPages consumes any run of SWITCH_PAGE tokens.
func (dec *decoder) switchPages() {
	for {
		b, ok := dec.peekByte()
		if !ok || b != tokenSwitchPage {
			return
		}
		dec.readByte()
		dec.page = dec.readByte()
	}
}

// element parses one element starting at the current position. The caller
// must already have consumed any leading page switches.
func (dec *decoder) element() *Element {
	tok := dec.readByte()
	if dec.err != nil {
		return nil
	}

	tag := tok &^ tagContentMask
	if tag < 0x05 {
		dec.setErr(errs.Protocol("wbxml", "unexpected token 0x%02X where tag expected", tok))
		return nil
	}

	el := New(dec.page, tag)
	if tok&tagContentMask == 0 {
		return el
	}

	for {
		dec.switchPages()
		b, ok := dec.peekByte()
		if !ok {
			dec.setErr(errs.Protocol("wbxml", "unterminated element 0x%02X", tag))
			return nil
		}
		switch b {
		case tokenEnd:
			dec.readByte()
			return el
		case tokenStrI:
			dec.readByte()
			el.Text += dec.readString()
		case tokenOpaque:
			dec.readByte()
			n := dec.readMBUint()
			if dec.err != nil {
				return nil
			}
			if dec.pos+int(n) > len(dec.data) {
				dec.setErr(errs.Protocol("wbxml", "opaque data truncated"))
				return nil
			}
			chunk := make([]byte, n)
			copy(chunk, dec.data[dec.pos:dec.pos+int(n)])
			dec.pos += int(n)
			el.Opaque = append(el.Opaque, chunk...)
		default:
			child := dec.element()
			if dec.err != nil {
				return nil
			}
			el.Children = append(el.Children, child)
		}
	}
}
