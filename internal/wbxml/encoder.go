package wbxml

import (
	"bytes"
	"strings"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
)

// An encoder serializes an Element tree. Errors are sticky: the first one
// wins and later writes become no-ops, so the tree walk stays linear.
type encoder struct {
	buf  bytes.Buffer
	page byte
	err  error
}

// Encode serializes root (header included) to WBXML bytes.
func Encode(root *Element) ([]byte, error) {
	if root == nil {
		return nil, errs.Protocol("wbxml", "cannot encode nil element")
	}

	enc := &encoder{}
	enc.writeByte(headerVersion)
	enc.writeByte(headerPublicID)
	enc.writeByte(headerCharsetUTF8)
	enc.writeByte(0x00) // empty string table

	enc.element(root)

	if enc.err != nil {
		return nil, enc.err
	}
	return enc.buf.Bytes(), nil
}

func (enc *encoder) setErr(err error) {
	if enc.err == nil {
		enc.err = err
	}
}

func (enc *encoder) writeByte(b byte) {
	if enc.err != nil {
		return
	}
	enc.buf.WriteByte(b)
}

// writeMBUint writes a multi-byte unsigned integer, 7 bits per byte, high
// bit set on all but the last byte.
func (enc *encoder) writeMBUint(v uint32) {
	if enc.err != nil {
		return
	}
	var tmp [5]byte
	n := len(tmp)
	for {
		n--
		tmp[n] = byte(v & 0x7F)
		v >>= 7
		if v == 0 {
			break
		}
	}
	for i := n; i < len(tmp)-1; i++ {
		tmp[i] |= 0x80
	}
	enc.buf.Write(tmp[n:])
}

func (enc *encoder) switchPage(page byte) {
	if page == enc.page {
		return
	}
	enc.writeByte(tokenSwitchPage)
	enc.writeByte(page)
	enc.page = page
}

func (enc *encoder) element(el *Element) {
	if enc.err != nil {
		return
	}
	if el.Tag < 0x05 || el.Tag >= tagContentMask {
		enc.setErr(errs.Protocol("wbxml", "invalid tag token 0x%02X on page %d", el.Tag, el.Page))
		return
	}
	if el.Text != "" && strings.ContainsRune(el.Text, 0) {
		enc.setErr(errs.Protocol("wbxml", "inline string contains NUL"))
		return
	}

	enc.switchPage(el.Page)

	if !el.hasContent() {
		enc.writeByte(el.Tag)
		return
	}

	enc.writeByte(el.Tag | tagContentMask)

	if el.Text != "" {
		enc.writeByte(tokenStrI)
		if enc.err == nil {
			enc.buf.WriteString(el.Text)
		}
		enc.writeByte(0x00)
	}
	if el.Opaque != nil {
		enc.writeByte(tokenOpaque)
		enc.writeMBUint(uint32(len(el.Opaque)))
		if enc.err == nil {
			enc.buf.Write(el.Opaque)
		}
	}
	for _, c := range el.Children {
		enc.element(c)
	}

	// Children may have switched the codepage; END closes the element
	// regardless of the page in effect.
	enc.writeByte(tokenEnd)
}
