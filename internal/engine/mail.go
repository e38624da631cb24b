package engine

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/proto"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

const previewLimit = 512

// MailApplier decodes Email-class payloads.
type MailApplier struct{}

func (MailApplier) Kind() model.ItemKind { return model.ItemMail }

func (MailApplier) Apply(data *wbxml.Element, item *model.Item) ([]model.Attachment, error) {
	if v := data.ChildText(proto.PageEmail, proto.EmailSubject); v != "" {
		item.Subject = v
	}
	if v := data.ChildText(proto.PageEmail, proto.EmailFrom); v != "" {
		item.From = v
	}
	if v := data.ChildText(proto.PageEmail, proto.EmailTo); v != "" {
		item.To = v
	}
	if v := data.ChildText(proto.PageEmail, proto.EmailDateReceived); v != "" {
		item.Received = parseWireTime(v)
	}
	if el := data.Child(proto.PageEmail, proto.EmailRead); el != nil {
		item.Read = el.Text == "1"
	}
	if v := data.ChildText(proto.PageEmail, proto.EmailImportance); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			item.Importance = n
		}
	}
	if flag := data.Child(proto.PageEmail, proto.EmailFlag); flag != nil {
		// An empty Flag element clears the flag.
		item.Flagged = flag.ChildText(proto.PageEmail, proto.EmailFlagStatus) == "2"
	}

	if body := data.Child(proto.PageAirSyncBase, proto.BaseBody); body != nil {
		if d := body.Child(proto.PageAirSyncBase, proto.BaseData); d != nil {
			raw := d.Opaque
			if raw == nil {
				raw = []byte(d.Text)
			}
			if body.ChildText(proto.PageAirSyncBase, proto.BaseType) == "4" {
				// Full MIME; pull a plain-text preview out of it.
				item.Preview = previewFromMIME(raw)
			} else {
				item.Preview = clipPreview(string(raw))
			}
		}
	}

	var atts []model.Attachment
	if wrapper := data.Child(proto.PageAirSyncBase, proto.BaseAttachments); wrapper != nil {
		for _, el := range wrapper.ChildAll(proto.PageAirSyncBase, proto.BaseAttachment) {
			att := model.Attachment{
				DisplayName:   el.ChildText(proto.PageAirSyncBase, proto.BaseDisplayName),
				FileReference: el.ChildText(proto.PageAirSyncBase, proto.BaseFileReference),
				ContentType:   el.ChildText(proto.PageAirSyncBase, proto.BaseContentType),
			}
			if v := el.ChildText(proto.PageAirSyncBase, proto.BaseEstimatedSize); v != "" {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil {
					att.EstimatedSize = n
				}
			}
			if v := el.ChildText(proto.PageAirSyncBase, proto.BaseMethod); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					att.Method = n
				}
			}
			atts = append(atts, att)
		}
		// Always non-nil so the store replaces any stale references,
		// including down to zero.
		if atts == nil {
			atts = []model.Attachment{}
		}
	}

	return atts, nil
}

// previewFromMIME extracts the first text/plain fragment of a MIME
// message, clipped for list display.
func previewFromMIME(raw []byte) string {
	ent, err := message.Read(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	return clipPreview(textFromEntity(ent, 0))
}

func textFromEntity(ent *message.Entity, depth int) string {
	if depth > 4 {
		return ""
	}

	if mr := ent.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err != nil {
				return ""
			}
			if s := textFromEntity(part, depth+1); s != "" {
				return s
			}
		}
	}

	t, _, err := ent.Header.ContentType()
	if err == nil && t != "" && t != "text/plain" {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(ent.Body, previewLimit))
	return string(b)
}

// clipPreview collapses whitespace and bounds the preview length,
// cutting on a rune boundary so the stored preview stays valid UTF-8.
func clipPreview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= previewLimit {
		return s
	}
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
