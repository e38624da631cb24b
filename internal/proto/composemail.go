package proto

import (
	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// ComposeMail (page 21) tags.
const (
	PageComposeMail = 21

	ComposeSendMail        = 0x05
	ComposeSaveInSentItems = 0x08
	ComposeMIME            = 0x10
	ComposeClientID        = 0x11
	ComposeStatus          = 0x12
)

// SendMailRequest submits a fully formed MIME message. The sync core uses
// it only for read-receipt notifications; general composition lives in
// the UI layer.
type SendMailRequest struct {
	ClientID   string
	MIME       []byte
	SaveInSent bool
}

func (r *SendMailRequest) Name() string { return "SendMail" }

func (r *SendMailRequest) Encode() (*wbxml.Element, error) {
	if len(r.MIME) == 0 {
		return nil, errs.Protocol("sendmail", "empty MIME payload")
	}
	if r.ClientID == "" {
		return nil, errs.Protocol("sendmail", "missing client id")
	}

	root := wbxml.New(PageComposeMail, ComposeSendMail).
		AddText(PageComposeMail, ComposeClientID, r.ClientID)
	if r.SaveInSent {
		root.Add(wbxml.New(PageComposeMail, ComposeSaveInSentItems))
	}
	mime := wbxml.New(PageComposeMail, ComposeMIME)
	mime.Opaque = r.MIME
	root.Add(mime)
	return root, nil
}
