package proto

import (
	"encoding/base64"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// FetchAttachmentRequest downloads one attachment by its opaque file
// reference via ItemOperations.
type FetchAttachmentRequest struct {
	FileReference string
}

func (r *FetchAttachmentRequest) Name() string { return "ItemOperations" }

func (r *FetchAttachmentRequest) Encode() (*wbxml.Element, error) {
	if r.FileReference == "" {
		return nil, errs.Protocol("itemoperations", "empty file reference")
	}

	fetch := wbxml.New(PageItemOps, ItemOpsFetch).
		AddText(PageItemOps, ItemOpsStore, "Mailbox").
		AddText(PageAirSyncBase, BaseFileReference, r.FileReference)

	return wbxml.New(PageItemOps, ItemOps).Add(fetch), nil
}

// FetchAttachmentResponse is the decoded attachment payload.
type FetchAttachmentResponse struct {
	Status      int
	FetchStatus int
	ContentType string
	Data        []byte
	Total       int
}

// ParseFetchAttachmentResponse reads an ItemOperations fetch response. The
// inline Data element is base64 text unless the server used an opaque
// blob, in which case it is taken verbatim.
func ParseFetchAttachmentResponse(root *wbxml.Element) (*FetchAttachmentResponse, error) {
	if root == nil || root.Page != PageItemOps || root.Tag != ItemOps {
		return nil, errs.Protocol("itemoperations", "response is not an ItemOperations document")
	}

	resp := &FetchAttachmentResponse{Status: intText(root, PageItemOps, ItemOpsStatus)}

	response := root.Child(PageItemOps, ItemOpsResponse)
	if response == nil {
		return resp, nil
	}
	fetch := response.Child(PageItemOps, ItemOpsFetch)
	if fetch == nil {
		return nil, errs.Protocol("itemoperations", "response carries no Fetch element")
	}

	resp.FetchStatus = intText(fetch, PageItemOps, ItemOpsStatus)

	props := fetch.Child(PageItemOps, ItemOpsProperties)
	if props == nil {
		return resp, nil
	}

	resp.ContentType = props.ChildText(PageAirSyncBase, BaseContentType)
	resp.Total = intText(props, PageItemOps, ItemOpsTotal)

	if data := props.Child(PageItemOps, ItemOpsData); data != nil {
		if data.Opaque != nil {
			resp.Data = data.Opaque
		} else if data.Text != "" {
			decoded, err := base64.StdEncoding.DecodeString(data.Text)
			if err != nil {
				return nil, errs.Protocol("itemoperations", "attachment data is not valid base64: %v", err)
			}
			resp.Data = decoded
		}
	}

	return resp, nil
}
