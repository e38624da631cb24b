package proto

import (
	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// Move is one source item relocated to a destination folder.
type Move struct {
	SrcMsgID string
	SrcFldID string
	DstFldID string
}

// MoveItemsRequest relocates items between folders. Restore-from-trash is
// the same command with the trash folder as source.
type MoveItemsRequest struct {
	Moves []Move
}

func (r *MoveItemsRequest) Name() string { return "MoveItems" }

func (r *MoveItemsRequest) Encode() (*wbxml.Element, error) {
	if len(r.Moves) == 0 {
		return nil, errs.Protocol("moveitems", "no moves in request")
	}

	root := wbxml.New(PageMove, MoveItems)
	for _, m := range r.Moves {
		root.Add(wbxml.New(PageMove, MoveMove).
			AddText(PageMove, MoveSrcMsgID, m.SrcMsgID).
			AddText(PageMove, MoveSrcFldID, m.SrcFldID).
			AddText(PageMove, MoveDstFldID, m.DstFldID))
	}
	return root, nil
}

// MoveResult is the server's verdict for one move. On success the item is
// reissued under DstMsgID; the old server id is dead.
type MoveResult struct {
	SrcMsgID string
	Status   int
	DstMsgID string
}

// MoveItemsResponse is the decoded MoveItems response.
type MoveItemsResponse struct {
	Results []MoveResult
}

// Result returns the entry for a source item id, or nil.
func (r *MoveItemsResponse) Result(srcMsgID string) *MoveResult {
	for i := range r.Results {
		if r.Results[i].SrcMsgID == srcMsgID {
			return &r.Results[i]
		}
	}
	return nil
}

// ParseMoveItemsResponse reads a MoveItems response tree.
func ParseMoveItemsResponse(root *wbxml.Element) (*MoveItemsResponse, error) {
	if root == nil || root.Page != PageMove || root.Tag != MoveItems {
		return nil, errs.Protocol("moveitems", "response is not a MoveItems document")
	}

	resp := &MoveItemsResponse{}
	for _, el := range root.ChildAll(PageMove, MoveResponse) {
		resp.Results = append(resp.Results, MoveResult{
			SrcMsgID: el.ChildText(PageMove, MoveSrcMsgID),
			Status:   intText(el, PageMove, MoveStatus),
			DstMsgID: el.ChildText(PageMove, MoveDstMsgID),
		})
	}
	return resp, nil
}
