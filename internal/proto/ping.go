package proto

import (
	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// WatchFolder names one folder the push channel watches.
type WatchFolder struct {
	ServerID string
	Class    string // "Email", "Calendar", or "Tasks"
}

// PingRequest is the long-poll command behind the push channel: the
// request blocks server-side until a watched folder changes or the
// heartbeat elapses.
type PingRequest struct {
	HeartbeatSec int
	Folders      []WatchFolder
}

func (r *PingRequest) Name() string { return "Ping" }

func (r *PingRequest) Encode() (*wbxml.Element, error) {
	if len(r.Folders) == 0 {
		return nil, errs.Protocol("ping", "no folders to watch")
	}

	folders := wbxml.New(PagePing, PingFolders)
	for _, f := range r.Folders {
		folders.Add(wbxml.New(PagePing, PingFolder).
			AddText(PagePing, PingID, f.ServerID).
			AddText(PagePing, PingClass, f.Class))
	}

	return wbxml.New(PagePing, PingPing).
		AddText(PagePing, PingHeartbeat, itoa(r.HeartbeatSec)).
		Add(folders), nil
}

// PingResponse is the decoded Ping response.
type PingResponse struct {
	Status int

	// ChangedFolders lists the server ids reported with status 2.
	ChangedFolders []string

	// HeartbeatSec carries the server's advertised bound when the
	// request's heartbeat was out of range (status 5).
	HeartbeatSec int
}

// ParsePingResponse reads a Ping response tree.
func ParsePingResponse(root *wbxml.Element) (*PingResponse, error) {
	if root == nil || root.Page != PagePing || root.Tag != PingPing {
		return nil, errs.Protocol("ping", "response is not a Ping document")
	}

	resp := &PingResponse{
		Status:       intText(root, PagePing, PingStatus),
		HeartbeatSec: intText(root, PagePing, PingHeartbeat),
	}

	if folders := root.Child(PagePing, PingFolders); folders != nil {
		for _, f := range folders.ChildAll(PagePing, PingFolder) {
			if f.Text != "" {
				// Servers return <Folder>id</Folder> here, without
				// the nested Id element used in requests.
				resp.ChangedFolders = append(resp.ChangedFolders, f.Text)
				continue
			}
			if id := f.ChildText(PagePing, PingID); id != "" {
				resp.ChangedFolders = append(resp.ChangedFolders, id)
			}
		}
	}

	return resp, nil
}
