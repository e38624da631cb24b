package proto

import (
	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// SyncRequest is the Sync command: one request may carry several
// collections, each with its own sync key, window, and client commands.
type SyncRequest struct {
	Collections []SyncCollection
}

// SyncCollection describes one folder's slice of a Sync request.
type SyncCollection struct {
	CollectionID string
	SyncKey      string
	GetChanges   bool
	WindowSize   int

	// DeletionsAsMoves controls whether server-side deletes triggered by
	// client Delete commands land in the trash folder (true) or are
	// permanent (false). Nil leaves the server default in place.
	DeletionsAsMoves *bool

	// MIMESupport asks the server to return full MIME bodies for mail
	// items when set.
	MIMESupport bool

	// Commands carries local mutations piggybacked on the sync.
	Commands []ClientCommand
}

// ClientCommandType enumerates the client-issued change kinds.
type ClientCommandType int

const (
	ClientChange ClientCommandType = iota + 1
	ClientDelete
	ClientFetch
)

// ClientCommand is one client-to-server mutation inside a collection.
type ClientCommand struct {
	Type     ClientCommandType
	ServerID string

	// Data is the ApplicationData subtree for Change commands.
	Data *wbxml.Element
}

func (r *SyncRequest) Name() string { return "Sync" }

func (r *SyncRequest) Encode() (*wbxml.Element, error) {
	if len(r.Collections) == 0 {
		return nil, errs.Protocol("sync", "request carries no collections")
	}

	colls := wbxml.New(PageAirSync, AirSyncCollections)
	for _, c := range r.Collections {
		coll := wbxml.New(PageAirSync, AirSyncCollection)
		coll.AddText(PageAirSync, AirSyncSyncKey, c.SyncKey)
		coll.AddText(PageAirSync, AirSyncCollectionID, c.CollectionID)
		if c.DeletionsAsMoves != nil {
			coll.AddText(PageAirSync, AirSyncDelAsMoves, boolTag(*c.DeletionsAsMoves))
		}
		if c.GetChanges {
			coll.Add(wbxml.New(PageAirSync, AirSyncGetChanges))
		}
		if c.WindowSize > 0 {
			coll.AddText(PageAirSync, AirSyncWindowSize, itoa(c.WindowSize))
		}
		if c.MIMESupport {
			opts := wbxml.New(PageAirSync, AirSyncOptions)
			opts.AddText(PageAirSync, AirSyncMIMESupport, "2")
			opts.Add(wbxml.New(PageAirSyncBase, BaseBodyPreference).
				AddText(PageAirSyncBase, BaseType, "1").
				AddText(PageAirSyncBase, BaseTruncationSize, "51200"))
			coll.Add(opts)
		}
		if len(c.Commands) > 0 {
			cmds := wbxml.New(PageAirSync, AirSyncCommands)
			for _, cc := range c.Commands {
				var tag byte
				switch cc.Type {
				case ClientChange:
					tag = AirSyncChange
				case ClientDelete:
					tag = AirSyncDelete
				case ClientFetch:
					tag = AirSyncFetch
				default:
					return nil, errs.Protocol("sync", "unknown client command type %d", cc.Type)
				}
				cmd := wbxml.New(PageAirSync, tag)
				cmd.AddText(PageAirSync, AirSyncServerID, cc.ServerID)
				if cc.Data != nil {
					cmd.Add(wbxml.New(PageAirSync, AirSyncAppData).Add(cc.Data.Children...))
				}
				cmds.Add(cmd)
			}
			coll.Add(cmds)
		}
		colls.Add(coll)
	}

	return wbxml.New(PageAirSync, AirSync).Add(colls), nil
}

// ServerChange is one Add or Change entry in a sync response.
type ServerChange struct {
	ServerID string
	Data     *wbxml.Element // the ApplicationData subtree
}

// CommandAck is the server's per-command response for piggybacked client
// commands (Fetch results and failed Change/Delete entries).
type CommandAck struct {
	Type     ClientCommandType
	ServerID string
	Status   int
}

// SyncCollectionResponse is the decoded per-collection result of a Sync.
type SyncCollectionResponse struct {
	CollectionID  string
	SyncKey       string
	Status        int
	MoreAvailable bool
	Adds          []ServerChange
	Changes       []ServerChange
	Deletes       []string
	SoftDeletes   []string
	Acks          []CommandAck
}

// SyncResponse is the decoded Sync command response.
type SyncResponse struct {
	Status      int
	Collections []SyncCollectionResponse
}

// Collection returns the response entry for a collection id, or nil.
func (r *SyncResponse) Collection(id string) *SyncCollectionResponse {
	for i := range r.Collections {
		if r.Collections[i].CollectionID == id {
			return &r.Collections[i]
		}
	}
	return nil
}

// ParseSyncResponse reads a Sync response tree.
func ParseSyncResponse(root *wbxml.Element) (*SyncResponse, error) {
	if root == nil || root.Page != PageAirSync || root.Tag != AirSync {
		return nil, errs.Protocol("sync", "response is not a Sync document")
	}

	resp := &SyncResponse{Status: intText(root, PageAirSync, AirSyncStatus)}

	colls := root.Child(PageAirSync, AirSyncCollections)
	if colls == nil {
		// A bare Status (e.g. a provisioning demand) is legal.
		return resp, nil
	}

	for _, coll := range colls.ChildAll(PageAirSync, AirSyncCollection) {
		cr := SyncCollectionResponse{
			CollectionID:  coll.ChildText(PageAirSync, AirSyncCollectionID),
			SyncKey:       coll.ChildText(PageAirSync, AirSyncSyncKey),
			Status:        intText(coll, PageAirSync, AirSyncStatus),
			MoreAvailable: coll.Has(PageAirSync, AirSyncMoreAvail),
		}

		if cmds := coll.Child(PageAirSync, AirSyncCommands); cmds != nil {
			for _, cmd := range cmds.Children {
				if cmd.Page != PageAirSync {
					continue
				}
				serverID := cmd.ChildText(PageAirSync, AirSyncServerID)
				switch cmd.Tag {
				case AirSyncAdd:
					cr.Adds = append(cr.Adds, ServerChange{
						ServerID: serverID,
						Data:     cmd.Child(PageAirSync, AirSyncAppData),
					})
				case AirSyncChange:
					cr.Changes = append(cr.Changes, ServerChange{
						ServerID: serverID,
						Data:     cmd.Child(PageAirSync, AirSyncAppData),
					})
				case AirSyncDelete:
					cr.Deletes = append(cr.Deletes, serverID)
				case 0x21: // SoftDelete: item fell outside the filter window
					cr.SoftDeletes = append(cr.SoftDeletes, serverID)
				}
			}
		}

		if resps := coll.Child(PageAirSync, AirSyncResponses); resps != nil {
			for _, ack := range resps.Children {
				if ack.Page != PageAirSync {
					continue
				}
				a := CommandAck{
					ServerID: ack.ChildText(PageAirSync, AirSyncServerID),
					Status:   intText(ack, PageAirSync, AirSyncStatus),
				}
				switch ack.Tag {
				case AirSyncChange:
					a.Type = ClientChange
				case AirSyncDelete:
					a.Type = ClientDelete
				case AirSyncFetch:
					a.Type = ClientFetch
				default:
					continue
				}
				cr.Acks = append(cr.Acks, a)
			}
		}

		resp.Collections = append(resp.Collections, cr)
	}

	return resp, nil
}
