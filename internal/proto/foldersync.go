package proto

import (
	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// FolderSyncRequest synchronizes the folder hierarchy. The hierarchy has
// its own sync key, independent of every per-folder item key.
type FolderSyncRequest struct {
	SyncKey string
}

func (r *FolderSyncRequest) Name() string { return "FolderSync" }

func (r *FolderSyncRequest) Encode() (*wbxml.Element, error) {
	key := r.SyncKey
	if key == "" {
		key = SyncBootstrapKey
	}
	return wbxml.New(PageFolder, FolderSync).
		AddText(PageFolder, FolderSyncKey, key), nil
}

// FolderChange is one Add or Update entry of a FolderSync response.
type FolderChange struct {
	ServerID    string
	ParentID    string
	DisplayName string
	Type        int
}

// FolderSyncResponse is the decoded FolderSync response.
type FolderSyncResponse struct {
	Status  int
	SyncKey string
	Adds    []FolderChange
	Updates []FolderChange
	Deletes []string
}

// ParseFolderSyncResponse reads a FolderSync response tree.
func ParseFolderSyncResponse(root *wbxml.Element) (*FolderSyncResponse, error) {
	if root == nil || root.Page != PageFolder || root.Tag != FolderSync {
		return nil, errs.Protocol("foldersync", "response is not a FolderSync document")
	}

	resp := &FolderSyncResponse{
		Status:  intText(root, PageFolder, FolderStatus),
		SyncKey: root.ChildText(PageFolder, FolderSyncKey),
	}

	changes := root.Child(PageFolder, FolderChanges)
	if changes == nil {
		return resp, nil
	}

	parse := func(el *wbxml.Element) FolderChange {
		return FolderChange{
			ServerID:    el.ChildText(PageFolder, FolderServerID),
			ParentID:    el.ChildText(PageFolder, FolderParentID),
			DisplayName: el.ChildText(PageFolder, FolderDisplayName),
			Type:        intText(el, PageFolder, FolderType),
		}
	}

	for _, el := range changes.Children {
		if el.Page != PageFolder {
			continue
		}
		switch el.Tag {
		case FolderAdd:
			resp.Adds = append(resp.Adds, parse(el))
		case FolderUpdate:
			resp.Updates = append(resp.Updates, parse(el))
		case FolderRemove:
			resp.Deletes = append(resp.Deletes, el.ChildText(PageFolder, FolderServerID))
		}
	}

	return resp, nil
}
