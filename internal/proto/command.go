package proto

import (
	"strconv"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// A Command is a typed request the executor can send. Name is the Cmd=
// query parameter; Encode builds the request's wbxml tree.
type Command interface {
	Name() string
	Encode() (*wbxml.Element, error)
}

// intText parses a decimal child text, returning 0 when absent or junk.
func intText(el *wbxml.Element, page, tag byte) int {
	n, err := strconv.Atoi(el.ChildText(page, tag))
	if err != nil {
		return 0
	}
	return n
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// boolTag renders a protocol boolean as "1"/"0" text.
func boolTag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// TopStatus extracts the command's top-level Status child, used to detect
// provisioning demands that can ride any response. Returns 0 when the
// root carries no status of its own.
func TopStatus(root *wbxml.Element) int {
	if root == nil {
		return 0
	}
	switch {
	case root.Page == PageAirSync && root.Tag == AirSync:
		return intText(root, PageAirSync, AirSyncStatus)
	case root.Page == PageFolder && root.Tag == FolderSync:
		return intText(root, PageFolder, FolderStatus)
	case root.Page == PagePing && root.Tag == PingPing:
		return intText(root, PagePing, PingStatus)
	case root.Page == PageProvision && root.Tag == ProvProvision:
		return intText(root, PageProvision, ProvStatus)
	case root.Page == PageItemOps && root.Tag == ItemOps:
		return intText(root, PageItemOps, ItemOpsStatus)
	case root.Page == PageMove && root.Tag == MoveItems:
		// MoveItems has no global status element.
		return 0
	}
	return 0
}
