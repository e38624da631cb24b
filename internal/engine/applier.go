package engine

import (
	"time"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// An Applier decodes one folder class's ApplicationData payload into the
// shared item projection. Appliers only set fields present in the data,
// so the same code path serves both Add and Change entries.
type Applier interface {
	// Kind is the item kind this applier produces.
	Kind() model.ItemKind

	// Apply decodes data into item and returns any attachment
	// references found. data is never nil.
	Apply(data *wbxml.Element, item *model.Item) ([]model.Attachment, error)
}

// Wire timestamp layouts. Email uses the punctuated form; calendar and
// tasks use the compact form.
const (
	timeLayoutLong    = "2006-01-02T15:04:05.000Z"
	timeLayoutCompact = "20060102T150405Z"
)

// parseWireTime accepts either protocol timestamp layout; nil on failure
// or empty input.
func parseWireTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{timeLayoutLong, timeLayoutCompact, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
