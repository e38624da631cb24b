package engine

import (
	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/proto"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// CalendarApplier decodes Calendar-class payloads.
type CalendarApplier struct{}

func (CalendarApplier) Kind() model.ItemKind { return model.ItemEvent }

func (CalendarApplier) Apply(data *wbxml.Element, item *model.Item) ([]model.Attachment, error) {
	if v := data.ChildText(proto.PageCalendar, proto.CalSubject); v != "" {
		item.Subject = v
	}
	if v := data.ChildText(proto.PageCalendar, proto.CalLocation); v != "" {
		item.Location = v
	}
	if v := data.ChildText(proto.PageCalendar, proto.CalStartTime); v != "" {
		item.StartTime = parseWireTime(v)
	}
	if v := data.ChildText(proto.PageCalendar, proto.CalEndTime); v != "" {
		item.EndTime = parseWireTime(v)
	}
	if el := data.Child(proto.PageCalendar, proto.CalAllDayEvent); el != nil {
		item.AllDay = el.Text == "1"
	}

	if body := data.Child(proto.PageAirSyncBase, proto.BaseBody); body != nil {
		if v := body.ChildText(proto.PageAirSyncBase, proto.BaseData); v != "" {
			item.Preview = clipPreview(v)
		}
	}

	return nil, nil
}
