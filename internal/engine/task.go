package engine

import (
	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/proto"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// TaskApplier decodes Tasks-class payloads.
type TaskApplier struct{}

func (TaskApplier) Kind() model.ItemKind { return model.ItemTask }

func (TaskApplier) Apply(data *wbxml.Element, item *model.Item) ([]model.Attachment, error) {
	if v := data.ChildText(proto.PageTasks, proto.TaskSubject); v != "" {
		item.Subject = v
	}
	if el := data.Child(proto.PageTasks, proto.TaskComplete); el != nil {
		item.Complete = el.Text == "1"
	}
	if v := data.ChildText(proto.PageTasks, proto.TaskUTCDueDate); v != "" {
		item.DueDate = parseWireTime(v)
	} else if v := data.ChildText(proto.PageTasks, proto.TaskDueDate); v != "" {
		item.DueDate = parseWireTime(v)
	}
	if v := data.ChildText(proto.PageTasks, proto.TaskDateCompleted); v != "" {
		item.CompletedAt = parseWireTime(v)
	}
	if v := data.ChildText(proto.PageTasks, proto.TaskImportance); v != "" {
		switch v {
		case "0", "1", "2":
			item.Importance = int(v[0] - '0')
		}
	}

	if body := data.Child(proto.PageAirSyncBase, proto.BaseBody); body != nil {
		if v := body.ChildText(proto.PageAirSyncBase, proto.BaseData); v != "" {
			item.Preview = clipPreview(v)
		}
	}

	return nil, nil
}
