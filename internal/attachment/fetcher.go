// Package attachment downloads attachment payloads on demand. The sync
// engine stores only references (name, size, content type, the server's
// opaque file reference); bytes are fetched here when the user opens or
// saves one, and streamed into a caller-supplied sink.
package attachment

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/proto"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// Executor issues one command with an explicit deadline. Satisfied by
// *executor.Executor.
type Executor interface {
	ExecuteTimeout(ctx context.Context, account *model.Account, cmd proto.Command, timeout time.Duration) (*wbxml.Element, error)
}

// ProgressFunc reports download progress in bytes. total is the server's
// estimate and may be zero when unknown.
type ProgressFunc func(done, total int64)

// fetchTimeout bounds one download; attachments can be large and slow.
const fetchTimeout = 10 * time.Minute

// chunkSize is the sink write granularity, which also sets how often
// progress fires.
const chunkSize = 64 * 1024

// Fetcher downloads attachments.
type Fetcher struct {
	exec Executor
	log  *logrus.Logger
}

// NewFetcher builds a Fetcher.
func NewFetcher(exec Executor, log *logrus.Logger) *Fetcher {
	if log == nil {
		log = logrus.New()
	}
	return &Fetcher{exec: exec, log: log}
}

// Fetch downloads the attachment behind att.FileReference and writes it
// to sink, reporting progress along the way. It returns the content type
// the server declared.
func (f *Fetcher) Fetch(ctx context.Context, account *model.Account, att *model.Attachment,
	sink io.Writer, progress ProgressFunc) (string, error) {

	req := &proto.FetchAttachmentRequest{FileReference: att.FileReference}

	root, err := f.exec.ExecuteTimeout(ctx, account, req, fetchTimeout)
	if err != nil {
		return "", err
	}
	if root == nil {
		return "", errs.Protocol("itemoperations", "empty attachment response")
	}
	resp, err := proto.ParseFetchAttachmentResponse(root)
	if err != nil {
		return "", err
	}
	if resp.Status != 1 {
		return "", errs.ServerRejected("itemoperations", resp.Status, "server rejected the attachment fetch")
	}
	if resp.FetchStatus != 0 && resp.FetchStatus != 1 {
		return "", errs.ServerRejected("itemoperations", resp.FetchStatus, "server could not fetch the attachment")
	}

	total := int64(resp.Total)
	if total == 0 {
		total = int64(len(resp.Data))
	}

	var done int64
	for off := 0; off < len(resp.Data); off += chunkSize {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		end := off + chunkSize
		if end > len(resp.Data) {
			end = len(resp.Data)
		}
		n, err := sink.Write(resp.Data[off:end])
		done += int64(n)
		if err != nil {
			return "", errs.Transport("itemoperations", false, err)
		}
		if progress != nil {
			progress(done, total)
		}
	}

	if resp.Total > 0 && done != int64(resp.Total) {
		f.log.WithFields(logrus.Fields{
			"file_reference": att.FileReference,
			"expected":       resp.Total,
			"got":            done,
		}).Warn("attachment size mismatch")
		return "", errs.Protocol("itemoperations", "attachment truncated: got %d of %d bytes", done, resp.Total)
	}

	return resp.ContentType, nil
}
