package imappart_test

import (
	"context"
	"sync"
	"testing"

	"github.com/luhaoyun888/go-imap-part"
	"github.com/luhaoyun888/go-imap-part/imappart"
)

// fakeFetch 记录一次 FetchSection 调用。
type fakeFetch struct {
	seqNum uint32
	item   string
}

// fakeConn 是一个记录所有命令的 imappart.Conn。
//
// sections 以节描述（例如 "1.2.MIME"）为键，所有消息共享同一份内容。
// gone 中的序号总是返回 NIL。
type fakeConn struct {
	mutex    sync.Mutex
	revision imap.Revision
	sections map[string][]byte
	gone     map[uint32]bool
	fetches  []fakeFetch
	noops    int
	fetchErr error

	afterFetch func(item *imap.FetchItemBodySection)
	onNoop     func()
}

var _ imappart.Conn = (*fakeConn)(nil)

func newFakeConn(rev imap.Revision) *fakeConn {
	return &fakeConn{
		revision: rev,
		sections: make(map[string][]byte),
		gone:     make(map[uint32]bool),
	}
}

func (c *fakeConn) Revision() imap.Revision {
	return c.revision
}

func (c *fakeConn) FetchSection(ctx context.Context, seqNum uint32, item *imap.FetchItemBodySection) ([]byte, error) {
	c.mutex.Lock()
	c.fetches = append(c.fetches, fakeFetch{seqNum: seqNum, item: item.String()})
	data, ok := c.sections[item.Section()]
	gone := c.gone[seqNum]
	afterFetch := c.afterFetch
	fetchErr := c.fetchErr
	c.mutex.Unlock()

	if afterFetch != nil {
		defer afterFetch(item)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if !ok || gone {
		return nil, nil
	}
	if item.Partial != nil {
		start := item.Partial.Offset
		if start > int64(len(data)) {
			start = int64(len(data))
		}
		end := start + item.Partial.Size
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		data = data[start:end]
	}
	return append([]byte{}, data...), nil
}

func (c *fakeConn) Noop(ctx context.Context) error {
	c.mutex.Lock()
	c.noops++
	onNoop := c.onNoop
	c.mutex.Unlock()

	if onNoop != nil {
		onNoop()
	}
	return nil
}

func (c *fakeConn) setSection(section string, data string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.sections[section] = []byte(data)
}

func (c *fakeConn) fetchItems() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	l := make([]string, len(c.fetches))
	for i, f := range c.fetches {
		l[i] = f.item
	}
	return l
}

func (c *fakeConn) fetchSeqNums() []uint32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	l := make([]uint32, len(c.fetches))
	for i, f := range c.fetches {
		l[i] = f.seqNum
	}
	return l
}

func (c *fakeConn) noopCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.noops
}

// newTestMailbox 创建一个包含 3 条消息的邮箱。
func newTestMailbox(t *testing.T, rev imap.Revision, options *imappart.Options) (*imappart.Mailbox, *fakeConn) {
	t.Helper()
	conn := newFakeConn(rev)
	mbox := imappart.NewMailbox("INBOX", 3, conn, options)
	t.Cleanup(mbox.Close)
	return mbox, conn
}

// newTestMessage 返回邮箱中序号为 seqNum 的消息。
func newTestMessage(t *testing.T, mbox *imappart.Mailbox, seqNum uint32, bs imap.BodyStructure, peek bool) *imappart.Message {
	t.Helper()
	h, ok := mbox.Handle(seqNum)
	if !ok {
		t.Fatalf("Handle(%v) not found", seqNum)
	}
	return mbox.NewMessage(h, bs, nil, peek)
}

var (
	textPart = &imap.BodyStructureSinglePart{
		Type:        "TEXT",
		Subtype:     "PLAIN",
		Params:      map[string]string{"charset": "utf-8"},
		ID:          "<text@example.org>",
		Description: "=?utf-8?q?caf=C3=A9?=",
		Encoding:    "quoted-printable",
		Size:        10000,
		Text:        &imap.BodyStructureText{NumLines: 200},
		Extended: &imap.BodyStructureSinglePartExt{
			MD5:         "Q2hlY2sgSW50ZWdyaXR5IQ==",
			Disposition: &imap.BodyStructureDisposition{Value: "inline"},
		},
	}
	attachmentPart = &imap.BodyStructureSinglePart{
		Type:     "application",
		Subtype:  "pdf",
		Params:   map[string]string{"name": "fallback.pdf"},
		Encoding: "base64",
		Size:     1234,
		Extended: &imap.BodyStructureSinglePartExt{
			Disposition: &imap.BodyStructureDisposition{
				Value:  "attachment",
				Params: map[string]string{"filename": "=?utf-8?q?r=C3=A9sum=C3=A9.pdf?="},
			},
		},
	}
	mixedBody = &imap.BodyStructureMultiPart{
		Children: []imap.BodyStructure{textPart, attachmentPart},
		Subtype:  "mixed",
		Extended: &imap.BodyStructureMultiPartExt{
			Params: map[string]string{"boundary": "b1"},
		},
	}
)

// nestedBody 返回 multipart/mixed [text/plain, message/rfc822 [multipart/alternative [text/plain, text/html]]]。
func nestedBody() *imap.BodyStructureMultiPart {
	inner := &imap.BodyStructureMultiPart{
		Children: []imap.BodyStructure{
			&imap.BodyStructureSinglePart{Type: "text", Subtype: "plain", Size: 5, Text: &imap.BodyStructureText{NumLines: 1}},
			&imap.BodyStructureSinglePart{Type: "text", Subtype: "html", Size: 12, Text: &imap.BodyStructureText{NumLines: 1}},
		},
		Subtype: "alternative",
	}
	return &imap.BodyStructureMultiPart{
		Children: []imap.BodyStructure{
			&imap.BodyStructureSinglePart{Type: "text", Subtype: "plain", Size: 3, Text: &imap.BodyStructureText{NumLines: 1}},
			&imap.BodyStructureSinglePart{
				Type:    "message",
				Subtype: "rfc822",
				Size:    300,
				MessageRFC822: &imap.BodyStructureMessageRFC822{
					Envelope: &imap.Envelope{
						Subject:   "Quarterly report",
						MessageID: "inner@example.org",
						From:      []imap.Address{{Name: "Alice", Mailbox: "alice", Host: "example.org"}},
					},
					BodyStructure: inner,
					NumLines:      12,
				},
			},
		},
		Subtype: "mixed",
	}
}
