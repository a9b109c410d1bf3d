package imappart

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/luhaoyun888/go-imap-part"
)

// Content 是一个部分的内容视图。
//
// Content 值可以是 *Multipart、*NestedMessage 或 *Data。
type Content interface {
	// MediaType 返回内容的 MIME 类型，例如 "multipart/mixed"。
	MediaType() string

	content()
}

var (
	_ Content = (*Multipart)(nil)
	_ Content = (*NestedMessage)(nil)
	_ Content = (*Data)(nil)
)

// Content 返回该部分的内容视图。结果只计算一次。
//
// 多部分节点返回 *Multipart；在 IMAP4rev1 及以上，带有信封的 message/rfc822
// 节点返回 *NestedMessage；其他节点返回 *Data。
func (p *Part) Content() Content {
	p.contentMutex.Lock()
	defer p.contentMutex.Unlock()

	if p.content == nil {
		p.content = p.classify()
	}
	return p.content
}

func (p *Part) classify() Content {
	switch bs := p.bs.(type) {
	case *imap.BodyStructureMultiPart:
		return newMultipart(p.msg, bs, p.path)
	case *imap.BodyStructureSinglePart:
		rfc822 := bs.MessageRFC822
		if rfc822 != nil && rfc822.Envelope != nil && rfc822.BodyStructure != nil &&
			p.msg.mbox.revision().SupportsPartHeaders() {
			return newNestedMessage(p.msg, rfc822.BodyStructure, rfc822.Envelope, p.path, p.contentType)
		}
	}
	return &Data{part: p}
}

// contentOf 返回正文结构 bs 作为一个报文正文时的内容视图。
func contentOf(msg *Message, bs imap.BodyStructure, path imap.SectionPath, text bool) Content {
	if mp, ok := bs.(*imap.BodyStructureMultiPart); ok {
		return newMultipart(msg, mp, path)
	}
	return newPart(msg, bs, path, text).Content()
}

// Multipart 是多部分节点的内容视图。子部分在第一次被访问时才创建。
type Multipart struct {
	msg      *Message
	bs       *imap.BodyStructureMultiPart
	path     imap.SectionPath
	mutex    sync.Mutex
	children []*Part
}

func newMultipart(msg *Message, bs *imap.BodyStructureMultiPart, path imap.SectionPath) *Multipart {
	return &Multipart{
		msg:      msg,
		bs:       bs,
		path:     path,
		children: make([]*Part, len(bs.Children)),
	}
}

func (*Multipart) content() {}

// MediaType 返回 "multipart/<subtype>"。
func (mp *Multipart) MediaType() string {
	return mp.bs.MediaType()
}

// Len 返回子部分的数量。
func (mp *Multipart) Len() int {
	return len(mp.bs.Children)
}

// Part 返回第 i 个（从 0 开始）子部分，其节路径为 path + "." + (i+1)。
func (mp *Multipart) Part(i int) (*Part, error) {
	if i < 0 || i >= len(mp.bs.Children) {
		return nil, fmt.Errorf("imappart: part index %v out of range [0, %v)", i, len(mp.bs.Children))
	}

	mp.mutex.Lock()
	defer mp.mutex.Unlock()

	if mp.children[i] == nil {
		mp.children[i] = newPart(mp.msg, mp.bs.Children[i], mp.path.Child(i), false)
	}
	return mp.children[i], nil
}

// NestedMessage 是 message/rfc822 部分的内容视图。
//
// 报文级的属性（主题、地址等）来自取回正文结构时得到的信封，
// 正文仍然通过同一节路径上的 Part 读取。
type NestedMessage struct {
	msg         *Message
	bs          imap.BodyStructure
	envelope    *imap.Envelope
	path        imap.SectionPath
	contentType string

	once sync.Once
	body Content
	text *Part
}

func newNestedMessage(msg *Message, bs imap.BodyStructure, envelope *imap.Envelope, path imap.SectionPath, contentType string) *NestedMessage {
	return &NestedMessage{
		msg:         msg,
		bs:          bs,
		envelope:    envelope,
		path:        path,
		contentType: contentType,
	}
}

func (*NestedMessage) content() {}

// MediaType 返回 "message/rfc822"。
func (nm *NestedMessage) MediaType() string {
	return "message/rfc822"
}

// ContentType 返回外层部分的 Content-Type 头的值。
func (nm *NestedMessage) ContentType() string {
	return nm.contentType
}

// SectionPath 返回内嵌报文的节路径，不得修改。
func (nm *NestedMessage) SectionPath() imap.SectionPath {
	return nm.path
}

// BodyStructure 返回内嵌报文正文的结构，不得修改。
func (nm *NestedMessage) BodyStructure() imap.BodyStructure {
	return nm.bs
}

// Envelope 返回内嵌报文的信封，不得修改。
func (nm *NestedMessage) Envelope() *imap.Envelope {
	return nm.envelope
}

func (nm *NestedMessage) Subject() string { return nm.envelope.Subject }
func (nm *NestedMessage) Date() time.Time { return nm.envelope.Date }
func (nm *NestedMessage) MessageID() string { return nm.envelope.MessageID }
func (nm *NestedMessage) InReplyTo() []string { return nm.envelope.InReplyTo }
func (nm *NestedMessage) From() []imap.Address { return nm.envelope.From }
func (nm *NestedMessage) Sender() []imap.Address { return nm.envelope.Sender }
func (nm *NestedMessage) ReplyTo() []imap.Address { return nm.envelope.ReplyTo }
func (nm *NestedMessage) To() []imap.Address { return nm.envelope.To }
func (nm *NestedMessage) Cc() []imap.Address { return nm.envelope.Cc }
func (nm *NestedMessage) Bcc() []imap.Address { return nm.envelope.Bcc }

func (nm *NestedMessage) init() {
	nm.once.Do(func() {
		nm.text = newPart(nm.msg, nm.bs, nm.path, true)
		if mp, ok := nm.bs.(*imap.BodyStructureMultiPart); ok {
			nm.body = newMultipart(nm.msg, mp, nm.path)
		} else {
			nm.body = nm.text.Content()
		}
	})
}

// Content 返回内嵌报文正文的内容视图。
//
// 多部分正文的子部分位于 <path>.1、<path>.2 等；单部分正文通过 <path>.TEXT 读取。
func (nm *NestedMessage) Content() Content {
	nm.init()
	return nm.body
}

// Text 返回内嵌报文正文（<path>.TEXT）的 Part。
func (nm *NestedMessage) Text() *Part {
	nm.init()
	return nm.text
}

// HeaderStream 返回内嵌报文的头（<path>.HEADER），包括结尾的空行。
func (nm *NestedMessage) HeaderStream(ctx context.Context) (io.Reader, error) {
	return nm.Text().HeaderStream(ctx)
}

// Data 是普通部分的内容视图：一个带类型的字节流。
type Data struct {
	part *Part
}

func (*Data) content() {}

// MediaType 返回部分的 MIME 类型。
func (d *Data) MediaType() string {
	return d.part.MediaType()
}

// ContentType 返回部分的 Content-Type 头的值。
func (d *Data) ContentType() string {
	return d.part.ContentType()
}

// Part 返回数据所属的部分。
func (d *Data) Part() *Part {
	return d.part
}

// Open 返回内容的原始字节流。
func (d *Data) Open(ctx context.Context) (io.Reader, error) {
	return d.part.ContentStream(ctx)
}
