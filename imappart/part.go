package imappart

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
	"github.com/pkg/errors"

	"github.com/luhaoyun888/go-imap-part"
)

// ReadableBodyPart 是只读 MIME 部分的能力集合。
type ReadableBodyPart interface {
	Size() int64
	LineCount() int64
	ContentType() string
	Disposition() string
	Encoding() string
	ContentID() string
	ContentMD5() string
	Description() string
	FileName() (string, error)

	Header(ctx context.Context, name string) ([]string, error)
	AllHeaders(ctx context.Context) ([]HeaderField, error)

	ContentStream(ctx context.Context) (io.Reader, error)
	HeaderStream(ctx context.Context) (io.Reader, error)
	MIMEStream(ctx context.Context) (io.Reader, error)
	Content() Content
}

var _ ReadableBodyPart = (*Part)(nil)

// HeaderField 是一个头字段。
type HeaderField struct {
	Key, Value string
}

// Line 返回 "Key: Value" 形式的头行。
func (f HeaderField) Line() string {
	return f.Key + ": " + f.Value
}

// Part 是正文结构树中一个节点的只读视图。
//
// Part 可以安全地在多个 goroutine 中使用。
type Part struct {
	msg  *Message
	bs   imap.BodyStructure
	path imap.SectionPath
	// text 为 true 时该部分是一个报文的正文：内容用 <path>.TEXT 取回，
	// 头用 <path>.HEADER 取回。
	text        bool
	contentType string

	description func() string

	headerMutex sync.Mutex
	header      *textproto.Header // 加载前为 nil

	contentMutex sync.Mutex
	content      Content
}

// NewPart 为消息 msg 中节路径为 path 的节点 bs 创建一个 Part。
//
// 调用方负责保证 bs 确实位于 path。通常应使用 Message.Part 或 Multipart.Part。
func NewPart(msg *Message, bs imap.BodyStructure, path imap.SectionPath) *Part {
	return newPart(msg, bs, path, false)
}

func newPart(msg *Message, bs imap.BodyStructure, path imap.SectionPath, text bool) *Part {
	p := &Part{
		msg:         msg,
		bs:          bs,
		path:        path,
		text:        text,
		contentType: formatContentType(bs),
	}
	p.description = sync.OnceValue(p.decodeDescription)
	return p
}

// formatContentType 生成 Content-Type 头的值，例如 `text/plain; charset=utf-8`。
func formatContentType(bs imap.BodyStructure) string {
	var params map[string]string
	switch bs := bs.(type) {
	case *imap.BodyStructureSinglePart:
		params = bs.Params
	case *imap.BodyStructureMultiPart:
		params = bs.Params()
	}

	var h message.Header
	h.SetContentType(bs.MediaType(), params)
	if v := h.Get("Content-Type"); v != "" {
		return v
	}
	return bs.MediaType() // 参数无法格式化
}

// Message 返回该部分所属的消息。
func (p *Part) Message() *Message {
	return p.msg
}

// BodyStructure 返回该部分的正文结构，不得修改。
func (p *Part) BodyStructure() imap.BodyStructure {
	return p.bs
}

// SectionPath 返回该部分的节路径，不得修改。
func (p *Part) SectionPath() imap.SectionPath {
	return p.path
}

// Size 返回声明的字节数，未知时返回 -1。
func (p *Part) Size() int64 {
	if bs, ok := p.bs.(*imap.BodyStructureSinglePart); ok {
		return int64(bs.Size)
	}
	return -1
}

// LineCount 返回声明的行数，未知时返回 -1。
func (p *Part) LineCount() int64 {
	if bs, ok := p.bs.(*imap.BodyStructureSinglePart); ok {
		return bs.NumLines()
	}
	return -1
}

// ContentType 返回 Content-Type 头的值。
func (p *Part) ContentType() string {
	return p.contentType
}

// MediaType 返回小写的 MIME 类型，例如 "text/plain"。
func (p *Part) MediaType() string {
	return p.bs.MediaType()
}

// Disposition 返回处置方式，例如 "attachment"，没有时返回空字符串。
func (p *Part) Disposition() string {
	if disp := p.bs.Disposition(); disp != nil {
		return disp.Value
	}
	return ""
}

// DispositionParams 返回 Content-Disposition 的参数，不得修改。
func (p *Part) DispositionParams() map[string]string {
	if disp := p.bs.Disposition(); disp != nil {
		return disp.Params
	}
	return nil
}

// Encoding 返回 Content-Transfer-Encoding。
func (p *Part) Encoding() string {
	if bs, ok := p.bs.(*imap.BodyStructureSinglePart); ok {
		return bs.Encoding
	}
	return ""
}

// ContentID 返回 Content-ID。
func (p *Part) ContentID() string {
	if bs, ok := p.bs.(*imap.BodyStructureSinglePart); ok {
		return bs.ID
	}
	return ""
}

// ContentMD5 返回 Content-MD5。
func (p *Part) ContentMD5() string {
	if bs, ok := p.bs.(*imap.BodyStructureSinglePart); ok {
		return bs.MD5()
	}
	return ""
}

// Description 返回解码后的 Content-Description。
//
// 如果描述使用了不支持的字符集，返回原始值。
func (p *Part) Description() string {
	return p.description()
}

func (p *Part) rawDescription() string {
	if bs, ok := p.bs.(*imap.BodyStructureSinglePart); ok {
		return bs.Description
	}
	return ""
}

func (p *Part) decodeDescription() string {
	raw := p.rawDescription()
	if raw == "" {
		return ""
	}
	// decodeText 失败时返回原始值
	s, _ := p.msg.mbox.options.decodeText(raw)
	return s
}

// FileName 返回部分的文件名。
//
// 先查找 Content-Disposition 的 filename 参数，再查找 Content-Type 的 name 参数。
// 如果启用了 Options.DecodeFileName，解码失败时返回 *DecodeError。
func (p *Part) FileName() (string, error) {
	var filename string
	if disp := p.bs.Disposition(); disp != nil {
		filename = disp.Params["filename"]
	}
	if filename == "" {
		switch bs := p.bs.(type) {
		case *imap.BodyStructureSinglePart:
			filename = bs.Params["name"]
		case *imap.BodyStructureMultiPart:
			filename = bs.Params()["name"]
		}
	}
	if filename == "" || !p.msg.mbox.options.DecodeFileName {
		return filename, nil
	}

	decoded, err := p.msg.mbox.options.decodeText(filename)
	if err != nil {
		return "", &DecodeError{Value: filename, Err: err}
	}
	return decoded, nil
}

// contentSection 返回取回内容的 FETCH 数据项。
func (p *Part) contentSection(peek bool) *imap.FetchItemBodySection {
	section := &imap.FetchItemBodySection{Part: p.path, Peek: peek}
	if p.text {
		section.Specifier = imap.PartSpecifierText
	}
	return section
}

// headerSection 返回取回头的 FETCH 数据项。头总是用 PEEK 取回。
func (p *Part) headerSection() *imap.FetchItemBodySection {
	section := &imap.FetchItemBodySection{Part: p.path, Specifier: imap.PartSpecifierMIME, Peek: true}
	if p.text {
		section.Specifier = imap.PartSpecifierHeader
	}
	return section
}

// LoadHeaders 加载该部分的头。多次调用是安全的，头只加载一次。
//
// 旧方言的服务器无法按部分返回头，此时根据正文结构合成 Content-Type、
// Content-Transfer-Encoding、Content-Description、Content-ID 和 Content-MD5。
func (p *Part) LoadHeaders(ctx context.Context) error {
	_, err := p.loadHeaders(ctx)
	return err
}

func (p *Part) loadHeaders(ctx context.Context) (*textproto.Header, error) {
	p.headerMutex.Lock()
	defer p.headerMutex.Unlock()

	if p.header != nil {
		return p.header, nil
	}

	mbox := p.msg.mbox
	var h textproto.Header
	err := mbox.withAddress(p.msg.handle, func(seqNum uint32) error {
		var raw []byte
		if mbox.revision().SupportsPartHeaders() {
			var err error
			if raw, err = p.fetchHeaderBlock(ctx, seqNum); err != nil {
				return err
			}
		} else {
			raw = p.synthesizeHeaderBlock()
		}

		var err error
		h, err = textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
		return errors.Wrapf(err, "parse headers of section %v", p.path)
	})
	if err != nil {
		return nil, err
	}

	p.header = &h
	return p.header, nil
}

// fetchHeaderBlock 必须在临界区内调用。
func (p *Part) fetchHeaderBlock(ctx context.Context, seqNum uint32) ([]byte, error) {
	section := p.headerSection()
	raw, err := p.msg.mbox.conn.FetchSection(ctx, seqNum, section)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.Wrapf(ErrHeaderFetchFailed, "%v", section)
	}
	// 头块以空行结束
	if !bytes.HasSuffix(raw, []byte("\n\n")) && !bytes.HasSuffix(raw, []byte("\r\n\r\n")) {
		raw = append(raw[:len(raw):len(raw)], "\r\n"...)
	}
	return raw, nil
}

// synthesizeHeaderBlock 根据正文结构生成头块，包括结尾的空行。
func (p *Part) synthesizeHeaderBlock() []byte {
	var buf bytes.Buffer
	writeField := func(k, v string) {
		if v == "" {
			return
		}
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(strings.NewReplacer("\r", "", "\n", "").Replace(v))
		buf.WriteString("\r\n")
	}
	writeField("Content-Type", p.contentType)
	writeField("Content-Transfer-Encoding", p.Encoding())
	writeField("Content-Description", p.rawDescription())
	writeField("Content-ID", p.ContentID())
	writeField("Content-MD5", p.ContentMD5())
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// Header 返回名为 name 的头的所有值。
func (p *Part) Header(ctx context.Context, name string) ([]string, error) {
	h, err := p.loadHeaders(ctx)
	if err != nil {
		return nil, err
	}
	var l []string
	fields := h.FieldsByKey(name)
	for fields.Next() {
		l = append(l, fields.Value())
	}
	return l, nil
}

// AllHeaders 按出现顺序返回所有头字段。
func (p *Part) AllHeaders(ctx context.Context) ([]HeaderField, error) {
	return p.filterHeaders(ctx, func(string) bool { return true })
}

// MatchingHeaders 返回名称在 names 中的头字段。
func (p *Part) MatchingHeaders(ctx context.Context, names []string) ([]HeaderField, error) {
	return p.filterHeaders(ctx, func(k string) bool { return containsFold(names, k) })
}

// NonMatchingHeaders 返回名称不在 names 中的头字段。
func (p *Part) NonMatchingHeaders(ctx context.Context, names []string) ([]HeaderField, error) {
	return p.filterHeaders(ctx, func(k string) bool { return !containsFold(names, k) })
}

// AllHeaderLines 返回所有 "Key: Value" 形式的头行。
func (p *Part) AllHeaderLines(ctx context.Context) ([]string, error) {
	return headerLines(p.AllHeaders(ctx))
}

// MatchingHeaderLines 返回名称在 names 中的头行。
func (p *Part) MatchingHeaderLines(ctx context.Context, names []string) ([]string, error) {
	return headerLines(p.MatchingHeaders(ctx, names))
}

// NonMatchingHeaderLines 返回名称不在 names 中的头行。
func (p *Part) NonMatchingHeaderLines(ctx context.Context, names []string) ([]string, error) {
	return headerLines(p.NonMatchingHeaders(ctx, names))
}

func (p *Part) filterHeaders(ctx context.Context, match func(k string) bool) ([]HeaderField, error) {
	h, err := p.loadHeaders(ctx)
	if err != nil {
		return nil, err
	}
	var l []HeaderField
	fields := h.Fields()
	for fields.Next() {
		if match(fields.Key()) {
			l = append(l, HeaderField{Key: fields.Key(), Value: fields.Value()})
		}
	}
	return l, nil
}

func headerLines(fields []HeaderField, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	l := make([]string, len(fields))
	for i, f := range fields {
		l[i] = f.Line()
	}
	return l, nil
}

func containsFold(names []string, k string) bool {
	for _, name := range names {
		if strings.EqualFold(name, k) {
			return true
		}
	}
	return false
}

// Entity 返回该部分的 go-message 实体，正文已按 Content-Transfer-Encoding 解码。
//
// 如果传输编码或字符集未知，仍然返回实体，同时返回一个满足
// message.IsUnknownEncoding 或 message.IsUnknownCharset 的错误。
func (p *Part) Entity(ctx context.Context) (*message.Entity, error) {
	h, err := p.loadHeaders(ctx)
	if err != nil {
		return nil, err
	}
	r, err := p.ContentStream(ctx)
	if err != nil {
		return nil, err
	}
	return message.New(message.Header{Header: h.Copy()}, r)
}

// 以下修改操作总是返回 ErrReadOnly。

// SetDisposition 总是返回 ErrReadOnly。
func (p *Part) SetDisposition(disposition string) error { return ErrReadOnly }

// SetContentMD5 总是返回 ErrReadOnly。
func (p *Part) SetContentMD5(md5 string) error { return ErrReadOnly }

// SetDescription 总是返回 ErrReadOnly。
func (p *Part) SetDescription(description string) error { return ErrReadOnly }

// SetFileName 总是返回 ErrReadOnly。
func (p *Part) SetFileName(filename string) error { return ErrReadOnly }

// SetHeader 总是返回 ErrReadOnly。
func (p *Part) SetHeader(name, value string) error { return ErrReadOnly }

// AddHeader 总是返回 ErrReadOnly。
func (p *Part) AddHeader(name, value string) error { return ErrReadOnly }

// RemoveHeader 总是返回 ErrReadOnly。
func (p *Part) RemoveHeader(name string) error { return ErrReadOnly }

// AddHeaderLine 总是返回 ErrReadOnly。
func (p *Part) AddHeaderLine(line string) error { return ErrReadOnly }

// SetContent 总是返回 ErrReadOnly。
func (p *Part) SetContent(r io.Reader, contentType string) error { return ErrReadOnly }

// SetText 总是返回 ErrReadOnly。
func (p *Part) SetText(text string) error { return ErrReadOnly }

// SetMultipart 总是返回 ErrReadOnly。
func (p *Part) SetMultipart(mp *Multipart) error { return ErrReadOnly }
