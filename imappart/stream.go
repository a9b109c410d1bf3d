package imappart

import (
	"bytes"
	"context"
	"io"

	"github.com/emersion/go-message/textproto"
	"go.uber.org/zap"

	"github.com/luhaoyun888/go-imap-part"
)

// ContentStream 返回该部分的原始内容（未做传输解码）。
//
// IMAP4rev1 及以上且启用分块时，返回的读取器按需分块取回内容，
// 每一块单独进入临界区。否则一次取回整个节。
//
// 服务器对不存在的内容和空内容返回相同的 NIL 响应，此时会向服务器确认
// 消息是否已被删除：已删除返回 ErrPartRemoved，否则返回一个空的读取器。
func (p *Part) ContentStream(ctx context.Context) (io.Reader, error) {
	msg := p.msg
	mbox := msg.mbox
	peek := msg.peek // 在临界区外读取，创建后不会改变

	var (
		r    io.Reader
		data []byte
	)
	err := mbox.withAddress(msg.handle, func(seqNum uint32) error {
		if mbox.revision().SupportsPartHeaders() && mbox.options.fetchSize() > 0 {
			size := p.Size()
			if mbox.options.IgnoreBodyStructureSize {
				size = -1
			}
			r = newChunkReader(ctx, p, p.contentSection(peek), size)
			return nil
		}

		var err error
		data, err = mbox.conn.FetchSection(ctx, seqNum, p.contentSection(peek))
		return err
	})
	if err != nil {
		return nil, err
	}
	if r != nil {
		return r, nil
	}

	if len(data) == 0 {
		if err := mbox.forceRemovalCheck(ctx, msg.handle); err != nil {
			return nil, err
		}
		// 服务器认为消息仍然存在，内容确实为空
		return bytes.NewReader(nil), nil
	}
	return bytes.NewReader(data), nil
}

// HeaderStream 返回该部分的 MIME 头，包括结尾的空行。
//
// IMAP4rev1 及以上总是重新向服务器取回头块。旧方言则序列化已加载（合成）的头。
func (p *Part) HeaderStream(ctx context.Context) (io.Reader, error) {
	mbox := p.msg.mbox
	if !mbox.revision().SupportsPartHeaders() {
		h, err := p.loadHeaders(ctx)
		if err != nil {
			return nil, err
		}
		// 头可能早已加载，仍需确认消息没有被删除
		if err := mbox.withAddress(p.msg.handle, func(uint32) error { return nil }); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := textproto.WriteHeader(&buf, *h); err != nil {
			return nil, err
		}
		return &buf, nil
	}

	var raw []byte
	err := mbox.withAddress(p.msg.handle, func(seqNum uint32) error {
		var err error
		raw, err = p.fetchHeaderBlock(ctx, seqNum)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(raw), nil
}

// MIMEStream 返回该部分的 MIME 形式：头、空行、内容。
func (p *Part) MIMEStream(ctx context.Context) (io.Reader, error) {
	header, err := p.HeaderStream(ctx)
	if err != nil {
		return nil, err
	}
	content, err := p.ContentStream(ctx)
	if err != nil {
		return nil, err
	}
	return io.MultiReader(header, content), nil
}

// chunkReader 按需分块取回一个节的内容。
type chunkReader struct {
	ctx     context.Context
	part    *Part
	section imap.FetchItemBodySection
	size    int64 // 声明的大小，-1 表示未知
	block   int64
	pos     int64 // 下一块的偏移量
	buf     []byte
	eof     bool
}

func newChunkReader(ctx context.Context, p *Part, section *imap.FetchItemBodySection, size int64) *chunkReader {
	return &chunkReader{
		ctx:     ctx,
		part:    p,
		section: *section,
		size:    size,
		block:   int64(p.msg.mbox.options.fetchSize()),
	}
}

func (r *chunkReader) Read(b []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(b, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// fill 取回下一块。
func (r *chunkReader) fill() error {
	n := r.block
	if r.size >= 0 {
		if r.pos >= r.size {
			r.eof = true
			return nil
		}
		if remaining := r.size - r.pos; remaining < n {
			n = remaining
		}
	}

	section := r.section
	section.Partial = &imap.SectionPartial{Offset: r.pos, Size: n}

	msg := r.part.msg
	mbox := msg.mbox
	var data []byte
	err := mbox.withAddress(msg.handle, func(seqNum uint32) error {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		var err error
		data, err = mbox.conn.FetchSection(r.ctx, seqNum, &section)
		return err
	})
	if IsRemoved(err) {
		return ErrPartRemoved
	} else if err != nil {
		return err
	}

	mbox.logger.Debug("fetched chunk",
		zap.Stringer("section", &section),
		zap.Int("len", len(data)))

	if data == nil {
		// NIL：消息被删除，或者已经没有内容
		if err := mbox.forceRemovalCheck(r.ctx, msg.handle); err != nil {
			return err
		}
		r.eof = true
		return nil
	}

	r.pos += int64(len(data))
	r.buf = data
	if int64(len(data)) < n || (r.size >= 0 && r.pos >= r.size) {
		r.eof = true
	}
	return nil
}
