package imapclient

import (
	"context"
	"io"

	imapv2 "github.com/emersion/go-imap/v2"
	imapv2client "github.com/emersion/go-imap/v2/imapclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/luhaoyun888/go-imap-part"
	"github.com/luhaoyun888/go-imap-part/imappart"
)

// FetchSection 取回序号为 seqNum 的消息的一个节。
//
// 服务器返回 NIL 或者响应中没有该消息时返回 nil。
// ctx 只在发出命令前检查，已经发出的命令不会被中断。
func (c *Client) FetchSection(ctx context.Context, seqNum uint32, section *imap.FetchItemBodySection) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	item := &imapv2.FetchItemBodySection{
		Specifier: imapv2.PartSpecifier(section.Specifier),
		Part:      section.Part,
		Peek:      section.Peek,
	}
	if section.Partial != nil {
		item.Partial = &imapv2.SectionPartial{
			Offset: section.Partial.Offset,
			Size:   section.Partial.Size,
		}
	}

	cmd := c.client.Fetch(imapv2.SeqSetNum(seqNum), &imapv2.FetchOptions{
		BodySection: []*imapv2.FetchItemBodySection{item},
	})

	var (
		data    []byte
		readErr error
	)
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		if msg.SeqNum != seqNum || data != nil || readErr != nil {
			continue // 未读取的数据由 Next 丢弃
		}
		data, readErr = readBodySection(msg)
	}
	if err := cmd.Close(); err != nil {
		return nil, c.wrapErr(err)
	}
	if readErr != nil {
		return nil, c.wrapErr(readErr)
	}

	c.logger.Debug("fetched section",
		zap.Uint32("seq", seqNum),
		zap.Stringer("item", section),
		zap.Bool("nil", data == nil),
		zap.Int("len", len(data)))
	return data, nil
}

// readBodySection 读取一条 FETCH 响应中的第一个 BODY[] 数据项。
func readBodySection(msg *imapv2client.FetchMessageData) ([]byte, error) {
	for {
		item := msg.Next()
		if item == nil {
			return nil, nil
		}
		body, ok := item.(imapv2client.FetchItemDataBodySection)
		if !ok {
			continue
		}
		if body.Literal == nil {
			return nil, nil
		}
		return io.ReadAll(body.Literal)
	}
}

// Message 取回句柄为 h 的消息的正文结构和信封，并创建消息对象。
//
// peek 为 true 时，读取内容不会设置 \Seen 标志。
func (c *Client) Message(ctx context.Context, mbox *imappart.Mailbox, h imappart.Handle, peek bool) (*imappart.Message, error) {
	var (
		bs       imap.BodyStructure
		envelope *imap.Envelope
	)
	err := mbox.WithAddress(h, func(seqNum uint32) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		cmd := c.client.Fetch(imapv2.SeqSetNum(seqNum), &imapv2.FetchOptions{
			BodyStructure: &imapv2.FetchItemBodyStructure{Extended: true},
			Envelope:      true,
		})
		buffers, err := cmd.Collect()
		if err != nil {
			return c.wrapErr(err)
		}
		for _, buf := range buffers {
			if buf.SeqNum != seqNum {
				continue
			}
			bs = convertBodyStructure(buf.BodyStructure)
			envelope = convertEnvelope(buf.Envelope)
		}
		if bs == nil {
			return errors.Errorf("imapclient: server returned no body structure for message %v", seqNum)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mbox.NewMessage(h, bs, envelope, peek), nil
}

// MessageBySeqNum 与 Message 相同，但按当前的消息序号查找消息。
func (c *Client) MessageBySeqNum(ctx context.Context, mbox *imappart.Mailbox, seqNum uint32, peek bool) (*imappart.Message, error) {
	h, ok := mbox.Handle(seqNum)
	if !ok {
		return nil, errors.Errorf("imapclient: no message %v in mailbox %q", seqNum, mbox.Name())
	}
	return c.Message(ctx, mbox, h, peek)
}
