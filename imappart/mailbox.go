package imappart

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/luhaoyun888/go-imap-part"
	"github.com/luhaoyun888/go-imap-part/internal/seqtrack"
)

// Handle 是会话内稳定的消息标识。消息序号会随着 EXPUNGE 改变，Handle 不会。
type Handle = seqtrack.Handle

// Mailbox 是一个已选择的邮箱，拥有连接、句柄表和临界区。
//
// Mailbox 可以安全地在多个 goroutine 中使用。
type Mailbox struct {
	name    string
	conn    Conn
	tracker *seqtrack.Tracker
	options Options
	logger  *zap.Logger
}

// NewMailbox 创建一个包含 numMessages 条消息的邮箱。
//
// nil 选项指针等效于零选项值。
func NewMailbox(name string, numMessages uint32, conn Conn, options *Options) *Mailbox {
	if options == nil {
		options = &Options{}
	}
	return &Mailbox{
		name:    name,
		conn:    conn,
		tracker: seqtrack.New(numMessages),
		options: *options,
		logger:  options.logger().With(zap.String("mailbox", name)),
	}
}

// Name 返回邮箱名称。
func (mbox *Mailbox) Name() string {
	return mbox.name
}

// Expunge 处理服务器的 EXPUNGE 通知。可以在任何 goroutine 中调用。
func (mbox *Mailbox) Expunge(seqNum uint32) {
	mbox.logger.Debug("message expunged", zap.Uint32("seq", seqNum))
	mbox.tracker.Expunge(seqNum)
}

// Exists 处理服务器的 EXISTS 通知。可以在任何 goroutine 中调用。
func (mbox *Mailbox) Exists(numMessages uint32) {
	mbox.tracker.Exists(numMessages)
}

// Close 使该邮箱的所有消息、部分和正在读取的流永久失效。
func (mbox *Mailbox) Close() {
	if mbox.tracker.Closed() {
		return
	}
	mbox.tracker.Close()
	mbox.logger.Debug("mailbox closed")
}

// Closed 返回邮箱是否已关闭。
func (mbox *Mailbox) Closed() bool {
	return mbox.tracker.Closed()
}

// Len 返回邮箱中当前的消息数量。
func (mbox *Mailbox) Len() uint32 {
	return mbox.tracker.Len()
}

// Handle 返回当前序号为 seqNum 的消息的句柄。
func (mbox *Mailbox) Handle(seqNum uint32) (Handle, bool) {
	return mbox.tracker.Lookup(seqNum)
}

// NewMessage 为句柄 h 创建一个消息对象。
//
// bs 和 envelope 通常来自同一次 FETCH (BODYSTRUCTURE ENVELOPE)。
// peek 为 true 时，读取内容使用 BODY.PEEK[]，不会设置 \Seen 标志。
func (mbox *Mailbox) NewMessage(h Handle, bs imap.BodyStructure, envelope *imap.Envelope, peek bool) *Message {
	return &Message{
		mbox:     mbox,
		handle:   h,
		bs:       bs,
		envelope: envelope,
		peek:     peek,
	}
}

func (mbox *Mailbox) revision() imap.Revision {
	return mbox.conn.Revision()
}

// WithAddress 在邮箱的临界区内用 h 当前的序号调用 fn。
//
// fn 可以通过连接发出命令。消息已被删除时返回 ErrMessageRemoved，
// 邮箱已关闭时返回 *FolderClosedError。
func (mbox *Mailbox) WithAddress(h Handle, fn func(seqNum uint32) error) error {
	return mbox.withAddress(h, fn)
}

// withAddress 在临界区内用 h 当前的序号调用 fn，并把错误转换为本包的错误。
func (mbox *Mailbox) withAddress(h Handle, fn func(seqNum uint32) error) error {
	err := mbox.tracker.WithAddress(h, fn)
	if err == nil && mbox.tracker.Closed() {
		// 邮箱在命令执行期间被关闭，结果不可信
		err = seqtrack.ErrClosed
	}
	return mbox.wrapErr(err)
}

// forceRemovalCheck 向服务器确认 h 是否已被删除。已被删除时返回 ErrPartRemoved。
func (mbox *Mailbox) forceRemovalCheck(ctx context.Context, h Handle) error {
	removed, err := mbox.tracker.Refresh(h, func() error {
		return mbox.conn.Noop(ctx)
	})
	if err != nil {
		return mbox.wrapErr(err)
	}
	mbox.logger.Debug("forced removal check", zap.Uint32("handle", uint32(h)), zap.Bool("removed", removed))
	if removed {
		return ErrPartRemoved
	}
	return nil
}

func (mbox *Mailbox) wrapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, seqtrack.ErrClosed):
		return &FolderClosedError{Mailbox: mbox.name, Err: ErrConnectionClosed}
	case errors.Is(err, seqtrack.ErrRemoved):
		return ErrMessageRemoved
	case isConnFailure(err):
		return &FolderClosedError{Mailbox: mbox.name, Err: err}
	case errors.Is(err, ErrMessageRemoved), errors.Is(err, ErrHeaderFetchFailed):
		return err
	default:
		return errors.Wrap(err, "imappart")
	}
}

// Message 是邮箱中的一条消息，持有其正文结构和信封。
type Message struct {
	mbox     *Mailbox
	handle   Handle
	bs       imap.BodyStructure
	envelope *imap.Envelope
	peek     bool
}

// Mailbox 返回消息所属的邮箱。
func (msg *Message) Mailbox() *Mailbox {
	return msg.mbox
}

// Handle 返回消息的句柄。
func (msg *Message) Handle() Handle {
	return msg.handle
}

// BodyStructure 返回消息的正文结构，不得修改。
func (msg *Message) BodyStructure() imap.BodyStructure {
	return msg.bs
}

// Envelope 返回消息的信封（如果有的话），不得修改。
func (msg *Message) Envelope() *imap.Envelope {
	return msg.envelope
}

// Peek 返回读取内容时是否使用 BODY.PEEK[]。创建后不会改变。
func (msg *Message) Peek() bool {
	return msg.peek
}

// Removed 向服务器确认消息是否已被删除。
func (msg *Message) Removed(ctx context.Context) (bool, error) {
	err := msg.mbox.forceRemovalCheck(ctx, msg.handle)
	if IsRemoved(err) {
		return true, nil
	}
	return false, err
}

// Content 返回消息正文的视图：多部分消息返回 *Multipart，否则返回整个正文的 *Data。
func (msg *Message) Content() Content {
	return contentOf(msg, msg.bs, nil, true)
}

// Part 返回节路径为 path 的部分。
//
// 路径按 RFC 9051 第 6.4.5 节解释：message/rfc822 部分的子路径指向内嵌报文的正文。
// 空路径表示整个正文。
func (msg *Message) Part(path imap.SectionPath) (*Part, error) {
	if len(path) == 0 {
		return newPart(msg, msg.bs, nil, true), nil
	}

	bs := msg.bs
	for depth, num := range path {
		next, ok := childNode(bs, num, depth == 0)
		if !ok {
			return nil, errors.Errorf("imappart: no part %v in message", path)
		}
		bs = next
	}
	return newPart(msg, bs, path, false), nil
}

// childNode 返回 bs 的第 num 个（从 1 开始）子节点。
func childNode(bs imap.BodyStructure, num int, top bool) (imap.BodyStructure, bool) {
	switch bs := bs.(type) {
	case *imap.BodyStructureMultiPart:
		if num < 1 || num > len(bs.Children) {
			return nil, false
		}
		return bs.Children[num-1], true
	case *imap.BodyStructureSinglePart:
		if bs.MessageRFC822 != nil && bs.MessageRFC822.BodyStructure != nil && !top {
			return childNode(bs.MessageRFC822.BodyStructure, num, true)
		}
		// 非多部分报文的正文是第 1 部分
		if top && num == 1 {
			return bs, true
		}
	}
	return nil, false
}
