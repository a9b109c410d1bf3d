// Package imapclient 在 go-imap 客户端之上实现 imappart.Conn。
//
// Client 拥有一个 IMAP 连接。SelectMailbox 返回的 imappart.Mailbox 与连接绑定：
// 连接上收到的 EXPUNGE 和 EXISTS 会转交给当前选择的邮箱。
//
//	c, err := imapclient.Dial("mail.example.org:993", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	if err := c.Login("root", "asdf"); err != nil {
//		log.Fatal(err)
//	}
//	mbox, err := c.SelectMailbox(ctx, "INBOX")
//	if err != nil {
//		log.Fatal(err)
//	}
//	msg, err := c.MessageBySeqNum(ctx, mbox, 1, true)
package imapclient

import (
	"context"
	"crypto/tls"
	"io"
	"mime"
	"net"
	"sync"
	"sync/atomic"

	imapv2 "github.com/emersion/go-imap/v2"
	imapv2client "github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/luhaoyun888/go-imap-part"
	"github.com/luhaoyun888/go-imap-part/imappart"
)

// Options 包含客户端的选项。
type Options struct {
	// 用于 Dial 的 TLS 配置。如果为 nil，则使用默认配置。
	TLSConfig *tls.Config
	// 使用明文 TCP 连接，而不是隐式 TLS。
	Insecure bool
	// 原始的输入和输出数据将被写入此写入器（如果有）。
	// 注意，这可能包含身份验证期间使用的凭证。
	DebugWriter io.Writer
	// RFC 2047 字符串的解码器，用于信封和正文结构。
	WordDecoder *mime.WordDecoder
	// 使用 EXAMINE 只读地打开邮箱。
	ReadOnly bool
	// 日志记录器，nil 表示不记录。
	Logger *zap.Logger
	// 传给 SelectMailbox 创建的邮箱的选项。
	Part *imappart.Options
}

func (options *Options) logger() *zap.Logger {
	if options.Logger == nil {
		return zap.NewNop()
	}
	return options.Logger
}

func (options *Options) tlsConfig() *tls.Config {
	if options.TLSConfig != nil {
		return options.TLSConfig.Clone()
	}
	return new(tls.Config)
}

func (options *Options) partOptions() *imappart.Options {
	var partOptions imappart.Options
	if options.Part != nil {
		partOptions = *options.Part
	}
	if partOptions.Logger == nil {
		partOptions.Logger = options.Logger
	}
	if partOptions.WordDecoder == nil {
		partOptions.WordDecoder = options.WordDecoder
	}
	return &partOptions
}

// Client 是一个实现了 imappart.Conn 的 IMAP 连接。
//
// Client 可以安全地在多个 goroutine 中使用。
type Client struct {
	client   *imapv2client.Client
	options  Options
	logger   *zap.Logger
	revision atomic.Int32

	mutex   sync.Mutex
	mailbox *imappart.Mailbox // 当前选择的邮箱
	closed  bool
}

var _ imappart.Conn = (*Client)(nil)

// New 在已经建立的连接上创建客户端。
//
// 此函数不执行 I/O。nil 选项指针等效于零选项值。
func New(conn net.Conn, options *Options) *Client {
	c := newClient(options)
	c.client = imapv2client.New(conn, c.clientOptions())
	return c
}

// Dial 连接到 IMAP 服务器，默认使用隐式 TLS。
func Dial(address string, options *Options) (*Client, error) {
	c := newClient(options)

	var (
		client *imapv2client.Client
		err    error
	)
	if c.options.Insecure {
		client, err = imapv2client.DialInsecure(address, c.clientOptions())
	} else {
		client, err = imapv2client.DialTLS(address, c.clientOptions())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "imapclient: dial %v", address)
	}
	c.client = client
	c.logger.Debug("connected", zap.String("addr", address), zap.Bool("tls", !c.options.Insecure))
	return c, nil
}

func newClient(options *Options) *Client {
	if options == nil {
		options = &Options{}
	}
	c := &Client{
		options: *options,
		logger:  options.logger(),
	}
	c.revision.Store(int32(imap.RevisionIMAP4rev1))
	return c
}

func (c *Client) clientOptions() *imapv2client.Options {
	return &imapv2client.Options{
		TLSConfig:   c.options.tlsConfig(),
		DebugWriter: c.options.DebugWriter,
		WordDecoder: c.options.WordDecoder,
		UnilateralDataHandler: &imapv2client.UnilateralDataHandler{
			Expunge: c.handleExpunge,
			Mailbox: c.handleMailbox,
		},
	}
}

// Login 向服务器验证身份。服务器通告了 AUTH=PLAIN 时使用 SASL PLAIN，否则使用 LOGIN。
func (c *Client) Login(username, password string) error {
	caps := capSet(c.client.Caps())

	var err error
	if caps.Has(imap.CapAuthPlain) {
		err = c.client.Authenticate(sasl.NewPlainClient("", username, password))
	} else if caps.Has(imap.CapLoginDisabled) {
		return errors.New("imapclient: server disabled LOGIN and does not support AUTH=PLAIN")
	} else {
		err = c.client.Login(username, password).Wait()
	}
	if err != nil {
		return c.wrapErr(err)
	}

	c.updateRevision()
	c.logger.Debug("logged in", zap.String("username", username), zap.Stringer("revision", c.Revision()))
	return nil
}

// updateRevision 在能力可能变化之后（例如登录后）重新计算协议方言。
func (c *Client) updateRevision() {
	rev := capSet(c.client.Caps()).Revision()
	c.revision.Store(int32(rev))
}

// Revision 返回服务器的协议方言。登录前总是 IMAP4rev1。
func (c *Client) Revision() imap.Revision {
	return imap.Revision(c.revision.Load())
}

// SelectMailbox 选择一个邮箱，并返回与之对应的 imappart.Mailbox。
//
// 之前选择的邮箱会被关闭，其所有部分都会失效。
func (c *Client) SelectMailbox(ctx context.Context, name string) (*imappart.Mailbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mutex.Lock()
	prev := c.mailbox
	c.mailbox = nil
	c.mutex.Unlock()
	if prev != nil {
		prev.Close()
	}

	data, err := c.client.Select(name, &imapv2.SelectOptions{ReadOnly: c.options.ReadOnly}).Wait()
	if err != nil {
		return nil, c.wrapErr(err)
	}

	mbox := imappart.NewMailbox(name, data.NumMessages, c, c.options.partOptions())
	c.mutex.Lock()
	c.mailbox = mbox
	c.mutex.Unlock()

	c.logger.Debug("mailbox selected", zap.String("mailbox", name), zap.Uint32("messages", data.NumMessages))
	return mbox, nil
}

// Noop 发送 NOOP。NOOP 期间收到的 EXPUNGE 在返回前已交给当前邮箱。
func (c *Client) Noop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.wrapErr(c.client.Noop().Wait())
}

// Close 关闭当前邮箱，注销并关闭连接。
func (c *Client) Close() error {
	c.mutex.Lock()
	mbox := c.mailbox
	c.mailbox = nil
	alreadyClosed := c.closed
	c.closed = true
	c.mutex.Unlock()

	if mbox != nil {
		mbox.Close()
	}
	if alreadyClosed {
		return nil
	}

	if err := c.client.Logout().Wait(); err != nil {
		c.logger.Debug("logout failed", zap.Error(err))
	}
	// 服务器在 LOGOUT 之后会关闭连接
	if err := c.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "imapclient: close")
	}
	return nil
}

func (c *Client) currentMailbox() *imappart.Mailbox {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.mailbox
}

// handleExpunge 在 go-imap 的读取 goroutine 中调用。
func (c *Client) handleExpunge(seqNum uint32) {
	if mbox := c.currentMailbox(); mbox != nil {
		mbox.Expunge(seqNum)
	}
}

func (c *Client) handleMailbox(data *imapv2client.UnilateralDataMailbox) {
	if data.NumMessages == nil {
		return
	}
	if mbox := c.currentMailbox(); mbox != nil {
		mbox.Exists(*data.NumMessages)
	}
}

// wrapErr 区分服务器的状态响应和传输故障。传输故障会关闭当前邮箱。
func (c *Client) wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var imapErr *imapv2.Error
	if errors.As(err, &imapErr) {
		return errors.Wrap(err, "imapclient")
	}

	c.logger.Debug("connection failed", zap.Error(err))
	if mbox := c.currentMailbox(); mbox != nil {
		mbox.Close()
	}
	return &connError{err: err}
}

// connError 是一个传输故障。errors.Is(err, imappart.ErrConnectionClosed) 为 true。
type connError struct {
	err error
}

func (err *connError) Error() string {
	return "imapclient: connection failed: " + err.err.Error()
}

func (err *connError) Unwrap() error {
	return err.err
}

func (err *connError) Is(target error) bool {
	return target == imappart.ErrConnectionClosed
}

func capSet(caps imapv2.CapSet) imap.CapSet {
	names := make([]string, 0, len(caps))
	for c := range caps {
		names = append(names, string(c))
	}
	return imap.NewCapSet(names...)
}
