// Package imappart 以只读的 MIME 部分对象暴露远程邮件的内容。
//
// 每个 Part 对应正文结构树中的一个节点。部分的属性（类型、大小、处置方式等）
// 只从正文结构中得出，不访问服务器；头和内容在第一次需要时才通过连接取回。
//
// # 并发
//
// 同一个 Mailbox 的所有 Part 共享一个连接。任何读取消息序号并用它发出命令的操作
// 都在邮箱的临界区内完成。分块读取内容时，只在取回每一块时持有临界区，
// 两块之间连接可以被其他操作使用，因此消息在读取过程中被删除时，
// 错误会在下一次读取时出现。
//
// # 字符集解码
//
// 默认情况下，描述和文件名使用 go-message 的字符集集合解码。可以设置
// Options.WordDecoder 来替换：
//
//	options := &imappart.Options{
//		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
//	}
package imappart

import (
	"context"
	"mime"

	"github.com/emersion/go-message/charset"
	"go.uber.org/zap"

	"github.com/luhaoyun888/go-imap-part"
)

// DefaultFetchSize 是分块读取内容时每次 FETCH 的默认字节数。
const DefaultFetchSize = 16 * 1024

// Conn 是连接的协作方，负责协议的编码和解码。
//
// FetchSection 和 Noop 总是在邮箱的临界区内被调用。
type Conn interface {
	// Revision 返回当前连接的协议方言，不应访问网络。
	Revision() imap.Revision
	// FetchSection 取回序号为 seqNum 的消息的一个节。
	//
	// 如果服务器返回 NIL 或响应中没有该消息，返回 nil 和 nil 错误。
	// 空内容应返回非 nil 的空切片。
	FetchSection(ctx context.Context, seqNum uint32, section *imap.FetchItemBodySection) ([]byte, error)
	// Noop 发送 NOOP，让服务器报告挂起的 EXPUNGE。
	//
	// 实现必须在返回前把 NOOP 期间收到的 EXPUNGE 交给 Mailbox.Expunge。
	Noop(ctx context.Context) error
}

// Options 包含邮箱的选项。
type Options struct {
	// 分块读取内容时每次 FETCH 的字节数。零值表示 DefaultFetchSize，
	// 负数表示禁用分块，总是一次取回整个节。
	FetchSize int
	// 分块读取时忽略正文结构中声明的大小，一直读取到服务器不再返回数据为止。
	// 用于声明大小不可靠的服务器。
	IgnoreBodyStructureSize bool
	// 是否对 FileName 的结果做 RFC 2047 解码。解码失败时返回 *DecodeError。
	DecodeFileName bool
	// RFC 2047 字符串的解码器。
	WordDecoder *mime.WordDecoder
	// 日志记录器，nil 表示不记录。
	Logger *zap.Logger
}

func (options *Options) fetchSize() int {
	if options.FetchSize == 0 {
		return DefaultFetchSize
	}
	return options.FetchSize
}

func (options *Options) logger() *zap.Logger {
	if options.Logger == nil {
		return zap.NewNop()
	}
	return options.Logger
}

// decodeText 解码 MIME 编码的字符串，返回解码后的字符串。
// 如果没有设置 WordDecoder，则使用带 go-message 字符集集合的解码器。
func (options *Options) decodeText(s string) (string, error) {
	wordDecoder := options.WordDecoder
	if wordDecoder == nil {
		wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}
	}
	out, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s, err // 解码失败则返回原始字符串和错误
	}
	return out, nil
}
