package imappart

import (
	"fmt"
	"io"
	"net"

	"github.com/pkg/errors"
)

var (
	// ErrReadOnly 由所有修改操作返回。Part 永远是只读的。
	ErrReadOnly = errors.New("imappart: body part is read-only")
	// ErrMessageRemoved 表示所属消息已从邮箱中删除，句柄已失效。
	ErrMessageRemoved = errors.New("imappart: message removed")
	// ErrPartRemoved 表示读取内容时发现所属消息已被删除。
	//
	// errors.Is(ErrPartRemoved, ErrMessageRemoved) 为 true。
	ErrPartRemoved error = &removedError{"imappart: body part removed"}
	// ErrHeaderFetchFailed 表示服务器没有返回一个存在的部分的头。
	ErrHeaderFetchFailed = errors.New("imappart: failed to fetch headers")
	// ErrConnectionClosed 表示连接已断开或邮箱已关闭。
	ErrConnectionClosed = errors.New("imappart: connection closed")
)

type removedError struct {
	text string
}

func (err *removedError) Error() string {
	return err.text
}

func (err *removedError) Is(target error) bool {
	return target == ErrMessageRemoved
}

// IsRemoved 报告 err 是否表示消息或部分已被删除。
func IsRemoved(err error) bool {
	return errors.Is(err, ErrMessageRemoved)
}

// FolderClosedError 表示传输层故障或邮箱关闭导致操作失败。
type FolderClosedError struct {
	Mailbox string // 邮箱名称
	Err     error  // 底层错误
}

var _ error = (*FolderClosedError)(nil)

func (err *FolderClosedError) Error() string {
	return fmt.Sprintf("imappart: mailbox %q closed: %v", err.Mailbox, err.Err)
}

func (err *FolderClosedError) Unwrap() error {
	return err.Err
}

// DecodeError 表示在严格模式下 RFC 2047 解码失败。
type DecodeError struct {
	Value string // 原始值
	Err   error
}

var _ error = (*DecodeError)(nil)

func (err *DecodeError) Error() string {
	return fmt.Sprintf("imappart: cannot decode %q: %v", err.Value, err.Err)
}

func (err *DecodeError) Unwrap() error {
	return err.Err
}

// isConnFailure 报告 err 是否来自传输层。
func isConnFailure(err error) bool {
	if errors.Is(err, ErrConnectionClosed) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
