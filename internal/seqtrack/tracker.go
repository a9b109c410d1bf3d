// Package seqtrack 维护会话内稳定的消息句柄与可变的消息序号之间的映射。
//
// 所有读取序号并用它发出命令的操作都必须在 Tracker 的临界区内完成，
// 以免序号在读取和使用之间被 EXPUNGE 改变。
package seqtrack

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	// ErrRemoved 表示句柄对应的消息已被删除。
	ErrRemoved = errors.New("seqtrack: message removed")
	// ErrClosed 表示拥有该 Tracker 的邮箱已关闭。
	ErrClosed = errors.New("seqtrack: mailbox closed")
	// ErrUnknownHandle 表示句柄不属于该 Tracker。
	ErrUnknownHandle = errors.New("seqtrack: unknown handle")
)

// Handle 是会话内稳定的消息标识，零值无效。
type Handle uint32

type entry struct {
	seqNum  uint32
	removed bool
}

type eventKind int

const (
	eventExpunge eventKind = iota
	eventExists
)

// event 是尚未应用的单方面数据。
type event struct {
	kind eventKind
	num  uint32
}

// Tracker 是句柄表，由单个临界区保护。
//
// Expunge 和 Exists 可以在任何 goroutine 中调用（通常是连接的读取 goroutine），
// 它们只把事件排队，事件在下一次进入临界区时按到达顺序应用。
type Tracker struct {
	mutex   sync.Mutex // 临界区
	entries []entry    // 以 Handle-1 为下标
	seqs    []Handle   // seqs[i] 是当前序号 i+1 对应的句柄

	pendingMutex sync.Mutex
	pending      []event

	closed atomic.Bool
}

// New 创建一个包含 numMessages 条消息（序号 1..numMessages）的 Tracker。
func New(numMessages uint32) *Tracker {
	t := &Tracker{}
	t.grow(numMessages)
	return t
}

// Expunge 记录序号为 seqNum 的消息已被删除。
func (t *Tracker) Expunge(seqNum uint32) {
	t.enqueue(event{kind: eventExpunge, num: seqNum})
}

// Exists 记录邮箱中现在有 numMessages 条消息。
func (t *Tracker) Exists(numMessages uint32) {
	t.enqueue(event{kind: eventExists, num: numMessages})
}

func (t *Tracker) enqueue(ev event) {
	t.pendingMutex.Lock()
	t.pending = append(t.pending, ev)
	t.pendingMutex.Unlock()
}

// Close 使所有句柄永久失效。Close 不等待临界区，正在进行的操作由调用方负责中断。
func (t *Tracker) Close() {
	t.closed.Store(true)
}

// Closed 返回 Tracker 是否已关闭。
func (t *Tracker) Closed() bool {
	return t.closed.Load()
}

// WithAddress 进入临界区，读取 h 当前的序号并在持有锁的情况下调用 fn。
//
// 如果消息已被删除，返回 ErrRemoved；如果 Tracker 已关闭，返回 ErrClosed。
// 无论 fn 是否失败，锁都会被释放。
func (t *Tracker) WithAddress(h Handle, fn func(seqNum uint32) error) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.applyPending()
	if t.closed.Load() {
		return ErrClosed
	}
	e, err := t.entry(h)
	if err != nil {
		return err
	}
	if e.removed {
		return ErrRemoved
	}
	return fn(e.seqNum)
}

// Refresh 在临界区内调用 fn（通常是一个 NOOP），然后应用 fn 期间到达的事件，
// 并报告 h 是否已被删除。
func (t *Tracker) Refresh(h Handle, fn func() error) (removed bool, err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.closed.Load() {
		return false, ErrClosed
	}
	if err := fn(); err != nil {
		return false, err
	}
	t.applyPending()
	e, err := t.entry(h)
	if err != nil {
		return false, err
	}
	return e.removed, nil
}

// Removed 报告 h 是否已被删除（只看已到达的事件，不访问服务器）。
func (t *Tracker) Removed(h Handle) (bool, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.applyPending()
	e, err := t.entry(h)
	if err != nil {
		return false, err
	}
	return e.removed, nil
}

// Lookup 返回当前序号为 seqNum 的消息的句柄。
func (t *Tracker) Lookup(seqNum uint32) (Handle, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.applyPending()
	return t.lookupLocked(seqNum)
}

// lookupLocked 必须在持有 t.mutex 时调用。
func (t *Tracker) lookupLocked(seqNum uint32) (Handle, bool) {
	if seqNum == 0 || int(seqNum) > len(t.seqs) {
		return 0, false
	}
	return t.seqs[seqNum-1], true
}

// Len 返回当前邮箱中的消息数量。
func (t *Tracker) Len() uint32 {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.applyPending()
	return uint32(len(t.seqs))
}

// entry 必须在持有 t.mutex 时调用。
func (t *Tracker) entry(h Handle) (*entry, error) {
	if h == 0 || int(h) > len(t.entries) {
		return nil, ErrUnknownHandle
	}
	return &t.entries[h-1], nil
}

// applyPending 必须在持有 t.mutex 时调用。
func (t *Tracker) applyPending() {
	t.pendingMutex.Lock()
	pending := t.pending
	t.pending = nil
	t.pendingMutex.Unlock()

	for _, ev := range pending {
		switch ev.kind {
		case eventExpunge:
			t.expunge(ev.num)
		case eventExists:
			t.grow(ev.num)
		}
	}
}

func (t *Tracker) expunge(seqNum uint32) {
	if seqNum == 0 || int(seqNum) > len(t.seqs) {
		return // 未知序号，忽略
	}
	i := int(seqNum - 1)
	t.entries[t.seqs[i]-1].removed = true
	t.seqs = append(t.seqs[:i], t.seqs[i+1:]...)
	for _, h := range t.seqs[i:] {
		t.entries[h-1].seqNum--
	}
}

func (t *Tracker) grow(numMessages uint32) {
	for n := uint32(len(t.seqs)); n < numMessages; n++ {
		t.entries = append(t.entries, entry{seqNum: n + 1})
		t.seqs = append(t.seqs, Handle(len(t.entries)))
	}
}
