package imap

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PartSpecifier 描述要获取的部分的头、体或两者。
type PartSpecifier string

const (
	PartSpecifierNone   PartSpecifier = ""       // 部分本身的内容
	PartSpecifierHeader PartSpecifier = "HEADER" // 报文头（顶层或内嵌报文）
	PartSpecifierMIME   PartSpecifier = "MIME"   // 部分的 MIME 头
	PartSpecifierText   PartSpecifier = "TEXT"   // 报文正文（不含头）
)

// SectionPartial 描述获取消息有效载荷时的字节范围。
type SectionPartial struct {
	Offset, Size int64 // 偏移量和大小
}

// FetchItemBodySection 是一个 FETCH BODY[] 数据项。
//
// 要仅获取特定部分，使用 Part 字段：
// imap.FetchItemBodySection{Part: []int{1, 2}}
//
// 要获取该部分的 MIME 头，再设置 Specifier 字段：
// imap.FetchItemBodySection{Part: []int{1, 2}, Specifier: imap.PartSpecifierMIME}
type FetchItemBodySection struct {
	Specifier PartSpecifier   // 指定获取的部分类型
	Part      []int           // 指定部分的索引
	Partial   *SectionPartial // 指定部分内容的偏移和大小
	Peek      bool            // 是否使用 Peek 模式（不设置 \Seen）
}

// Section 返回方括号内的节描述，例如 "1.2.MIME"。
func (item *FetchItemBodySection) Section() string {
	var sb strings.Builder
	sb.WriteString(SectionPath(item.Part).String())
	if len(item.Part) > 0 && item.Specifier != PartSpecifierNone {
		sb.WriteByte('.')
	}
	sb.WriteString(string(item.Specifier))
	return sb.String()
}

// String 返回该数据项在 FETCH 命令中的写法，例如 "BODY.PEEK[1.2]<0.4096>"。
func (item *FetchItemBodySection) String() string {
	var sb strings.Builder
	sb.WriteString("BODY")
	if item.Peek {
		sb.WriteString(".PEEK")
	}
	sb.WriteByte('[')
	sb.WriteString(item.Section())
	sb.WriteByte(']')
	if item.Partial != nil {
		fmt.Fprintf(&sb, "<%v.%v>", item.Partial.Offset, item.Partial.Size)
	}
	return sb.String()
}

// SectionPath 是部分在正文结构树中的位置，例如 []int{1, 2} 表示 "1.2"。
//
// 空路径表示整个报文。SectionPath 的值不应被修改，Child 总是返回新的切片。
type SectionPath []int

// ParseSectionPath 解析形如 "1.2" 的节路径。
func ParseSectionPath(s string) (SectionPath, error) {
	if s == "" {
		return nil, nil
	}
	var path SectionPath
	for _, elem := range strings.Split(s, ".") {
		num, err := strconv.Atoi(elem)
		if err != nil || num <= 0 {
			return nil, fmt.Errorf("imap: invalid section path %q", s)
		}
		path = append(path, num)
	}
	return path, nil
}

// String 返回点分形式的节路径。
func (path SectionPath) String() string {
	l := make([]string, len(path))
	for i, num := range path {
		l[i] = strconv.Itoa(num)
	}
	return strings.Join(l, ".")
}

// Child 返回第 i 个子部分（从 0 开始）的节路径，即 path + "." + (i+1)。
func (path SectionPath) Child(i int) SectionPath {
	child := make(SectionPath, len(path), len(path)+1)
	copy(child, path)
	return append(child, i+1)
}

// Envelope 是服务器解析好的消息头摘要，来自 FETCH ENVELOPE 或内嵌报文的正文结构。
//
// Subject 和地址已经解码为 UTF-8。InReplyTo 与 MessageID 不带尖括号。
type Envelope struct {
	Date      time.Time // 消息日期
	Subject   string    // 主题
	From      []Address // 发件人地址
	Sender    []Address // 发送者地址
	ReplyTo   []Address // 回复地址
	To        []Address // 收件人地址
	Cc        []Address // 抄送地址
	Bcc       []Address // 密送地址
	InReplyTo []string  // 引用的消息 ID
	MessageID string    // 消息 ID
}

// Address 是信封中的一个地址。组的开始和结束标记没有 Host。
type Address struct {
	Name    string // 名称
	Mailbox string // 邮箱名
	Host    string // 主机
}

// Addr 返回 "mailbox@host" 形式的地址，组标记返回空字符串。
func (addr *Address) Addr() string {
	if addr.Mailbox == "" || addr.Host == "" {
		return ""
	}
	return addr.Mailbox + "@" + addr.Host
}

// BodyStructure 是正文结构树中的一个节点，由协议层从 BODYSTRUCTURE 响应解码。
//
// 节点是 *BodyStructureSinglePart 或 *BodyStructureMultiPart。
// 构造完成后不可修改，可以被多个 goroutine 同时读取。
type BodyStructure interface {
	// MediaType 返回小写的 "type/subtype"。
	MediaType() string
	// Walk 按深度优先前序对 bs 及其后代调用 f，不进入 message/rfc822 内嵌的报文。
	Walk(f BodyStructureWalkFunc)
	// Disposition 返回 Content-Disposition，没有扩展数据时返回 nil。
	Disposition() *BodyStructureDisposition

	bodyStructure()
}

// BodyStructureSinglePart 是一个叶子节点。message/rfc822 节点通过 MessageRFC822 携带内嵌报文。
type BodyStructureSinglePart struct {
	Type, Subtype string            // MIME 类型和子类型
	Params        map[string]string // 参数
	ID            string            // Content-ID
	Description   string            // 描述（可能是 RFC 2047 编码的）
	Encoding      string            // 传输编码
	Size          uint32            // 大小

	MessageRFC822 *BodyStructureMessageRFC822 // 仅适用于 "message/rfc822"
	Text          *BodyStructureText          // 仅适用于 "text/*"
	Extended      *BodyStructureSinglePartExt // 扩展数据
}

func (bs *BodyStructureSinglePart) MediaType() string {
	return strings.ToLower(bs.Type) + "/" + strings.ToLower(bs.Subtype)
}

func (bs *BodyStructureSinglePart) Walk(f BodyStructureWalkFunc) {
	f([]int{1}, bs)
}

func (bs *BodyStructureSinglePart) Disposition() *BodyStructureDisposition {
	if bs.Extended == nil {
		return nil
	}
	return bs.Extended.Disposition
}

// NumLines 返回声明的行数，未知时返回 -1。
func (bs *BodyStructureSinglePart) NumLines() int64 {
	switch {
	case bs.Text != nil:
		return bs.Text.NumLines
	case bs.MessageRFC822 != nil:
		return bs.MessageRFC822.NumLines
	default:
		return -1
	}
}

// MD5 返回 Content-MD5 的值（如果有的话）。
func (bs *BodyStructureSinglePart) MD5() string {
	if bs.Extended == nil {
		return ""
	}
	return bs.Extended.MD5
}

// Filename 返回体结构的原始文件名（如果有的话），不做 RFC 2047 解码。
func (bs *BodyStructureSinglePart) Filename() string {
	var filename string
	if disp := bs.Disposition(); disp != nil {
		filename = disp.Params["filename"]
	}
	if filename == "" {
		// 旧客户端只设置 Content-Type 的 name 参数
		filename = bs.Params["name"]
	}
	return filename
}

func (*BodyStructureSinglePart) bodyStructure() {}

// BodyStructureMessageRFC822 描述 message/rfc822 节点内嵌的报文。
type BodyStructureMessageRFC822 struct {
	Envelope      *Envelope     // 消息信封
	BodyStructure BodyStructure // 消息体结构
	NumLines      int64         // 行数
}

// BodyStructureText 是 text/* 节点的行数。
type BodyStructureText struct {
	NumLines int64 // 行数
}

// BodyStructureSinglePartExt 是叶子节点的扩展数据，只有请求 BODYSTRUCTURE 时才有。
type BodyStructureSinglePartExt struct {
	MD5         string                    // Content-MD5
	Disposition *BodyStructureDisposition // 处置方式
	Language    []string                  // 语言
	Location    string                    // 位置
}

// BodyStructureMultiPart 是 multipart/* 节点。
type BodyStructureMultiPart struct {
	Children []BodyStructure // 子部分
	Subtype  string          // 子类型

	Extended *BodyStructureMultiPartExt // 扩展数据
}

func (bs *BodyStructureMultiPart) MediaType() string {
	return "multipart/" + strings.ToLower(bs.Subtype)
}

func (bs *BodyStructureMultiPart) Walk(f BodyStructureWalkFunc) {
	bs.walk(f, nil)
}

func (bs *BodyStructureMultiPart) walk(f BodyStructureWalkFunc, path []int) {
	if !f(path, bs) {
		return
	}

	for i, part := range bs.Children {
		partPath := SectionPath(path).Child(i)

		switch part := part.(type) {
		case *BodyStructureSinglePart:
			f(partPath, part)
		case *BodyStructureMultiPart:
			part.walk(f, partPath)
		default:
			panic(fmt.Errorf("unsupported body structure type %T", part))
		}
	}
}

func (bs *BodyStructureMultiPart) Disposition() *BodyStructureDisposition {
	if bs.Extended == nil {
		return nil
	}
	return bs.Extended.Disposition
}

// Params 返回 Content-Type 参数（仅在扩展数据中可用）。
func (bs *BodyStructureMultiPart) Params() map[string]string {
	if bs.Extended == nil {
		return nil
	}
	return bs.Extended.Params
}

func (*BodyStructureMultiPart) bodyStructure() {}

// BodyStructureMultiPartExt 是多部分节点的扩展数据，boundary 等参数只出现在这里。
type BodyStructureMultiPartExt struct {
	Params      map[string]string         // 参数
	Disposition *BodyStructureDisposition // 处置方式
	Language    []string                  // 语言
	Location    string                    // 位置
}

// BodyStructureDisposition 是解析后的 Content-Disposition。
type BodyStructureDisposition struct {
	Value  string            // 处置方式
	Params map[string]string // 参数
}

// BodyStructureWalkFunc 由 BodyStructure.Walk 对每个节点调用，path 是节点的节路径。
//
// 返回 false 跳过该节点的子节点。
type BodyStructureWalkFunc func(path []int, part BodyStructure) (walkChildren bool)
