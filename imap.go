// Package imap 定义按部分读取远程邮件内容所需的公共类型。
//
// 正文结构树（BodyStructure）由协议解码器产生，在本模块中只读使用。
// SectionPath 与 FetchItemBodySection 描述一次 FETCH BODY[] 请求要取回的
// 部分。请参阅 imappart 与 imapclient 子包。
package imap

import (
	"fmt"
)

// Revision 描述服务器所说的协议方言。
type Revision int

const (
	// RevisionLegacy 是 RFC 1730 之前的旧方言，无法按部分取回 MIME 头。
	RevisionLegacy Revision = iota
	RevisionIMAP4rev1 // RFC 3501
	RevisionIMAP4rev2 // RFC 9051
)

// String 实现 fmt.Stringer 接口。
func (rev Revision) String() string {
	switch rev {
	case RevisionLegacy:
		return "legacy"
	case RevisionIMAP4rev1:
		return "IMAP4rev1"
	case RevisionIMAP4rev2:
		return "IMAP4rev2"
	default:
		panic(fmt.Errorf("imap: unknown revision %v", int(rev)))
	}
}

// SupportsPartHeaders 返回该方言能否通过 BODY[<part>.MIME] 取回单个部分的头。
func (rev Revision) SupportsPartHeaders() bool {
	return rev >= RevisionIMAP4rev1
}
