package imap

import (
	"strings"
)

// Cap 表示 IMAP 的能力。
type Cap string

// 本模块关心的能力。
//
// 参见：https://www.iana.org/assignments/imap-capabilities/
const (
	CapIMAP4rev1 Cap = "IMAP4rev1" // RFC 3501
	CapIMAP4rev2 Cap = "IMAP4rev2" // RFC 9051

	CapAuthPlain     Cap = "AUTH=PLAIN"
	CapLoginDisabled Cap = "LOGINDISABLED" // 登录被禁用
	CapBinary        Cap = "BINARY"        // RFC 3516
)

// AuthCap 返回 SASL 身份验证机制的能力名称。
func AuthCap(mechanism string) Cap {
	return Cap("AUTH=" + strings.ToUpper(mechanism))
}

// CapSet 是能力集合的类型。
type CapSet map[Cap]struct{}

// NewCapSet 从能力名称构造集合，名称不区分大小写。
func NewCapSet(names ...string) CapSet {
	set := make(CapSet, len(names))
	for _, name := range names {
		set[Cap(name)] = struct{}{}
	}
	return set
}

// has 检查能力集合中是否包含某个能力。
func (set CapSet) has(c Cap) bool {
	if _, ok := set[c]; ok {
		return true
	}
	for k := range set {
		if strings.EqualFold(string(k), string(c)) {
			return true
		}
	}
	return false
}

// Has 检查能力集合是否支持某个能力。
//
// IMAP4rev2 隐含 BINARY，因此即使该能力不在集合中，Has 也可能返回 true。
func (set CapSet) Has(c Cap) bool {
	if set.has(c) {
		return true
	}
	if c == CapBinary && set.has(CapIMAP4rev2) {
		return true
	}
	return false
}

// AuthMechanisms 返回支持的 SASL 身份验证机制的列表。
func (set CapSet) AuthMechanisms() []string {
	var l []string
	for c := range set {
		if !strings.HasPrefix(strings.ToUpper(string(c)), "AUTH=") {
			continue
		}
		l = append(l, strings.ToUpper(string(c[len("AUTH="):])))
	}
	return l
}

// Revision 根据通告的能力推断协议方言。
func (set CapSet) Revision() Revision {
	switch {
	case set.has(CapIMAP4rev2):
		return RevisionIMAP4rev2
	case set.has(CapIMAP4rev1):
		return RevisionIMAP4rev1
	default:
		return RevisionLegacy
	}
}
