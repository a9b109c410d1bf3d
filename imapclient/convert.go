package imapclient

import (
	imapv2 "github.com/emersion/go-imap/v2"

	"github.com/luhaoyun888/go-imap-part"
)

// convertBodyStructure 把 go-imap 解码出的正文结构转换为本模块的类型。
//
// go-imap 不保留 Content-MD5，因此转换结果的 MD5 总是为空。
func convertBodyStructure(bs imapv2.BodyStructure) imap.BodyStructure {
	switch bs := bs.(type) {
	case *imapv2.BodyStructureSinglePart:
		out := &imap.BodyStructureSinglePart{
			Type:        bs.Type,
			Subtype:     bs.Subtype,
			Params:      bs.Params,
			ID:          bs.ID,
			Description: bs.Description,
			Encoding:    bs.Encoding,
			Size:        bs.Size,
		}
		if rfc822 := bs.MessageRFC822; rfc822 != nil {
			out.MessageRFC822 = &imap.BodyStructureMessageRFC822{
				Envelope:      convertEnvelope(rfc822.Envelope),
				BodyStructure: convertBodyStructure(rfc822.BodyStructure),
				NumLines:      rfc822.NumLines,
			}
		}
		if bs.Text != nil {
			out.Text = &imap.BodyStructureText{NumLines: bs.Text.NumLines}
		}
		if ext := bs.Extended; ext != nil {
			out.Extended = &imap.BodyStructureSinglePartExt{
				Disposition: convertDisposition(ext.Disposition),
				Language:    ext.Language,
				Location:    ext.Location,
			}
		}
		return out
	case *imapv2.BodyStructureMultiPart:
		out := &imap.BodyStructureMultiPart{
			Children: make([]imap.BodyStructure, 0, len(bs.Children)),
			Subtype:  bs.Subtype,
		}
		for _, child := range bs.Children {
			if child := convertBodyStructure(child); child != nil {
				out.Children = append(out.Children, child)
			}
		}
		if ext := bs.Extended; ext != nil {
			out.Extended = &imap.BodyStructureMultiPartExt{
				Params:      ext.Params,
				Disposition: convertDisposition(ext.Disposition),
				Language:    ext.Language,
				Location:    ext.Location,
			}
		}
		return out
	default:
		return nil
	}
}

func convertDisposition(disp *imapv2.BodyStructureDisposition) *imap.BodyStructureDisposition {
	if disp == nil {
		return nil
	}
	return &imap.BodyStructureDisposition{Value: disp.Value, Params: disp.Params}
}

func convertEnvelope(envelope *imapv2.Envelope) *imap.Envelope {
	if envelope == nil {
		return nil
	}
	return &imap.Envelope{
		Date:      envelope.Date,
		Subject:   envelope.Subject,
		From:      convertAddressList(envelope.From),
		Sender:    convertAddressList(envelope.Sender),
		ReplyTo:   convertAddressList(envelope.ReplyTo),
		To:        convertAddressList(envelope.To),
		Cc:        convertAddressList(envelope.Cc),
		Bcc:       convertAddressList(envelope.Bcc),
		InReplyTo: envelope.InReplyTo,
		MessageID: envelope.MessageID,
	}
}

func convertAddressList(l []imapv2.Address) []imap.Address {
	if l == nil {
		return nil
	}
	out := make([]imap.Address, len(l))
	for i, addr := range l {
		out[i] = imap.Address{Name: addr.Name, Mailbox: addr.Mailbox, Host: addr.Host}
	}
	return out
}
