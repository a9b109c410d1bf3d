package imapclient

import (
	"testing"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luhaoyun888/go-imap-part"
)

func TestConvertBodyStructure(t *testing.T) {
	date := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	in := &imapv2.BodyStructureMultiPart{
		Subtype: "mixed",
		Children: []imapv2.BodyStructure{
			&imapv2.BodyStructureSinglePart{
				Type:     "text",
				Subtype:  "plain",
				Params:   map[string]string{"charset": "utf-8"},
				Encoding: "7bit",
				Size:     42,
				Text:     &imapv2.BodyStructureText{NumLines: 3},
			},
			&imapv2.BodyStructureSinglePart{
				Type:    "message",
				Subtype: "rfc822",
				Size:    300,
				MessageRFC822: &imapv2.BodyStructureMessageRFC822{
					Envelope: &imapv2.Envelope{
						Date:      date,
						Subject:   "Inner",
						From:      []imapv2.Address{{Name: "Alice", Mailbox: "alice", Host: "example.org"}},
						InReplyTo: []string{"parent@example.org"},
						MessageID: "inner@example.org",
					},
					BodyStructure: &imapv2.BodyStructureSinglePart{Type: "text", Subtype: "html", Size: 10},
					NumLines:      12,
				},
				Extended: &imapv2.BodyStructureSinglePartExt{
					Disposition: &imapv2.BodyStructureDisposition{
						Value:  "attachment",
						Params: map[string]string{"filename": "fwd.eml"},
					},
					Language: []string{"en"},
				},
			},
		},
		Extended: &imapv2.BodyStructureMultiPartExt{
			Params: map[string]string{"boundary": "b1"},
		},
	}

	out, ok := convertBodyStructure(in).(*imap.BodyStructureMultiPart)
	require.True(t, ok)
	assert.Equal(t, "multipart/mixed", out.MediaType())
	assert.Equal(t, "b1", out.Params()["boundary"])
	require.Len(t, out.Children, 2)

	text := out.Children[0].(*imap.BodyStructureSinglePart)
	assert.Equal(t, "text/plain", text.MediaType())
	assert.Equal(t, uint32(42), text.Size)
	assert.Equal(t, int64(3), text.NumLines())
	assert.Nil(t, text.Extended)

	rfc822 := out.Children[1].(*imap.BodyStructureSinglePart)
	require.NotNil(t, rfc822.MessageRFC822)
	assert.Equal(t, int64(12), rfc822.NumLines())
	assert.Equal(t, "fwd.eml", rfc822.Filename())
	assert.Equal(t, []string{"en"}, rfc822.Extended.Language)

	envelope := rfc822.MessageRFC822.Envelope
	require.NotNil(t, envelope)
	assert.Equal(t, "Inner", envelope.Subject)
	assert.Equal(t, date, envelope.Date)
	assert.Equal(t, []string{"parent@example.org"}, envelope.InReplyTo)
	require.Len(t, envelope.From, 1)
	assert.Equal(t, "alice@example.org", envelope.From[0].Addr())
	assert.Nil(t, envelope.To)

	inner := rfc822.MessageRFC822.BodyStructure
	require.NotNil(t, inner)
	assert.Equal(t, "text/html", inner.MediaType())
}

func TestConvertBodyStructure_nil(t *testing.T) {
	assert.Nil(t, convertBodyStructure(nil))
	assert.Nil(t, convertEnvelope(nil))
	assert.Nil(t, convertDisposition(nil))
}
