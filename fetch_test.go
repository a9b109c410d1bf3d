package imap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luhaoyun888/go-imap-part"
)

func TestParseSectionPath(t *testing.T) {
	path, err := imap.ParseSectionPath("1.2.10")
	require.NoError(t, err)
	assert.Equal(t, imap.SectionPath{1, 2, 10}, path)
	assert.Equal(t, "1.2.10", path.String())

	path, err = imap.ParseSectionPath("")
	require.NoError(t, err)
	assert.Empty(t, path)

	for _, s := range []string{"0", "1..2", "1.a", "-1", "1."} {
		_, err := imap.ParseSectionPath(s)
		assert.Error(t, err, "ParseSectionPath(%q)", s)
	}
}

func TestSectionPath_Child(t *testing.T) {
	parent := make(imap.SectionPath, 1, 8)
	parent[0] = 2

	a := parent.Child(0)
	b := parent.Child(1)
	assert.Equal(t, "2.1", a.String())
	assert.Equal(t, "2.2", b.String())
	assert.Equal(t, "2", parent.String())

	assert.Equal(t, "3", imap.SectionPath(nil).Child(2).String())
}

func TestFetchItemBodySection_String(t *testing.T) {
	tests := []struct {
		item imap.FetchItemBodySection
		want string
	}{
		{imap.FetchItemBodySection{}, "BODY[]"},
		{imap.FetchItemBodySection{Peek: true, Specifier: imap.PartSpecifierText}, "BODY.PEEK[TEXT]"},
		{imap.FetchItemBodySection{Part: []int{1, 2}, Specifier: imap.PartSpecifierMIME, Peek: true}, "BODY.PEEK[1.2.MIME]"},
		{imap.FetchItemBodySection{Part: []int{2}, Specifier: imap.PartSpecifierHeader}, "BODY[2.HEADER]"},
		{imap.FetchItemBodySection{Part: []int{1}, Partial: &imap.SectionPartial{Offset: 4096, Size: 4096}}, "BODY[1]<4096.4096>"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.item.String())
	}
}

func TestBodyStructure_Walk(t *testing.T) {
	bs := &imap.BodyStructureMultiPart{
		Subtype: "mixed",
		Children: []imap.BodyStructure{
			&imap.BodyStructureMultiPart{
				Subtype: "alternative",
				Children: []imap.BodyStructure{
					&imap.BodyStructureSinglePart{Type: "text", Subtype: "plain"},
					&imap.BodyStructureSinglePart{Type: "text", Subtype: "html"},
				},
			},
			&imap.BodyStructureSinglePart{Type: "image", Subtype: "png"},
		},
	}

	var got []string
	bs.Walk(func(path []int, part imap.BodyStructure) bool {
		got = append(got, imap.SectionPath(path).String()+" "+part.MediaType())
		return true
	})
	assert.Equal(t, []string{
		" multipart/mixed",
		"1 multipart/alternative",
		"1.1 text/plain",
		"1.2 text/html",
		"2 image/png",
	}, got)
}

func TestBodyStructureSinglePart_NumLines(t *testing.T) {
	assert.Equal(t, int64(-1), (&imap.BodyStructureSinglePart{Type: "image", Subtype: "png"}).NumLines())
	assert.Equal(t, int64(4), (&imap.BodyStructureSinglePart{Text: &imap.BodyStructureText{NumLines: 4}}).NumLines())
}

func TestCapSet_Revision(t *testing.T) {
	assert.Equal(t, imap.RevisionIMAP4rev2, imap.NewCapSet("IMAP4rev1", "IMAP4rev2").Revision())
	assert.Equal(t, imap.RevisionIMAP4rev1, imap.NewCapSet("imap4rev1", "AUTH=PLAIN").Revision())
	assert.Equal(t, imap.RevisionLegacy, imap.NewCapSet("IMAP2").Revision())

	caps := imap.NewCapSet("IMAP4rev2", "auth=plain")
	assert.True(t, caps.Has(imap.CapBinary))
	assert.True(t, caps.Has(imap.AuthCap("plain")))
	assert.Equal(t, []string{"PLAIN"}, caps.AuthMechanisms())

	assert.True(t, imap.RevisionIMAP4rev1.SupportsPartHeaders())
	assert.False(t, imap.RevisionLegacy.SupportsPartHeaders())
	assert.Equal(t, "IMAP4rev2", imap.RevisionIMAP4rev2.String())
}
