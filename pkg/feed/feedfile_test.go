package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlpoint/connector/pkg/acl"
	"github.com/crawlpoint/connector/pkg/docid"
	"github.com/crawlpoint/connector/pkg/metadata"
)

func testMaker(t *testing.T) *FileMaker {
	t.Helper()
	codec, err := docid.NewCodec("http://connector.example.com:5678/doc/", false)
	require.NoError(t, err)
	return NewFileMaker("sharepoint", codec)
}

func TestMakeURLListFeed(t *testing.T) {
	fm := testMaker(t)
	mod := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	records := []Record{
		{ID: "folder/a.txt", LastModified: mod, CrawlImmediately: true},
		NewDeleteRecord("gone.txt"),
	}
	data, err := fm.MakeURLListFeed(records)
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, "<datasource>sharepoint</datasource>")
	assert.Contains(t, s, "<feedtype>metadata-and-url</feedtype>")
	assert.Contains(t, s, `url="http://connector.example.com:5678/doc/folder%2Fa.txt"`)
	assert.Contains(t, s, `last-modified="Sat, 14 Mar 2026 09:26:53 +0000"`)
	assert.Contains(t, s, `crawl-immediately="true"`)
	assert.Contains(t, s, `action="delete"`)
	assert.NotContains(t, s, `lock=`, "unset flags are omitted")
}

func TestFeedRoundTripStable(t *testing.T) {
	fm := testMaker(t)
	mod := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	records := []Record{
		{ID: "a", LastModified: mod, Lock: true},
		{ID: "b", ResultLink: "http://public.example.com/b"},
		NewDeleteRecord("c"),
	}
	first, err := fm.MakeURLListFeed(records)
	require.NoError(t, err)

	ds, ft, parsed, err := ParseFeed(first)
	require.NoError(t, err)
	assert.Equal(t, "sharepoint", ds)
	assert.Equal(t, TypeMetadataAndURL, ft)
	require.Len(t, parsed, 3)

	// Parsed IDs carry the full URL; map back through the codec before
	// re-serializing.
	for i := range parsed {
		id, err := fm.codec.Decode(string(parsed[i].ID))
		require.NoError(t, err)
		parsed[i].ID = id
	}
	second, err := fm.MakeURLListFeed(parsed)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestMakeContentFeed(t *testing.T) {
	fm := testMaker(t)

	md := metadata.New()
	require.NoError(t, md.Add("author", "kermit"))

	a := acl.NewBuilder().
		PermitUsers(acl.MustUser("fred")).
		DenyGroups(acl.MustGroup("interns")).
		InheritFrom("parent").
		InheritanceType(acl.ParentOverrides).
		MustBuild()

	entries := []ContentEntry{{
		Record:      NewRecord("doc1"),
		ContentType: "text/plain",
		Content:     []byte("hello world"),
		Metadata:    md,
		ACL:         &a,
	}}
	data, err := fm.MakeContentFeed(entries)
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, "<feedtype>incremental</feedtype>")
	assert.Contains(t, s, `mimetype="text/plain"`)
	assert.Contains(t, s, `<meta name="author" content="kermit">`)
	assert.Contains(t, s, `encoding="base64binary"`)
	assert.Contains(t, s, "aGVsbG8gd29ybGQ=")
	assert.Contains(t, s, `inheritance-type="parent-overrides"`)
	assert.Contains(t, s, `inherit-from="http://connector.example.com:5678/doc/parent"`)
	assert.Contains(t, s, `scope="user" access="permit"`)
	assert.Contains(t, s, `scope="group" access="deny"`)
}

func TestMakeGroupsFeed(t *testing.T) {
	fm := testMaker(t)

	groups := []GroupMembers{{
		Group: acl.MustGroup("eng").InNamespace("corp"),
		Members: []acl.Principal{
			acl.MustUser("alice"),
			acl.MustGroup("eng-leads"),
		},
	}}

	data, err := fm.MakeGroupsFeed(groups, false)
	require.NoError(t, err)
	s := string(data)
	assert.True(t, strings.Contains(s, "<xmlgroups>"))
	assert.Contains(t, s, `scope="GROUP"`)
	assert.Contains(t, s, `namespace="corp"`)
	assert.Contains(t, s, `case-sensitivity-type="EVERYTHING_CASE_INSENSITIVE"`)
	assert.Contains(t, s, ">alice</principal>")
	assert.Contains(t, s, ">eng-leads</principal>")

	data, err = fm.MakeGroupsFeed(groups, true)
	require.NoError(t, err)
	assert.Contains(t, string(data), "EVERYTHING_CASE_SENSITIVE")
}
