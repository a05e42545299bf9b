package feed

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/crawlpoint/connector/pkg/acl"
	"github.com/crawlpoint/connector/pkg/docid"
	"github.com/crawlpoint/connector/pkg/metadata"
)

// Feed types accepted by the indexer's feed port.
const (
	TypeMetadataAndURL = "metadata-and-url"
	TypeIncremental    = "incremental"
	TypeFull           = "full"
)

// rfc822 is the last-modified format inside feed documents.
const rfc822 = "Mon, 02 Jan 2006 15:04:05 -0700"

// FileMaker serializes record batches into feed documents.
type FileMaker struct {
	datasource string
	codec      *docid.Codec
}

// NewFileMaker creates a FileMaker minting URLs with codec under the given
// datasource name.
func NewFileMaker(datasource string, codec *docid.Codec) *FileMaker {
	return &FileMaker{datasource: datasource, codec: codec}
}

// Datasource returns the feed datasource name.
func (fm *FileMaker) Datasource() string { return fm.datasource }

// ============================================================================
// XML document shapes (tag and attribute names are fixed by the feed format)
// ============================================================================

type xmlFeed struct {
	XMLName xml.Name   `xml:"gsafeed"`
	Header  xmlHeader  `xml:"header"`
	Groups  []xmlGroup `xml:"group"`
}

type xmlHeader struct {
	Datasource string `xml:"datasource"`
	FeedType   string `xml:"feedtype"`
}

type xmlGroup struct {
	Records []xmlRecord `xml:"record"`
}

type xmlRecord struct {
	URL              string       `xml:"url,attr"`
	DisplayURL       string       `xml:"displayurl,attr,omitempty"`
	Mimetype         string       `xml:"mimetype,attr,omitempty"`
	LastModified     string       `xml:"last-modified,attr,omitempty"`
	Lock             string       `xml:"lock,attr,omitempty"`
	CrawlImmediately string       `xml:"crawl-immediately,attr,omitempty"`
	CrawlOnce        string       `xml:"crawl-once,attr,omitempty"`
	AuthMethod       string       `xml:"authmethod,attr,omitempty"`
	Action           string       `xml:"action,attr,omitempty"`
	ACL              *xmlACL      `xml:"acl,omitempty"`
	Metadata         *xmlMetadata `xml:"metadata,omitempty"`
	Content          *xmlContent  `xml:"content,omitempty"`
}

type xmlACL struct {
	InheritFrom     string         `xml:"inherit-from,attr,omitempty"`
	InheritanceType string         `xml:"inheritance-type,attr,omitempty"`
	Principals      []xmlPrincipal `xml:"principal"`
}

type xmlPrincipal struct {
	Scope           string `xml:"scope,attr"`
	Access          string `xml:"access,attr"`
	Namespace       string `xml:"namespace,attr,omitempty"`
	CaseSensitivity string `xml:"case-sensitivity-type,attr,omitempty"`
	Name            string `xml:",chardata"`
}

type xmlMetadata struct {
	Metas []xmlMeta `xml:"meta"`
}

type xmlMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type xmlContent struct {
	Encoding string `xml:"encoding,attr,omitempty"`
	Data     string `xml:",chardata"`
}

type xmlGroupsFeed struct {
	XMLName     xml.Name        `xml:"xmlgroups"`
	Memberships []xmlMembership `xml:"membership"`
}

type xmlMembership struct {
	Group   xmlPrincipal `xml:"principal"`
	Members struct {
		Principals []xmlPrincipal `xml:"principal"`
	} `xml:"members"`
}

// ============================================================================
// Serialization
// ============================================================================

// MakeURLListFeed serializes a batch of records into a metadata-and-url feed.
func (fm *FileMaker) MakeURLListFeed(records []Record) ([]byte, error) {
	doc := xmlFeed{
		Header: xmlHeader{Datasource: fm.datasource, FeedType: TypeMetadataAndURL},
		Groups: []xmlGroup{{Records: make([]xmlRecord, 0, len(records))}},
	}
	for _, r := range records {
		doc.Groups[0].Records = append(doc.Groups[0].Records, fm.recordToXML(r))
	}
	return marshalFeed(doc)
}

// ContentEntry is one document of a content feed: a record plus its body,
// metadata and ACL.
type ContentEntry struct {
	Record      Record
	ContentType string
	Content     []byte
	Metadata    *metadata.Metadata
	ACL         *acl.ACL
}

// MakeContentFeed serializes full documents, bodies included, into an
// incremental content feed.
func (fm *FileMaker) MakeContentFeed(entries []ContentEntry) ([]byte, error) {
	doc := xmlFeed{
		Header: xmlHeader{Datasource: fm.datasource, FeedType: TypeIncremental},
		Groups: []xmlGroup{{Records: make([]xmlRecord, 0, len(entries))}},
	}
	for _, e := range entries {
		rec := fm.recordToXML(e.Record)
		rec.Mimetype = e.ContentType
		if e.Metadata != nil && !e.Metadata.IsEmpty() {
			md := &xmlMetadata{}
			e.Metadata.Each(func(k, v string) {
				md.Metas = append(md.Metas, xmlMeta{Name: k, Content: v})
			})
			rec.Metadata = md
		}
		if e.ACL != nil && !e.ACL.IsEmpty() {
			x, err := fm.aclToXML(*e.ACL)
			if err != nil {
				return nil, err
			}
			rec.ACL = x
		}
		if e.Content != nil {
			rec.Content = &xmlContent{
				Encoding: "base64binary",
				Data:     base64.StdEncoding.EncodeToString(e.Content),
			}
		}
		doc.Groups[0].Records = append(doc.Groups[0].Records, rec)
	}
	return marshalFeed(doc)
}

// GroupMembers maps one group principal to its member principals.
type GroupMembers struct {
	Group   acl.Principal
	Members []acl.Principal
}

// MakeGroupsFeed serializes group memberships. caseSensitive applies to the
// whole feed.
func (fm *FileMaker) MakeGroupsFeed(groups []GroupMembers, caseSensitive bool) ([]byte, error) {
	caseType := "EVERYTHING_CASE_SENSITIVE"
	if !caseSensitive {
		caseType = "EVERYTHING_CASE_INSENSITIVE"
	}
	doc := xmlGroupsFeed{}
	for _, g := range groups {
		m := xmlMembership{
			Group: xmlPrincipal{
				Scope:           "GROUP",
				Access:          "permit",
				Namespace:       g.Group.Namespace,
				CaseSensitivity: caseType,
				Name:            g.Group.Name,
			},
		}
		for _, p := range g.Members {
			scope := "USER"
			if p.Kind == acl.KindGroup {
				scope = "GROUP"
			}
			m.Members.Principals = append(m.Members.Principals, xmlPrincipal{
				Scope:           scope,
				Access:          "permit",
				Namespace:       p.Namespace,
				CaseSensitivity: caseType,
				Name:            p.Name,
			})
		}
		doc.Memberships = append(doc.Memberships, m)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("feed: marshal groups feed: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (fm *FileMaker) recordToXML(r Record) xmlRecord {
	rec := xmlRecord{
		URL:        fm.codec.Encode(r.ID),
		DisplayURL: r.ResultLink,
	}
	if !r.LastModified.IsZero() {
		rec.LastModified = r.LastModified.Format(rfc822)
	}
	if r.Lock {
		rec.Lock = "true"
	}
	if r.CrawlImmediately {
		rec.CrawlImmediately = "true"
	}
	if r.CrawlOnce {
		rec.CrawlOnce = "true"
	}
	if r.Delete {
		rec.Action = "delete"
	}
	return rec
}

func (fm *FileMaker) aclToXML(a acl.ACL) (*xmlACL, error) {
	caseType := acl.CaseSensitivitySensitive
	if !a.CaseSensitive() {
		caseType = acl.CaseSensitivityInsensitive
	}
	out := &xmlACL{InheritanceType: a.InheritanceType().String()}
	if parent, ok := a.InheritFrom(); ok {
		u := fm.codec.Encode(parent)
		if frag := a.InheritFragment(); frag != "" {
			u += "#" + frag
		}
		out.InheritFrom = u
	}
	appendSet := func(ps []acl.Principal, access string) {
		for _, p := range ps {
			scope := "user"
			if p.Kind == acl.KindGroup {
				scope = "group"
			}
			out.Principals = append(out.Principals, xmlPrincipal{
				Scope:           scope,
				Access:          access,
				Namespace:       p.Namespace,
				CaseSensitivity: caseType,
				Name:            p.Name,
			})
		}
	}
	appendSet(a.PermitUsers(), "permit")
	appendSet(a.PermitGroups(), "permit")
	appendSet(a.DenyUsers(), "deny")
	appendSet(a.DenyGroups(), "deny")
	return out, nil
}

func marshalFeed(doc xmlFeed) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("feed: marshal feed: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// ParseFeed deserializes a feed document produced by MakeURLListFeed or
// MakeContentFeed. Used by tests and feed archive tooling.
func ParseFeed(data []byte) (datasource, feedType string, records []Record, err error) {
	var doc xmlFeed
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", "", nil, fmt.Errorf("feed: parse feed: %w", err)
	}
	var out []Record
	for _, g := range doc.Groups {
		for _, xr := range g.Records {
			r := Record{
				ResultLink:       xr.DisplayURL,
				CrawlImmediately: xr.CrawlImmediately == "true",
				CrawlOnce:        xr.CrawlOnce == "true",
				Lock:             xr.Lock == "true",
				Delete:           xr.Action == "delete",
			}
			// The URL is kept verbatim in ResultLink-less round trips; the
			// caller owns mapping it back to an identifier.
			r.ID = docid.DocID(xr.URL)
			if xr.LastModified != "" {
				t, perr := time.Parse(rfc822, xr.LastModified)
				if perr != nil {
					return "", "", nil, fmt.Errorf("feed: parse last-modified %q: %w", xr.LastModified, perr)
				}
				r.LastModified = t
			}
			out = append(out, r)
		}
	}
	return doc.Header.Datasource, doc.Header.FeedType, out, nil
}
