package wire

// Command names shared by the four dialects. Names are fixed by the
// protocol; adding one requires updating the corresponding dialect reader.
const (
	cmdID                    = "id"
	cmdIDList                = "id-list"
	cmdResultLink            = "result-link"
	cmdLastModified          = "last-modified"
	cmdCrawlImmediately      = "crawl-immediately"
	cmdCrawlOnce             = "crawl-once"
	cmdLock                  = "lock"
	cmdDelete                = "delete"
	cmdUpToDate              = "up-to-date"
	cmdNotFound              = "not-found"
	cmdMimeType              = "mime-type"
	cmdDisplayURL            = "display-url"
	cmdSecure                = "secure"
	cmdNoIndex               = "no-index"
	cmdNoFollow              = "no-follow"
	cmdNoArchive             = "no-archive"
	cmdContent               = "content"
	cmdRepositoryUnavailable = "repository-unavailable"

	cmdMetaName   = "meta-name"
	cmdMetaValue  = "meta-value"
	cmdParamName  = "param-name"
	cmdParamValue = "param-value"
	cmdAnchorURI  = "anchor-uri"
	cmdAnchorText = "anchor-text"

	cmdACL                = "acl"
	cmdACLPermitUser      = "acl-permit-user"
	cmdACLDenyUser        = "acl-deny-user"
	cmdACLPermitGroup     = "acl-permit-group"
	cmdACLDenyGroup       = "acl-deny-group"
	cmdACLInheritFrom     = "acl-inherit-from"
	cmdACLInheritFragment = "acl-inherit-fragment"
	cmdACLInheritanceType = "acl-inheritance-type"
	cmdACLCaseSensitive   = "acl-case-sensitive"
	cmdACLCaseInsensitive = "acl-case-insensitive"
	cmdNamespace          = "namespace"

	cmdUsername    = "username"
	cmdPassword    = "password"
	cmdGroup       = "group"
	cmdAuthzStatus = "authz-status"
)
