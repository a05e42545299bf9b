package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlpoint/connector/pkg/docid"
)

func identity(user string, groups ...string) Identity {
	id := Identity{}
	if user != "" {
		id.User = MustUser(user)
	}
	for _, g := range groups {
		id.Groups = append(id.Groups, MustGroup(g))
	}
	return id
}

func TestPrincipalValidation(t *testing.T) {
	_, err := NewUser("")
	assert.ErrorIs(t, err, ErrInvalidPrincipal)

	_, err = NewUser(" padded ")
	assert.ErrorIs(t, err, ErrInvalidPrincipal)

	p, err := NewUserInNamespace("alice", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultNamespace, p.Namespace)
}

func TestLocalDecision(t *testing.T) {
	a := NewBuilder().
		PermitUsers(MustUser("alice")).
		DenyGroups(MustGroup("g1")).
		MustBuild()

	assert.Equal(t, Deny, a.Decide(identity("alice", "g1")), "deny trumps permit")
	assert.Equal(t, Permit, a.Decide(identity("alice", "g2")))
	assert.Equal(t, Indeterminate, a.Decide(identity("bob", "g3")))
}

func TestLocalDecisionCaseSensitivity(t *testing.T) {
	sensitive := NewBuilder().PermitUsers(MustUser("Alice")).MustBuild()
	assert.Equal(t, Indeterminate, sensitive.Decide(identity("alice")))

	insensitive := NewBuilder().
		PermitUsers(MustUser("Alice")).
		CaseSensitive(false).
		MustBuild()
	assert.Equal(t, Permit, insensitive.Decide(identity("alice")))
}

func TestBuilderRejectsWrongKind(t *testing.T) {
	_, err := NewBuilder().PermitUsers(MustGroup("g")).Build()
	assert.ErrorIs(t, err, ErrInvalidPrincipal)
}

func TestBuildNormalizes(t *testing.T) {
	a := NewBuilder().PermitUsers(MustUser("b"), MustUser("a"), MustUser("b")).MustBuild()
	got := a.PermitUsers()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "b", got[1].Name)
}

func TestChainParentOverrides(t *testing.T) {
	root := NewBuilder().
		PermitUsers(MustUser("alice")).
		InheritanceType(ParentOverrides).
		MustBuild()
	leaf := NewBuilder().
		DenyUsers(MustUser("alice")).
		InheritFrom("root").
		InheritanceType(LeafNode).
		MustBuild()

	assert.Equal(t, Permit, DecideChain(identity("alice"), []ACL{root, leaf}))
}

func TestChainChildOverrides(t *testing.T) {
	root := NewBuilder().
		DenyUsers(MustUser("alice")).
		InheritanceType(ChildOverrides).
		MustBuild()
	leaf := NewBuilder().
		PermitUsers(MustUser("alice")).
		InheritFrom("root").
		MustBuild()

	assert.Equal(t, Permit, DecideChain(identity("alice"), []ACL{root, leaf}))
	// Child indeterminate falls back to the parent.
	assert.Equal(t, Deny, DecideChain(identity("alice"), []ACL{root, Empty}))
}

func TestChainAndBothPermit(t *testing.T) {
	root := NewBuilder().
		PermitUsers(MustUser("alice"), MustUser("bob")).
		InheritanceType(AndBothPermit).
		MustBuild()
	leaf := NewBuilder().
		PermitUsers(MustUser("alice")).
		InheritFrom("root").
		MustBuild()

	assert.Equal(t, Permit, DecideChain(identity("alice"), []ACL{root, leaf}))
	assert.Equal(t, Deny, DecideChain(identity("bob"), []ACL{root, leaf}))
	assert.Equal(t, Deny, DecideChain(identity("carol"), []ACL{root, leaf}))
}

func TestChainLeafNodeMisconfiguration(t *testing.T) {
	root := NewBuilder().
		PermitUsers(MustUser("alice")).
		InheritanceType(LeafNode).
		MustBuild()
	leaf := NewBuilder().
		PermitUsers(MustUser("alice")).
		InheritFrom("root").
		MustBuild()

	assert.Equal(t, Deny, DecideChain(identity("alice"), []ACL{root, leaf}))
}

func TestChainSingleEmptyACL(t *testing.T) {
	assert.Equal(t, Indeterminate, DecideChain(identity("alice"), []ACL{Empty}))
}

func TestIsAuthorizedNeverIndeterminate(t *testing.T) {
	assert.Equal(t, Deny, IsAuthorized(identity("alice"), []ACL{Empty}))
	assert.Equal(t, Deny, IsAuthorized(identity("alice"), nil))

	permit := NewBuilder().PermitUsers(MustUser("alice")).MustBuild()
	assert.Equal(t, Permit, IsAuthorized(identity("alice"), []ACL{permit}))
}

func TestParseInheritanceType(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want InheritanceType
	}{
		{"child-overrides", ChildOverrides},
		{"PARENT_OVERRIDES", ParentOverrides},
		{"and-both-permit", AndBothPermit},
		{"LEAF-NODE", LeafNode},
	} {
		got, err := ParseInheritanceType(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseInheritanceType("bogus")
	assert.Error(t, err)
}

func TestMarshalDocControls(t *testing.T) {
	codec, err := docid.NewCodec("http://h:5678/doc/", false)
	require.NoError(t, err)

	a := NewBuilder().
		PermitUsers(MustUser("alice")).
		DenyGroups(MustGroup("eng")).
		InheritFromWithFragment("parent", "frag").
		InheritanceType(ParentOverrides).
		MustBuild()

	got, err := a.MarshalDocControls(codec)
	require.NoError(t, err)
	assert.Contains(t, got, `"scope":"user"`)
	assert.Contains(t, got, `"access":"deny"`)
	assert.Contains(t, got, `"name":"eng"`)
	assert.Contains(t, got, `"inherit_from":"http://h:5678/doc/parent#frag"`)
	assert.Contains(t, got, `"inheritance_type":"parent-overrides"`)
}

func TestMetadataPairs(t *testing.T) {
	codec, err := docid.NewCodec("http://h:5678/doc/", false)
	require.NoError(t, err)

	a := NewBuilder().
		PermitUsers(MustUser("alice")).
		PermitGroups(MustGroup("eng")).
		InheritFrom("parent").
		MustBuild()

	pairs, err := a.MetadataPairs(codec)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, pairs[MetaKeyUsers])
	assert.Equal(t, []string{"eng"}, pairs[MetaKeyGroups])
	assert.Equal(t, []string{"http://h:5678/doc/parent"}, pairs[MetaKeyInheritFrom])
	assert.Equal(t, []string{"child-overrides"}, pairs[MetaKeyInheritanceType])
}

func TestMetadataPairsRejectsNamespace(t *testing.T) {
	codec, err := docid.NewCodec("http://h:5678/doc/", false)
	require.NoError(t, err)

	p, err := NewUserInNamespace("alice", "corp")
	require.NoError(t, err)

	a := NewBuilder().PermitUsers(p).MustBuild()
	_, err = a.MetadataPairs(codec)
	assert.ErrorIs(t, err, ErrUnsupportedNamespace)
}
