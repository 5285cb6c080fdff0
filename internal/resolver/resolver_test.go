package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/raido/internal/vault"
)

func mustIngest(t *testing.T, s *vault.Store, path, content string) {
	t.Helper()
	_, err := s.Ingest(path, []byte(content))
	require.NoError(t, err)
}

func TestResolve_CaseInsensitiveTitle(t *testing.T) {
	s := vault.NewStore()
	mustIngest(t, s, "SAP GUI.md", "The GUI client.\n")
	mustIngest(t, s, "S4 HANA.md", "Talks to [[sap gui]].\n")

	res := Resolve(s)

	refs := res.Refs["S4 HANA.md"]
	require.Len(t, refs, 1)
	require.NotNil(t, refs[0].Note)
	assert.Equal(t, "SAP GUI.md", refs[0].Note.Path)
	assert.Empty(t, res.Dangling)
}

func TestResolve_DanglingLink(t *testing.T) {
	s := vault.NewStore()
	mustIngest(t, s, "S4 HANA.md", "Access goes through [[SAP GUI]].\n")

	res := Resolve(s)

	refs := res.Refs["S4 HANA.md"]
	require.Len(t, refs, 1)
	assert.Nil(t, refs[0].Note)
	require.Len(t, res.Dangling, 1)
	assert.Equal(t, "S4 HANA.md", res.Dangling[0].Source)
	assert.Equal(t, "SAP GUI", res.Dangling[0].Raw)
	assert.Equal(t, 0, res.Dangling[0].Position)
}

func TestResolve_AliasFallback(t *testing.T) {
	s := vault.NewStore()
	mustIngest(t, s, "SAP GUI.md", "---\naliases: [sapgui, the GUI]\n---\nClient.\n")
	mustIngest(t, s, "note.md", "Open [[SapGui]] first.\n")

	res := Resolve(s)

	refs := res.Refs["note.md"]
	require.Len(t, refs, 1)
	require.NotNil(t, refs[0].Note)
	assert.Equal(t, "SAP GUI.md", refs[0].Note.Path)
}

func TestResolve_TitleBeatsAlias(t *testing.T) {
	s := vault.NewStore()
	mustIngest(t, s, "alias-holder.md", "---\ntitle: Other\naliases: [Target]\n---\nx\n")
	mustIngest(t, s, "titled.md", "---\ntitle: target\n---\nx\n")
	mustIngest(t, s, "src.md", "See [[Target]].\n")

	res := Resolve(s)

	refs := res.Refs["src.md"]
	require.Len(t, refs, 1)
	require.NotNil(t, refs[0].Note)
	assert.Equal(t, "titled.md", refs[0].Note.Path,
		"a case-insensitive title match wins over an exact alias match")
}

func TestResolve_ExactCaseTieBreak(t *testing.T) {
	s := vault.NewStore()
	mustIngest(t, s, "a.md", "---\ntitle: sccm\n---\nlowercase first\n")
	mustIngest(t, s, "b.md", "---\ntitle: SCCM\n---\nexact case later\n")
	mustIngest(t, s, "src.md", "Managed by [[SCCM]].\n")

	res := Resolve(s)

	refs := res.Refs["src.md"]
	require.Len(t, refs, 1)
	require.NotNil(t, refs[0].Note)
	assert.Equal(t, "b.md", refs[0].Note.Path)
}

func TestResolve_FirstIngestedTieBreak(t *testing.T) {
	s := vault.NewStore()
	mustIngest(t, s, "first.md", "---\ntitle: Duplicate\n---\nx\n")
	mustIngest(t, s, "second.md", "---\ntitle: Duplicate\n---\nx\n")
	mustIngest(t, s, "src.md", "See [[duplicate]].\n")

	res := Resolve(s)

	refs := res.Refs["src.md"]
	require.Len(t, refs, 1)
	require.NotNil(t, refs[0].Note)
	assert.Equal(t, "first.md", refs[0].Note.Path)
}

func TestResolve_OrderedOccurrences(t *testing.T) {
	s := vault.NewStore()
	mustIngest(t, s, "Arrays in C.md", "Declared with brackets.\n")
	mustIngest(t, s, "src.md", "[[Arrays in C]] then [[Missing]] then [[Arrays in C]] again.\n")

	res := Resolve(s)

	refs := res.Refs["src.md"]
	require.Len(t, refs, 3)
	assert.NotNil(t, refs[0].Note)
	assert.Nil(t, refs[1].Note)
	assert.NotNil(t, refs[2].Note)
	require.Len(t, res.Dangling, 1)
	assert.Equal(t, 1, res.Dangling[0].Position)
}

func TestResolve_ExplicitSelfLink(t *testing.T) {
	s := vault.NewStore()
	mustIngest(t, s, "Recursion.md", "See [[Recursion]].\n")
	mustIngest(t, s, "plain.md", "No self reference here.\n")

	res := Resolve(s)

	refs := res.Refs["Recursion.md"]
	require.Len(t, refs, 1)
	require.NotNil(t, refs[0].Note)
	assert.Equal(t, "Recursion.md", refs[0].Note.Path)
	assert.Empty(t, res.Refs["plain.md"], "no implicit self-links")
}

func TestResolve_AttachmentEmbedSkipped(t *testing.T) {
	s := vault.NewStore()
	mustIngest(t, s, "note.md", "![[screenshot.png]] and ![[Other Note]].\n")
	mustIngest(t, s, "Other Note.md", "x\n")

	res := Resolve(s)

	refs := res.Refs["note.md"]
	require.Len(t, refs, 1, "image embeds are not note references")
	require.NotNil(t, refs[0].Note)
	assert.Equal(t, "Other Note.md", refs[0].Note.Path)
	assert.Empty(t, res.Dangling)
}

func TestResolve_PathStem(t *testing.T) {
	s := vault.NewStore()
	mustIngest(t, s, "c/Pointers in C.md", "---\ntitle: Pointers\n---\nStars everywhere.\n")
	mustIngest(t, s, "src.md", "Deep link [[c/Pointers in C]] and short [[Pointers in C.md]].\n")

	res := Resolve(s)

	refs := res.Refs["src.md"]
	require.Len(t, refs, 2)
	require.NotNil(t, refs[0].Note)
	assert.Equal(t, "c/Pointers in C.md", refs[0].Note.Path)
	require.NotNil(t, refs[1].Note, ".md suffix is stripped before stem lookup")
	assert.Equal(t, "c/Pointers in C.md", refs[1].Note.Path)
}
