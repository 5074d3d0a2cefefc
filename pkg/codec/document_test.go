package codec_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"designcore/pkg/codec"
	"designcore/pkg/diag"
	"designcore/pkg/domain"
)

func buildDocument(t *testing.T, reg *domain.Registry) *domain.Document {
	t.Helper()
	doc := domain.NewDocument(reg, domain.WithRootID("root"))
	create := func(typ, id string, parent domain.Entity) domain.Entity {
		e, err := doc.Create(typ, id)
		require.NoError(t, err)
		require.NoError(t, domain.Attach(parent, e, -1))
		return e
	}
	layer := create("Ly", "L1", doc.Root())
	wall := create("Wl", "W1", layer).(*domain.Wall)
	wall.SetTo(domain.Point2{X: 4})
	door := create("Dr", "D1", wall).(*domain.Opening)
	door.SetPosition(domain.Vec3{X: 1})
	require.NoError(t, domain.Attach(layer, door, -1))
	curtain := create("Ct", "C1", layer).(*domain.Content)
	curtain.DisableComponent("valance")
	create("SLt", "S1", layer)

	host, err := doc.Associate(domain.TypeHostAssociation, door, "H1")
	require.NoError(t, err)
	host.Bind(wall)
	assoc, err := doc.Associate("Assoc", curtain, "A1")
	require.NoError(t, err)
	assoc.Bind(door)
	return doc
}

func TestDocumentRoundTripThroughJSON(t *testing.T) {
	reg := newRegistry(t)
	doc := buildDocument(t, reg)

	payload, err := codec.DumpDocument(doc)
	require.NoError(t, err)
	data, err := codec.Marshal(payload)
	require.NoError(t, err)

	decoded, err := codec.Unmarshal(data)
	require.NoError(t, err)
	loaded, report, err := codec.LoadDocument(decoded, reg, codec.LoadConfig{})
	require.NoError(t, err)
	require.True(t, report.OK(), "errors: %v", report.Errors)
	assert.Equal(t, 6, report.Entities)
	assert.Equal(t, 2, report.Associations)

	assert.Equal(t, "root", loaded.Root().ID())
	door, err := loaded.Get("D1")
	require.NoError(t, err)
	parentIDs := []string{}
	for _, p := range door.Parents() {
		parentIDs = append(parentIDs, p.ID())
	}
	assert.ElementsMatch(t, []string{"W1", "L1"}, parentIDs)

	curtain, err := loaded.Get("C1")
	require.NoError(t, err)
	assert.Equal(t, []string{"valance"}, curtain.(*domain.Content).DisabledComponents())

	host, ok := loaded.Associations().Get("H1")
	require.True(t, ok)
	assert.True(t, host.IsValid())
	offset, ok := host.Derived("offset")
	require.True(t, ok)
	assert.InDelta(t, 1.0, offset, 1e-9)
	assert.True(t, loaded.IDs().InUse("A1"))

	again, err := codec.DumpDocument(loaded)
	require.NoError(t, err)
	againData, err := codec.Marshal(again)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(againData))
}

func TestTreeLayout(t *testing.T) {
	reg := newRegistry(t)
	doc := buildDocument(t, reg)
	payload, err := codec.DumpDocument(doc)
	require.NoError(t, err)
	data, err := json.Marshal(payload.Tree)
	require.NoError(t, err)

	var raw []any
	require.NoError(t, json.Unmarshal(data, &raw))
	root, ok := raw[0].(map[string]any)
	require.True(t, ok, "element 0 is the root record")
	assert.Equal(t, "Ly", root["l"])
	layer, ok := raw[1].([]any)
	require.True(t, ok, "element 1 is the layer subtree")
	assert.Equal(t, "L1", layer[0].(map[string]any)["id"])
}

func TestAssociationDumpExample(t *testing.T) {
	reg := newRegistry(t)
	doc := domain.NewDocument(reg)
	a, err := doc.Create("Bx", "A")
	require.NoError(t, err)
	b, err := doc.Create("Bx", "B")
	require.NoError(t, err)
	require.NoError(t, domain.Attach(doc.Root(), a, -1))
	require.NoError(t, domain.Attach(doc.Root(), b, -1))
	assoc, err := doc.Associate("Assoc", a, "")
	require.NoError(t, err)
	assoc.Bind(b)

	data, err := json.Marshal(assoc.Dump(reg))
	require.NoError(t, err)
	assert.JSONEq(t, `{"l":"Assoc","id":"`+assoc.ID()+`","entity":"A","targets":["B"]}`, string(data))
}

const corruptPayload = `{
  "version": 1,
  "tree": [
    {"id": "root", "l": "Ly", "c": ["W1", "X1", "B1"]},
    {"l": "Assoc", "id": "A1", "entity": "B1", "targets": ["X1"]},
    {"l": "Mystery", "id": "M1", "entity": "B1", "targets": []},
    [{"id": "W1", "l": "Wl", "thickness": "thick", "x2": 3}],
    [{"id": "X1", "l": "Zz", "c": ["X2"]}, [{"id": "X2", "l": "Bx"}]],
    [{"id": "B1", "l": "Bx", "x": 2, "extra": {"a": 1}}]
  ]
}`

func TestLoadSkipsCorruptBranches(t *testing.T) {
	reg := newRegistry(t)
	rec := &diag.Recorder{}
	p, err := codec.Unmarshal([]byte(corruptPayload))
	require.NoError(t, err)

	doc, report, err := codec.LoadDocument(p, reg, codec.LoadConfig{Reporter: rec})
	require.NoError(t, err)
	require.False(t, report.OK())

	byCat := map[codec.Category][]*codec.LoadError{}
	for _, le := range report.Errors {
		byCat[le.Category] = append(byCat[le.Category], le)
	}
	require.Len(t, byCat[codec.CategoryUnknownType], 2)
	assert.Equal(t, "$.tree[4]", byCat[codec.CategoryUnknownType][0].Path)
	assert.Equal(t, "X1", byCat[codec.CategoryUnknownType][0].ID)
	assert.Equal(t, "$.tree[2]", byCat[codec.CategoryUnknownType][1].Path)
	require.Len(t, byCat[codec.CategoryInvalidField], 1)
	assert.Equal(t, "$.tree[3]", byCat[codec.CategoryInvalidField][0].Path)
	require.Len(t, byCat[codec.CategoryUnresolvedRef], 1)
	assert.Equal(t, "A1", byCat[codec.CategoryUnresolvedRef][0].ID)

	_, ok := doc.Lookup("X2")
	assert.False(t, ok, "subtree of an unknown type is skipped")
	wall, err := doc.Get("W1")
	require.NoError(t, err)
	assert.Equal(t, 3.0, wall.(*domain.Wall).To().X)
	children := []string{}
	for _, c := range doc.Root().Children() {
		children = append(children, c.ID())
	}
	assert.Equal(t, []string{"W1", "B1"}, children)

	assoc, ok := doc.Associations().Get("A1")
	require.True(t, ok, "unresolved associations are kept")
	assert.False(t, assoc.IsValid())
	_, ok = doc.Associations().Get("M1")
	assert.False(t, ok)
	assert.Equal(t, 2, rec.Count(diag.KindUnknownType))
}

func TestLoadFallsBackToTreeChildren(t *testing.T) {
	reg := newRegistry(t)
	p, err := codec.Unmarshal([]byte(`{"version":1,"tree":[{"id":"r","l":"Ly"},[{"id":"b","l":"Bx"}]]}`))
	require.NoError(t, err)
	doc, report, err := codec.LoadDocument(p, reg, codec.LoadConfig{})
	require.NoError(t, err)
	assert.True(t, report.OK())
	b, err := doc.Get("b")
	require.NoError(t, err)
	assert.True(t, b.HasParents())
}

func TestLoadRejectsUnusablePayloads(t *testing.T) {
	reg := newRegistry(t)
	cases := map[string]string{
		"no tree":    `{"version":1}`,
		"bad json":   `{"version":`,
		"empty node": `{"version":1,"tree":[]}`,
		"scalar":     `{"version":1,"tree":[{"id":"r","l":"Ly"}, 3]}`,
	}
	for name, body := range cases {
		_, err := codec.Unmarshal([]byte(body))
		assert.ErrorIs(t, err, codec.ErrInvalidPayload, name)
	}

	p, err := codec.Unmarshal([]byte(`{"version":1,"tree":[{"id":"r","l":"Bx"}]}`))
	require.NoError(t, err)
	_, _, err = codec.LoadDocument(p, reg, codec.LoadConfig{})
	assert.ErrorIs(t, err, codec.ErrInvalidPayload)

	p.Version = codec.FormatVersion + 1
	_, _, err = codec.LoadDocument(p, reg, codec.LoadConfig{})
	assert.ErrorIs(t, err, codec.ErrInvalidPayload)
}

func TestLoadHonoursRenamedTypes(t *testing.T) {
	reg := newRegistry(t)
	require.NoError(t, reg.Alias("Door", domain.TypeDoor))
	p, err := codec.Unmarshal([]byte(`{"version":1,"tree":[{"id":"r","l":"Ly","c":["d"]},[{"id":"d","l":"Door","width":1.1}]]}`))
	require.NoError(t, err)
	doc, report, err := codec.LoadDocument(p, reg, codec.LoadConfig{})
	require.NoError(t, err)
	require.True(t, report.OK(), "%v", report.Errors)
	d, err := doc.Get("d")
	require.NoError(t, err)
	assert.Equal(t, 1.1, d.(*domain.Opening).Width())
}
