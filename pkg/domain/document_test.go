package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"designcore/pkg/diag"
	"designcore/pkg/domain"
)

func newDocument(t *testing.T) (*domain.Document, *diag.Recorder) {
	t.Helper()
	rec := &diag.Recorder{}
	return domain.NewDocument(newRegistry(t), domain.WithReporter(rec)), rec
}

func mustCreate(t *testing.T, doc *domain.Document, typ, seed string, parent domain.Entity) domain.Entity {
	t.Helper()
	e, err := doc.Create(typ, seed)
	require.NoError(t, err)
	if parent != nil {
		require.NoError(t, domain.Attach(parent, e, -1))
	}
	return e
}

func TestCreateUsesRegistryAndSeeds(t *testing.T) {
	doc, _ := newDocument(t)

	wall := mustCreate(t, doc, "Wl", "W", doc.Root())
	assert.Equal(t, "W", wall.ID())
	assert.IsType(t, &domain.Wall{}, wall)

	other := mustCreate(t, doc, domain.TypeWall, "W", doc.Root())
	assert.NotEqual(t, "W", other.ID())

	_, err := doc.Create("Nope", "")
	assert.ErrorIs(t, err, domain.ErrUnknownType)

	got, err := doc.Get("W")
	require.NoError(t, err)
	assert.Same(t, wall, got)

	_, err = doc.Get("missing")
	var nf domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
	assert.Equal(t, "missing", nf.ID)
}

func TestAttachMaintainsBothSides(t *testing.T) {
	doc, _ := newDocument(t)
	wall := mustCreate(t, doc, "Wl", "", doc.Root())
	door := mustCreate(t, doc, "Dr", "", wall)
	win := mustCreate(t, doc, "Wn", "", nil)
	require.NoError(t, domain.Attach(wall, win, 0))

	assert.Equal(t, []domain.Entity{win, door}, wall.Children())
	assert.Same(t, wall, door.(*domain.Opening).Host())
	assert.True(t, door.HasParents())

	assert.False(t, door.AddParent(wall), "attach twice is a no-op")
	assert.True(t, door.RemoveParent(wall))
	assert.False(t, door.RemoveParent(wall))
	assert.False(t, door.HasParents())
	assert.Equal(t, []domain.Entity{win}, wall.Children())
	assert.Contains(t, doc.Detached(), door)

	assert.ErrorIs(t, domain.Attach(win, wall, -1), domain.ErrCycle)
	assert.ErrorIs(t, domain.Attach(wall, wall, -1), domain.ErrCycle)
	assert.ErrorIs(t, domain.Attach(wall, win, -1), domain.ErrAlreadyAttached)
	assert.Equal(t, []domain.Entity{win}, wall.Children())
}

func TestSettersEmitChanges(t *testing.T) {
	doc, _ := newDocument(t)
	box := mustCreate(t, doc, "Bx", "", doc.Root()).(*domain.Content)

	var changes []domain.FieldChange
	sub := box.Changed().Listen(func(c domain.FieldChange) { changes = append(changes, c) })
	defer sub.Release()

	box.SetPosition(domain.Vec3{X: 1})
	box.SetPosition(domain.Vec3{X: 1})
	box.SetSeekID("sofa")

	require.Len(t, changes, 2)
	assert.Equal(t, "position", changes[0].Field)
	assert.Equal(t, domain.Vec3{}, changes[0].Old)
	assert.Equal(t, domain.Vec3{X: 1}, changes[0].New)
	assert.Equal(t, "seekId", changes[1].Field)
}

func TestComponentToggles(t *testing.T) {
	c := domain.NewContent("c", domain.ContentCurtain)
	var toggles []domain.ComponentChange
	c.ComponentToggled().Listen(func(ch domain.ComponentChange) { toggles = append(toggles, ch) })

	c.DisableComponent("valance")
	c.DisableComponent("valance")
	c.SetDisabledComponents([]string{"rod", "sheer"})

	assert.Equal(t, []string{"rod", "sheer"}, c.DisabledComponents())
	assert.True(t, c.IsComponentEnabled("valance"))
	require.Len(t, toggles, 4)
	assert.False(t, toggles[0].Enabled)
	assert.True(t, toggles[1].Enabled)
}

func TestDestroySeversAssociationsAndReleasesID(t *testing.T) {
	doc, _ := newDocument(t)
	a := mustCreate(t, doc, "Bx", "A", doc.Root())
	b := mustCreate(t, doc, "Bx", "B", doc.Root())
	c := mustCreate(t, doc, "Bx", "C", doc.Root())

	sole, err := doc.Associate("Assoc", a, "")
	require.NoError(t, err)
	sole.Bind(b)
	shared, err := doc.Associate("Assoc", c, "")
	require.NoError(t, err)
	shared.Bind(a).Bind(b)
	owned, err := doc.Associate("Assoc", b, "")
	require.NoError(t, err)
	owned.Bind(c)

	var removed []string
	doc.EntityRemoved().Listen(func(e domain.Entity) { removed = append(removed, e.ID()) })
	changes := 0
	b.Changed().Listen(func(domain.FieldChange) { changes++ })

	doc.Destroy(b)
	doc.Destroy(b)

	assert.True(t, b.IsDisposed())
	assert.False(t, doc.IDs().InUse("B"))
	assert.Equal(t, []string{"B"}, removed)
	_, ok := doc.Lookup("B")
	assert.False(t, ok)

	_, ok = doc.Associations().Get(sole.ID())
	assert.False(t, ok, "association targeting only B is cleared")
	_, ok = doc.Associations().Get(owned.ID())
	assert.False(t, ok, "association owned by B is cleared")
	got, ok := doc.Associations().Get(shared.ID())
	require.True(t, ok)
	assert.Equal(t, []domain.Entity{a}, got.Targets())

	b.(*domain.Content).SetPosition(domain.Vec3{X: 3})
	assert.Zero(t, changes, "signals are disposed")
	assert.NotContains(t, doc.Root().Children(), b)
}

func TestPurgeDestroysForgottenTree(t *testing.T) {
	doc, _ := newDocument(t)
	wall := mustCreate(t, doc, "Wl", "W", doc.Root())
	door := mustCreate(t, doc, "Dr", "D", wall)
	shared := mustCreate(t, doc, "Wn", "S", wall)
	require.NoError(t, domain.Attach(doc.Root(), shared, -1))
	host, err := doc.Associate(domain.TypeHostAssociation, door, "")
	require.NoError(t, err)
	host.Bind(wall)

	doc.Purge(wall)
	assert.False(t, wall.IsDisposed(), "registered entities are left alone")

	wall.RemoveParent(doc.Root())
	doc.Forget(wall)
	doc.Purge(wall)

	assert.True(t, wall.IsDisposed())
	assert.False(t, doc.IDs().InUse("W"))
	assert.True(t, door.IsDisposed(), "orphaned children go with it")
	_, ok := doc.Lookup("D")
	assert.False(t, ok)
	assert.False(t, doc.IDs().InUse("D"))
	_, ok = doc.Associations().Get(host.ID())
	assert.False(t, ok)
	assert.Empty(t, doc.Associations().ForEntity("D"))

	assert.False(t, shared.IsDisposed(), "children with another parent survive")
	assert.Equal(t, []domain.Entity{doc.Root()}, shared.Parents())
}

func TestAdoptAndForget(t *testing.T) {
	doc, rec := newDocument(t)
	e := mustCreate(t, doc, "PLt", "L", doc.Root())

	doc.Forget(e)
	_, ok := doc.Lookup("L")
	assert.False(t, ok)
	assert.True(t, doc.IDs().InUse("L"), "forgotten ids stay reserved")

	require.NoError(t, doc.Adopt(e))
	require.NoError(t, doc.Adopt(e))

	imposter := domain.NewLight("L", domain.LightPoint)
	assert.ErrorIs(t, doc.Adopt(imposter), domain.ErrDuplicateID)
	assert.Equal(t, 1, rec.Count(diag.KindIdentityConflict))
}

func TestTransientGroup(t *testing.T) {
	doc, _ := newDocument(t)
	g := doc.NewTransientGroup()
	assert.True(t, g.Transient())
	_, ok := doc.Lookup(g.ID())
	assert.True(t, ok)
}

func TestWalkVisitsOnce(t *testing.T) {
	doc, _ := newDocument(t)
	l := mustCreate(t, doc, "Ly", "", doc.Root())
	w := mustCreate(t, doc, "Wl", "", l)
	d := mustCreate(t, doc, "Dr", "", w)
	require.NoError(t, domain.Attach(l, d, -1))

	var ids []string
	domain.Walk(doc.Root(), func(e domain.Entity) bool {
		ids = append(ids, e.ID())
		return true
	})
	assert.Len(t, ids, 4)
}
