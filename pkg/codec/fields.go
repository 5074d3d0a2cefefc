package codec

import (
	"sort"

	"designcore/pkg/domain"
)

// fieldSet is one reusable slice of an entity's serialized fields. Concrete
// codecs are ordered lists of field sets; later sets win on key conflicts.
type fieldSet interface {
	dump(e domain.Entity, rec Record, includeMetadata bool, opts DumpOptions)
	load(e domain.Entity, rec Record, lc *LoadContext, opts LoadOptions)
}

func loadFloat(rec Record, key string, lc *LoadContext, id string, apply func(float64)) {
	v, ok, err := readFloat(rec, key)
	if err != nil {
		lc.Fail(CategoryInvalidField, id, err.Error())
		return
	}
	if ok {
		apply(v)
	}
}

func loadString(rec Record, key string, lc *LoadContext, id string, apply func(string)) {
	v, ok, err := readString(rec, key)
	if err != nil {
		lc.Fail(CategoryInvalidField, id, err.Error())
		return
	}
	if ok {
		apply(v)
	}
}

func loadBool(rec Record, key string, lc *LoadContext, id string, apply func(bool)) {
	v, ok, err := readBool(rec, key)
	if err != nil {
		lc.Fail(CategoryInvalidField, id, err.Error())
		return
	}
	if ok {
		apply(v)
	}
}

type identityFields struct{}

func (identityFields) dump(e domain.Entity, rec Record, _ bool, opts DumpOptions) {
	rec[KeyID] = e.ID()
	rec[KeyType] = opts.registry().ShortName(e.TypeTag())
}

func (identityFields) load(domain.Entity, Record, *LoadContext, LoadOptions) {}

type metaFields struct{}

func (metaFields) dump(e domain.Entity, rec Record, includeMetadata bool, _ DumpOptions) {
	if !includeMetadata {
		return
	}
	rec[KeyMeta] = map[string]any{
		"family":  string(e.Family()),
		"version": FormatVersion,
	}
}

func (metaFields) load(domain.Entity, Record, *LoadContext, LoadOptions) {}

// persistentChildren expands transient groups into their members.
func persistentChildren(e domain.Entity) []domain.Entity {
	var out []domain.Entity
	for _, c := range e.Children() {
		if g, ok := c.(*domain.Group); ok && g.Transient() {
			out = append(out, persistentChildren(g)...)
			continue
		}
		out = append(out, c)
	}
	return out
}

// persistentParents replaces transient group parents by their own parents.
func persistentParents(e domain.Entity) []domain.Entity {
	var out []domain.Entity
	for _, p := range e.Parents() {
		if g, ok := p.(*domain.Group); ok && g.Transient() {
			out = append(out, persistentParents(g)...)
			continue
		}
		out = append(out, p)
	}
	return out
}

func ids(entities []domain.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.ID())
	}
	return out
}

type hierarchyFields struct{}

func (hierarchyFields) dump(e domain.Entity, rec Record, _ bool, _ DumpOptions) {
	parents := ids(persistentParents(e))
	sort.Strings(parents)
	rec[KeyParents] = parents
	if children := persistentChildren(e); len(children) > 0 {
		rec[KeyChildren] = ids(children)
	}
}

// load makes e's children exactly the entities listed under "c", in order.
// It only runs when the caller asks for hierarchy restoration.
func (hierarchyFields) load(e domain.Entity, rec Record, lc *LoadContext, opts LoadOptions) {
	if !opts.Hierarchy {
		return
	}
	wanted, _, err := readStrings(rec, KeyChildren)
	if err != nil {
		lc.Fail(CategoryInvalidField, e.ID(), err.Error())
		return
	}
	var desired []domain.Entity
	keep := make(map[domain.Entity]bool)
	for _, id := range wanted {
		child, ok := lc.Lookup(id)
		if !ok {
			if !lc.skipped(id) {
				lc.Fail(CategoryUnresolvedRef, e.ID(), "child "+id)
			}
			continue
		}
		if keep[child] || child == e {
			continue
		}
		keep[child] = true
		desired = append(desired, child)
	}
	for _, cur := range persistentChildren(e) {
		if !keep[cur] {
			cur.RemoveParent(e)
		}
	}
	for i, child := range desired {
		idx := indexOf(e.Children(), child)
		if idx == i {
			continue
		}
		if idx >= 0 {
			child.RemoveParent(e)
		}
		if err := domain.Attach(e, child, i); err != nil {
			lc.Fail(CategoryInvalidField, e.ID(), err.Error())
		}
	}
}

func indexOf(list []domain.Entity, e domain.Entity) int {
	for i, cur := range list {
		if cur == e {
			return i
		}
	}
	return -1
}

type transformFields struct{}

func (transformFields) dump(e domain.Entity, rec Record, _ bool, _ DumpOptions) {
	t, ok := e.(domain.Transformable)
	if !ok {
		return
	}
	xf := t.Transform()
	rec["x"], rec["y"], rec["z"] = xf.Position.X, xf.Position.Y, xf.Position.Z
	rec["rx"], rec["ry"], rec["rz"] = xf.Rotation.X, xf.Rotation.Y, xf.Rotation.Z
	rec["sx"], rec["sy"], rec["sz"] = xf.Scale.X, xf.Scale.Y, xf.Scale.Z
}

func (transformFields) load(e domain.Entity, rec Record, lc *LoadContext, _ LoadOptions) {
	t, ok := e.(domain.Transformable)
	if !ok {
		return
	}
	xf := t.Transform()
	targets := []struct {
		key string
		dst *float64
	}{
		{"x", &xf.Position.X}, {"y", &xf.Position.Y}, {"z", &xf.Position.Z},
		{"rx", &xf.Rotation.X}, {"ry", &xf.Rotation.Y}, {"rz", &xf.Rotation.Z},
		{"sx", &xf.Scale.X}, {"sy", &xf.Scale.Y}, {"sz", &xf.Scale.Z},
	}
	for _, tgt := range targets {
		dst := tgt.dst
		loadFloat(rec, tgt.key, lc, e.ID(), func(v float64) { *dst = v })
	}
	t.SetTransform(xf)
}

type layerFields struct{}

func (layerFields) dump(e domain.Entity, rec Record, _ bool, _ DumpOptions) {
	l := e.(*domain.Layer)
	rec["name"] = l.Name()
	rec["height"] = l.Height()
	rec["visible"] = l.Visible()
}

func (layerFields) load(e domain.Entity, rec Record, lc *LoadContext, _ LoadOptions) {
	l := e.(*domain.Layer)
	loadString(rec, "name", lc, l.ID(), l.SetName)
	loadFloat(rec, "height", lc, l.ID(), l.SetHeight)
	loadBool(rec, "visible", lc, l.ID(), l.SetVisible)
}

type wallFields struct{}

func (wallFields) dump(e domain.Entity, rec Record, _ bool, _ DumpOptions) {
	w := e.(*domain.Wall)
	rec["x1"], rec["y1"] = w.From().X, w.From().Y
	rec["x2"], rec["y2"] = w.To().X, w.To().Y
	rec["thickness"] = w.Thickness()
	rec["height"] = w.Height()
}

func (wallFields) load(e domain.Entity, rec Record, lc *LoadContext, _ LoadOptions) {
	w := e.(*domain.Wall)
	from, to := w.From(), w.To()
	loadFloat(rec, "x1", lc, w.ID(), func(v float64) { from.X = v })
	loadFloat(rec, "y1", lc, w.ID(), func(v float64) { from.Y = v })
	loadFloat(rec, "x2", lc, w.ID(), func(v float64) { to.X = v })
	loadFloat(rec, "y2", lc, w.ID(), func(v float64) { to.Y = v })
	w.SetFrom(from)
	w.SetTo(to)
	loadFloat(rec, "thickness", lc, w.ID(), w.SetThickness)
	loadFloat(rec, "height", lc, w.ID(), w.SetHeight)
}

type openingFields struct{}

func (openingFields) dump(e domain.Entity, rec Record, _ bool, _ DumpOptions) {
	o := e.(*domain.Opening)
	rec["width"] = o.Width()
	rec["height"] = o.Height()
	if o.Variant() == domain.OpeningDoor {
		rec["swing"] = float64(o.SwingSide())
	}
}

func (openingFields) load(e domain.Entity, rec Record, lc *LoadContext, _ LoadOptions) {
	o := e.(*domain.Opening)
	loadFloat(rec, "width", lc, o.ID(), o.SetWidth)
	loadFloat(rec, "height", lc, o.ID(), o.SetHeight)
	loadFloat(rec, "swing", lc, o.ID(), func(v float64) { o.SetSwingSide(int(v)) })
}

type contentFields struct{}

func (contentFields) dump(e domain.Entity, rec Record, _ bool, _ DumpOptions) {
	c := e.(*domain.Content)
	rec["seekId"] = c.SeekID()
	if disabled := c.DisabledComponents(); len(disabled) > 0 {
		rec["disabled"] = disabled
	}
}

func (contentFields) load(e domain.Entity, rec Record, lc *LoadContext, _ LoadOptions) {
	c := e.(*domain.Content)
	loadString(rec, "seekId", lc, c.ID(), c.SetSeekID)
	disabled, _, err := readStrings(rec, "disabled")
	if err != nil {
		lc.Fail(CategoryInvalidField, c.ID(), err.Error())
		return
	}
	c.SetDisabledComponents(disabled)
}

type lightFields struct{}

func (lightFields) dump(e domain.Entity, rec Record, _ bool, _ DumpOptions) {
	l := e.(*domain.Light)
	rec["intensity"] = l.Intensity()
	rec["temperature"] = l.Temperature()
	rec["enabled"] = l.Enabled()
	if l.Variant() == domain.LightSpot {
		rec["angle"] = l.Angle()
	}
}

func (lightFields) load(e domain.Entity, rec Record, lc *LoadContext, _ LoadOptions) {
	l := e.(*domain.Light)
	loadFloat(rec, "intensity", lc, l.ID(), l.SetIntensity)
	loadFloat(rec, "temperature", lc, l.ID(), l.SetTemperature)
	loadBool(rec, "enabled", lc, l.ID(), l.SetEnabled)
	loadFloat(rec, "angle", lc, l.ID(), l.SetAngle)
}
