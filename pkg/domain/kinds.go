package domain

import "sort"

// Long class names of the built-in entity types.
const (
	TypeLayer      = "Model.Layer"
	TypeWall       = "Model.Wall"
	TypeDoor       = "Model.Door"
	TypeWindow     = "Model.Window"
	TypeHole       = "Model.Hole"
	TypeBox        = "Model.Box"
	TypeCurtain    = "Model.Curtain"
	TypeModel      = "Model.Content"
	TypePointLight = "Model.PointLight"
	TypeSpotLight  = "Model.SpotLight"
	TypeGroup      = "Model.Group"
)

// Vec3 is a plain 3D coordinate.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v-o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Point2 is a plan coordinate.
type Point2 struct {
	X, Y float64
}

// Transform places a transformable entity.
type Transform struct {
	Position Vec3
	Rotation Vec3
	Scale    Vec3
}

// IdentityTransform has unit scale at the origin.
func IdentityTransform() Transform {
	return Transform{Scale: Vec3{1, 1, 1}}
}

// Transformable is implemented by families that carry a Transform.
type Transformable interface {
	Entity
	Transform() Transform
	SetTransform(Transform)
	SetPosition(Vec3)
}

type placement struct {
	node *Node
	xf   Transform
}

// Transform returns the current placement.
func (p *placement) Transform() Transform { return p.xf }

// Position returns the placement origin.
func (p *placement) Position() Vec3 { return p.xf.Position }

// SetPosition moves the entity.
func (p *placement) SetPosition(v Vec3) { set(p.node, "position", &p.xf.Position, v) }

// SetRotation rotates the entity (radians per axis).
func (p *placement) SetRotation(v Vec3) { set(p.node, "rotation", &p.xf.Rotation, v) }

// SetScale scales the entity.
func (p *placement) SetScale(v Vec3) { set(p.node, "scale", &p.xf.Scale, v) }

// SetTransform replaces position, rotation and scale.
func (p *placement) SetTransform(t Transform) {
	p.SetPosition(t.Position)
	p.SetRotation(t.Rotation)
	p.SetScale(t.Scale)
}

// Layer is a container of walls, contents and lights. The document root is a
// Layer.
type Layer struct {
	*Node
	name    string
	height  float64
	visible bool
}

// NewLayer constructs a visible layer.
func NewLayer(id string) *Layer {
	l := &Layer{Node: newNode(id, TypeLayer, FamilyLayer), visible: true, height: 2.8}
	l.self = l
	return l
}

func (l *Layer) Name() string { return l.name }
func (l *Layer) Height() float64 { return l.height }
func (l *Layer) Visible() bool { return l.visible }
func (l *Layer) SetName(v string) { set(l.Node, "name", &l.name, v) }
func (l *Layer) SetHeight(v float64) { set(l.Node, "height", &l.height, v) }
func (l *Layer) SetVisible(v bool) { set(l.Node, "visible", &l.visible, v) }

// Wall is a straight wall segment hosting openings as children.
type Wall struct {
	*Node
	from, to  Point2
	thickness float64
	height    float64
}

// NewWall constructs a wall with default thickness and height.
func NewWall(id string) *Wall {
	w := &Wall{Node: newNode(id, TypeWall, FamilyWall), thickness: 0.24, height: 2.8}
	w.self = w
	return w
}

func (w *Wall) From() Point2 { return w.from }
func (w *Wall) To() Point2 { return w.to }
func (w *Wall) Thickness() float64 { return w.thickness }
func (w *Wall) Height() float64 { return w.height }
func (w *Wall) SetFrom(p Point2) { set(w.Node, "from", &w.from, p) }
func (w *Wall) SetTo(p Point2) { set(w.Node, "to", &w.to, p) }
func (w *Wall) SetThickness(v float64) { set(w.Node, "thickness", &w.thickness, v) }
func (w *Wall) SetHeight(v float64) { set(w.Node, "height", &w.height, v) }

// OpeningVariant selects the opening type.
type OpeningVariant int

// Opening variants.
const (
	OpeningDoor OpeningVariant = iota
	OpeningWindow
	OpeningHole
)

// Opening is a door, window or hole cut into its host wall.
type Opening struct {
	*Node
	placement
	variant   OpeningVariant
	width     float64
	height    float64
	swingSide int
}

// NewOpening constructs an opening of the given variant.
func NewOpening(id string, variant OpeningVariant) *Opening {
	tag := TypeDoor
	switch variant {
	case OpeningWindow:
		tag = TypeWindow
	case OpeningHole:
		tag = TypeHole
	}
	o := &Opening{Node: newNode(id, tag, FamilyOpening), variant: variant, width: 0.9, height: 2.1}
	o.placement = placement{node: o.Node, xf: IdentityTransform()}
	o.self = o
	return o
}

func (o *Opening) Variant() OpeningVariant { return o.variant }
func (o *Opening) Width() float64 { return o.width }
func (o *Opening) Height() float64 { return o.height }
func (o *Opening) SwingSide() int { return o.swingSide }
func (o *Opening) SetWidth(v float64) { set(o.Node, "width", &o.width, v) }
func (o *Opening) SetHeight(v float64) { set(o.Node, "height", &o.height, v) }
func (o *Opening) SetSwingSide(v int) { set(o.Node, "swingSide", &o.swingSide, v) }

// Host returns the wall the opening is attached to, if any.
func (o *Opening) Host() *Wall {
	for _, p := range o.Parents() {
		if w, ok := p.(*Wall); ok {
			return w
		}
	}
	return nil
}

// ContentVariant selects the content type.
type ContentVariant int

// Content variants.
const (
	ContentModel ContentVariant = iota
	ContentBox
	ContentCurtain
)

// ComponentChange is dispatched when a content component is toggled.
type ComponentChange struct {
	Content   *Content
	Component string
	Enabled   bool
}

// Content is a placed catalog product: a box, a curtain or a generic model.
// Components may be disabled individually.
type Content struct {
	*Node
	placement
	variant  ContentVariant
	seekID   string
	disabled map[string]bool
	toggled  Signal[ComponentChange]
}

// NewContent constructs a content of the given variant.
func NewContent(id string, variant ContentVariant) *Content {
	tag := TypeModel
	switch variant {
	case ContentBox:
		tag = TypeBox
	case ContentCurtain:
		tag = TypeCurtain
	}
	c := &Content{Node: newNode(id, tag, FamilyContent), variant: variant, disabled: make(map[string]bool)}
	c.placement = placement{node: c.Node, xf: IdentityTransform()}
	c.self = c
	c.onDestroy(c.toggled.Dispose)
	return c
}

func (c *Content) Variant() ContentVariant { return c.variant }
func (c *Content) SeekID() string { return c.seekID }
func (c *Content) SetSeekID(v string) { set(c.Node, "seekId", &c.seekID, v) }

// ComponentToggled fires when a component is enabled or disabled.
func (c *Content) ComponentToggled() *Signal[ComponentChange] { return &c.toggled }

// IsComponentEnabled reports whether name is enabled. Unknown names are enabled.
func (c *Content) IsComponentEnabled(name string) bool { return !c.disabled[name] }

// EnableComponent enables name.
func (c *Content) EnableComponent(name string) {
	if !c.disabled[name] {
		return
	}
	delete(c.disabled, name)
	c.toggled.Dispatch(ComponentChange{Content: c, Component: name, Enabled: true})
}

// DisableComponent disables name.
func (c *Content) DisableComponent(name string) {
	if name == "" || c.disabled[name] {
		return
	}
	c.disabled[name] = true
	c.toggled.Dispatch(ComponentChange{Content: c, Component: name, Enabled: false})
}

// DisabledComponents returns the disabled set in lexical order.
func (c *Content) DisabledComponents() []string {
	out := make([]string, 0, len(c.disabled))
	for name := range c.disabled {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SetDisabledComponents replaces the disabled set, dispatching one toggle per
// changed component.
func (c *Content) SetDisabledComponents(names []string) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if n != "" {
			want[n] = true
		}
	}
	for _, name := range c.DisabledComponents() {
		if !want[name] {
			c.EnableComponent(name)
		}
	}
	keys := make([]string, 0, len(want))
	for name := range want {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	for _, name := range keys {
		c.DisableComponent(name)
	}
}

// LightVariant selects the light type.
type LightVariant int

// Light variants.
const (
	LightPoint LightVariant = iota
	LightSpot
)

// Light is a point or spot light source.
type Light struct {
	*Node
	placement
	variant     LightVariant
	intensity   float64
	temperature float64
	enabled     bool
	angle       float64
}

// NewLight constructs an enabled light of the given variant.
func NewLight(id string, variant LightVariant) *Light {
	tag := TypePointLight
	if variant == LightSpot {
		tag = TypeSpotLight
	}
	l := &Light{Node: newNode(id, tag, FamilyLight), variant: variant, intensity: 1000, temperature: 6500, enabled: true}
	if variant == LightSpot {
		l.angle = 0.6
	}
	l.placement = placement{node: l.Node, xf: IdentityTransform()}
	l.self = l
	return l
}

func (l *Light) Variant() LightVariant { return l.variant }
func (l *Light) Intensity() float64 { return l.intensity }
func (l *Light) Temperature() float64 { return l.temperature }
func (l *Light) Enabled() bool { return l.enabled }
func (l *Light) Angle() float64 { return l.angle }
func (l *Light) SetIntensity(v float64) { set(l.Node, "intensity", &l.intensity, v) }
func (l *Light) SetTemperature(v float64) { set(l.Node, "temperature", &l.temperature, v) }
func (l *Light) SetEnabled(v bool) { set(l.Node, "enabled", &l.enabled, v) }
func (l *Light) SetAngle(v float64) { set(l.Node, "angle", &l.angle, v) }

// Group gathers members under a shared transform. Transient groups exist only
// for the duration of an interactive command and are never serialized.
type Group struct {
	*Node
	placement
	transient bool
}

// NewGroup constructs a persistent group.
func NewGroup(id string) *Group {
	g := &Group{Node: newNode(id, TypeGroup, FamilyGroup)}
	g.placement = placement{node: g.Node, xf: IdentityTransform()}
	g.self = g
	return g
}

// NewTransientGroup constructs a group that codecs skip.
func NewTransientGroup(id string) *Group {
	g := NewGroup(id)
	g.transient = true
	return g
}

// Transient reports whether the group is command-scoped.
func (g *Group) Transient() bool { return g.transient }

// Members returns the grouped entities.
func (g *Group) Members() []Entity { return g.Children() }

// RegisterBuiltins registers every built-in entity and association class.
func RegisterBuiltins(r *Registry) error {
	classes := []struct {
		long, short string
		family      Family
		factory     Factory
	}{
		{TypeLayer, "Ly", FamilyLayer, func(id string) Entity { return NewLayer(id) }},
		{TypeWall, "Wl", FamilyWall, func(id string) Entity { return NewWall(id) }},
		{TypeDoor, "Dr", FamilyOpening, func(id string) Entity { return NewOpening(id, OpeningDoor) }},
		{TypeWindow, "Wn", FamilyOpening, func(id string) Entity { return NewOpening(id, OpeningWindow) }},
		{TypeHole, "Hl", FamilyOpening, func(id string) Entity { return NewOpening(id, OpeningHole) }},
		{TypeBox, "Bx", FamilyContent, func(id string) Entity { return NewContent(id, ContentBox) }},
		{TypeCurtain, "Ct", FamilyContent, func(id string) Entity { return NewContent(id, ContentCurtain) }},
		{TypeModel, "Cn", FamilyContent, func(id string) Entity { return NewContent(id, ContentModel) }},
		{TypePointLight, "PLt", FamilyLight, func(id string) Entity { return NewLight(id, LightPoint) }},
		{TypeSpotLight, "SLt", FamilyLight, func(id string) Entity { return NewLight(id, LightSpot) }},
		{TypeGroup, "Gp", FamilyGroup, func(id string) Entity { return NewGroup(id) }},
	}
	for _, c := range classes {
		if err := r.RegisterClass(c.long, c.short, c.family, c.factory); err != nil {
			return err
		}
	}
	if err := r.RegisterAssociation(TypeAssociation, "Assoc", nil); err != nil {
		return err
	}
	return r.RegisterAssociation(TypeHostAssociation, "HostAssoc", ComputeHostOffset)
}
