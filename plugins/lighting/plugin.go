// Package lighting contributes light aiming: an association from a light to
// the entity it points at, a request type that binds it, a placement rule and
// the retired short names older payloads used for lights.
package lighting

import (
	"context"
	"fmt"
	"math"

	"designcore/internal/core"
	"designcore/internal/txn"
	"designcore/pkg/domain"
)

// Names contributed by the plugin.
const (
	TypeLightTarget  = "Model.LightTargetAssociation"
	ShortLightTarget = "LightTarget"
	RequestAimLight  = "AimLight"
	RuleAboveFloor   = "light_above_floor"
)

// Plugin implements the lighting module.
type Plugin struct{}

// New constructs a lighting plugin instance.
func New() Plugin { return Plugin{} }

// Name returns the plugin identifier.
func (Plugin) Name() string { return "lighting" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "0.2.0" }

// Register wires the association, request, rule and aliases.
func (Plugin) Register(registry *core.PluginRegistry) error {
	registry.RegisterAssociation(TypeLightTarget, ShortLightTarget, ComputeAim)
	if err := registry.RegisterRequest(RequestAimLight, newAimRequest); err != nil {
		return err
	}
	registry.RegisterRule(aboveFloorRule{})
	registry.RegisterAlias("Lamp", domain.TypePointLight)
	registry.RegisterAlias("Spot", domain.TypeSpotLight)
	return nil
}

// ComputeAim derives the distance and pitch (radians) from the light to its
// first target. Both are dropped when the target has no position.
func ComputeAim(a *domain.Association) {
	light, ok := a.Entity().(*domain.Light)
	if !ok {
		return
	}
	target, ok := a.FirstTarget().(domain.Transformable)
	if !ok {
		a.ClearDerived("distance")
		a.ClearDerived("pitch")
		return
	}
	d := target.Transform().Position.Sub(light.Transform().Position)
	horizontal := math.Hypot(d.X, d.Y)
	a.SetDerived("distance", math.Sqrt(horizontal*horizontal+d.Z*d.Z))
	a.SetDerived("pitch", math.Atan2(d.Z, horizontal))
}

// newAimRequest builds AimLight(light *domain.Light, target domain.Entity).
func newAimRequest(m *txn.Manager, args ...any) (txn.Request, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: %s takes a light and a target", txn.ErrInvalidArguments, RequestAimLight)
	}
	light, ok := args[0].(*domain.Light)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a light", txn.ErrInvalidArguments, args[0])
	}
	target, ok := args[1].(domain.Entity)
	if !ok || target == nil {
		return nil, fmt.Errorf("%w: %T is not an entity", txn.ErrInvalidArguments, args[1])
	}
	return txn.NewBindAssociationRequest(m.Document(), TypeLightTarget, light, target)
}

type aboveFloorRule struct{}

func (aboveFloorRule) Name() string { return RuleAboveFloor }

func (r aboveFloorRule) Evaluate(_ context.Context, _ *domain.Document, changes []txn.Change) (txn.Result, error) {
	var res txn.Result
	for _, ch := range changes {
		if ch.Action == txn.ActionDelete || ch.Action == txn.ActionRecycle {
			continue
		}
		light, ok := ch.Entity.(*domain.Light)
		if !ok {
			continue
		}
		if z := light.Transform().Position.Z; z < 0 {
			res.Violations = append(res.Violations, txn.Violation{
				Rule:     r.Name(),
				Severity: txn.SeverityWarn,
				Message:  fmt.Sprintf("light sits %.2f below the floor", -z),
				EntityID: light.ID(),
			})
		}
	}
	return res, nil
}
