package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"designcore/internal/txn"
	"designcore/pkg/domain"
)

type testPlugin struct {
	name string
	fn   func(*PluginRegistry) error
}

func (p testPlugin) Name() string { return p.name }
func (p testPlugin) Version() string { return "1.0.0" }
func (p testPlugin) Register(r *PluginRegistry) error { return p.fn(r) }

type namedRule string

func (r namedRule) Name() string { return string(r) }

func (r namedRule) Evaluate(context.Context, *domain.Document, []txn.Change) (txn.Result, error) {
	return txn.Result{}, nil
}

func noopFactory(m *txn.Manager, _ ...any) (txn.Request, error) {
	return txn.NewComposite(), nil
}

func TestPluginRegistryCollects(t *testing.T) {
	r := NewPluginRegistry()
	r.RegisterRule(nil)
	r.RegisterRule(namedRule("r1"))
	require.NoError(t, r.RegisterRequest("Zeta", noopFactory))
	require.NoError(t, r.RegisterRequest("Alpha", noopFactory))
	require.Error(t, r.RegisterRequest("Alpha", noopFactory))
	require.Error(t, r.RegisterRequest("", noopFactory))
	r.RegisterAlias("", "x")

	assert.Len(t, r.Rules(), 1)
	assert.Equal(t, []string{"Alpha", "Zeta"}, r.RequestTypes())
	assert.Empty(t, r.aliases)
}

func TestInstallPluginWiresContributions(t *testing.T) {
	svc := newTestService(t)
	meta, err := svc.InstallPlugin(testPlugin{name: "extras", fn: func(r *PluginRegistry) error {
		r.RegisterRule(namedRule("extras_rule"))
		r.RegisterAssociation("Model.ExtraAssociation", "Extra", nil)
		r.RegisterAlias("Crate", domain.TypeBox)
		return r.RegisterRequest("Noop", noopFactory)
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"extras_rule"}, meta.Rules)
	assert.Equal(t, map[string]string{"Crate": domain.TypeBox}, meta.Aliases)

	assert.Contains(t, svc.Transactions().RequestTypes(), "Noop")
	_, ok := svc.Registry().AssociationByType("Extra")
	assert.True(t, ok)
	info, ok := svc.Registry().Class("Crate")
	require.True(t, ok)
	assert.Equal(t, domain.TypeBox, info.Long)
	assert.Len(t, svc.Rules().Rules(), 3)

	plugins := svc.RegisteredPlugins()
	require.Len(t, plugins, 1)
	assert.Equal(t, "extras", plugins[0].Name)
}

func TestInstallPluginRejections(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.InstallPlugin(nil)
	require.Error(t, err)

	ok := testPlugin{name: "p", fn: func(*PluginRegistry) error { return nil }}
	_, err = svc.InstallPlugin(ok)
	require.NoError(t, err)
	_, err = svc.InstallPlugin(ok)
	require.Error(t, err, "duplicate name")

	boom := errors.New("boom")
	_, err = svc.InstallPlugin(testPlugin{name: "failing", fn: func(*PluginRegistry) error { return boom }})
	assert.True(t, errors.Is(err, boom))

	_, err = svc.InstallPlugin(testPlugin{name: "shadow", fn: func(r *PluginRegistry) error {
		return r.RegisterRequest(txn.TypeMove, noopFactory)
	}})
	require.Error(t, err, "builtin request types cannot be replaced")

	_, err = svc.InstallPlugin(testPlugin{name: "badalias", fn: func(r *PluginRegistry) error {
		r.RegisterAlias("Legacy", "Model.Missing")
		return nil
	}})
	assert.True(t, errors.Is(err, domain.ErrUnknownType))
	assert.Len(t, svc.RegisteredPlugins(), 1)
}

func TestPluginRequestsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.InstallPlugin(testPlugin{name: "p", fn: func(r *PluginRegistry) error {
		return r.RegisterRequest("Noop", noopFactory)
	}})
	require.NoError(t, err)
	_, err = svc.Save(ctx, "")
	require.NoError(t, err)
	_, err = svc.Open(ctx, svc.DocumentID(), 0)
	require.NoError(t, err)
	r, err := svc.Transactions().CreateRequest("Noop")
	require.NoError(t, err)
	require.NoError(t, svc.Transactions().Commit(r))
}

func TestRejectedPluginLeavesNoContributions(t *testing.T) {
	svc := newTestService(t)
	rules := len(svc.Rules().Rules())

	_, err := svc.InstallPlugin(testPlugin{name: "partial", fn: func(r *PluginRegistry) error {
		r.RegisterRule(namedRule("partial_rule"))
		r.RegisterAssociation("Model.PartialAssociation", "Partial", nil)
		r.RegisterAlias("Legacy", "Model.Missing")
		return r.RegisterRequest("PartialNoop", noopFactory)
	}})
	require.ErrorIs(t, err, domain.ErrUnknownType)

	_, ok := svc.Registry().AssociationByType("Partial")
	assert.False(t, ok)
	assert.Len(t, svc.Rules().Rules(), rules)
	assert.NotContains(t, svc.Transactions().RequestTypes(), "PartialNoop")
	assert.Empty(t, svc.RegisteredPlugins())

	_, err = svc.InstallPlugin(testPlugin{name: "partial", fn: func(r *PluginRegistry) error {
		r.RegisterAssociation("Model.PartialAssociation", "Partial", nil)
		return nil
	}})
	require.NoError(t, err, "a corrected plugin installs cleanly")
}
