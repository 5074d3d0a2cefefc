package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"designcore/pkg/domain"
)

type bareRequest struct{ n int }

func (*bareRequest) Type() string      { return "Bare" }
func (*bareRequest) OnCommit() error   { return nil }
func (*bareRequest) OnUndo() error     { return nil }
func (*bareRequest) OnRedo() error     { return nil }
func (*bareRequest) Changes() []Change { return nil }

func TestStatesOnlyHoldRequestsInHistory(t *testing.T) {
	reg := domain.NewRegistry()
	require.NoError(t, domain.RegisterBuiltins(reg))
	m := NewManager(domain.NewDocument(reg), WithHistoryLimit(2))
	require.NoError(t, m.RegisterRequest("Bare", func(*Manager, ...any) (Request, error) {
		return &bareRequest{}, nil
	}))

	for range 10 {
		_, err := m.CreateRequest("Bare")
		require.NoError(t, err)
		_, err = m.CreateRequest(TypeComposite)
		require.NoError(t, err)
	}
	assert.Empty(t, m.states, "created requests are not tracked")

	for i := range 5 {
		require.NoError(t, m.Commit(&bareRequest{n: i}))
	}
	assert.Len(t, m.states, 2, "evicted requests are dropped")

	m.Clear()
	assert.Empty(t, m.states)
}
