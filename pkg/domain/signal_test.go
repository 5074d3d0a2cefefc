package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"designcore/pkg/domain"
)

func TestSignalSnapshotDelivery(t *testing.T) {
	var sig domain.Signal[int]
	var got []string

	sig.Listen(func(v int) {
		got = append(got, "first")
		sig.Listen(func(int) { got = append(got, "late") })
	})
	sig.Dispatch(1)
	assert.Equal(t, []string{"first"}, got)

	got = nil
	sig.Dispatch(2)
	assert.Equal(t, []string{"first", "late"}, got)
}

func TestSignalReleaseDuringDispatch(t *testing.T) {
	var sig domain.Signal[string]
	calls := 0
	var second *domain.Subscription
	sig.Listen(func(string) {
		calls++
		second.Release()
	})
	second = sig.Listen(func(string) { calls += 10 })

	sig.Dispatch("x")
	assert.Equal(t, 1, calls, "released listener is skipped")
	assert.False(t, second.Active())
	assert.Equal(t, 1, sig.Len())
}

func TestSignalDispose(t *testing.T) {
	var sig domain.Signal[int]
	calls := 0
	sub := sig.Listen(func(int) { calls++ })
	sig.Dispose()
	sig.Dispatch(1)
	assert.Zero(t, calls)
	assert.True(t, sig.Disposed())
	assert.Zero(t, sig.Len())

	late := sig.Listen(func(int) { calls++ })
	assert.False(t, late.Active())
	sub.Release()
	sub.Release()
}

func TestSignalGuard(t *testing.T) {
	var sig domain.Signal[int]
	var got []int
	sig.Listen(func(v int) { got = append(got, v) })
	sig.SetGuard(func(v int) bool { return v%2 == 0 })
	sig.Dispatch(1)
	sig.Dispatch(2)
	sig.SetGuard(nil)
	sig.Dispatch(3)
	assert.Equal(t, []int{2, 3}, got)
}

func TestSubscriptionGroupClose(t *testing.T) {
	var a domain.Signal[int]
	var b domain.Signal[string]
	var group domain.SubscriptionGroup
	calls := 0
	group.Track(a.Listen(func(int) { calls++ }))
	group.Track(b.Listen(func(string) { calls++ }))
	assert.Equal(t, 2, group.Len())

	group.Close()
	a.Dispatch(1)
	b.Dispatch("x")
	assert.Zero(t, calls)
	assert.Zero(t, group.Len())
}
