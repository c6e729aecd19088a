package component

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envdesk/envdesk/errors"
	"github.com/envdesk/envdesk/styles"
)

type fakeComponent struct {
	alias    string
	setups   []Data
	setupErr error
	panics   bool
	torn     bool
}

func (f *fakeComponent) Setup(data Data) error {
	if f.panics {
		panic("setup exploded")
	}
	f.setups = append(f.setups, data)
	return f.setupErr
}

func (f *fakeComponent) UpdateStyleSheet(styles.Palette) {}
func (f *fakeComponent) StartTimers()                    {}
func (f *fakeComponent) StopTimers()                     {}
func (f *fakeComponent) Teardown() error {
	f.torn = true
	return nil
}

func fakeFactory(alias string, c *fakeComponent) Factory {
	return NewFactory(alias, func(Deps) (Component, error) {
		return c, nil
	})
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry(Deps{})
	c := &fakeComponent{alias: "accounts"}

	require.NoError(t, r.Register(fakeFactory("accounts", c)))
	assert.True(t, r.Has("accounts"))
	assert.Equal(t, 1, r.Len())

	got, err := r.Get("accounts")
	require.NoError(t, err)
	assert.Same(t, Component(c), got)
}

func TestRegisterDuplicateAliasKeepsFirst(t *testing.T) {
	r := NewRegistry(Deps{})
	first := &fakeComponent{}
	second := &fakeComponent{}

	require.NoError(t, r.Register(fakeFactory("accounts", first)))

	err := r.Register(fakeFactory("accounts", second))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDuplicateComponent)

	// First registration intact, no partial corruption
	got, getErr := r.Get("accounts")
	require.NoError(t, getErr)
	assert.Same(t, Component(first), got)
	assert.Equal(t, 1, r.Len())
}

func TestRegisterEmptyAliasFails(t *testing.T) {
	r := NewRegistry(Deps{})
	err := r.Register(fakeFactory("", &fakeComponent{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidComponent)
}

func TestRegisterNilFactoryFails(t *testing.T) {
	r := NewRegistry(Deps{})
	err := r.Register(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidComponent)
}

func TestGetUnknownAliasFails(t *testing.T) {
	r := NewRegistry(Deps{})
	_, err := r.Get("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownComponent)
}

func TestRegisterFactoryErrorPropagates(t *testing.T) {
	r := NewRegistry(Deps{})
	boom := fmt.Errorf("construction failed")
	err := r.Register(NewFactory("broken", func(Deps) (Component, error) {
		return nil, boom
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, r.Has("broken"))
}

func TestBroadcastPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry(Deps{})
	aliases := []string{"notifications", "whats_new", "accounts", "applications"}
	for _, alias := range aliases {
		require.NoError(t, r.Register(fakeFactory(alias, &fakeComponent{})))
	}

	var visited []string
	require.NoError(t, r.Broadcast("probe", func(alias string, _ Component) error {
		visited = append(visited, alias)
		return nil
	}))
	assert.Equal(t, aliases, visited)
	assert.Equal(t, aliases, r.Aliases())
}

func TestBroadcastContinuesPastFailure(t *testing.T) {
	r := NewRegistry(Deps{})
	first := &fakeComponent{}
	failing := &fakeComponent{setupErr: fmt.Errorf("setup failed")}
	last := &fakeComponent{}

	require.NoError(t, r.Register(fakeFactory("first", first)))
	require.NoError(t, r.Register(fakeFactory("failing", failing)))
	require.NoError(t, r.Register(fakeFactory("last", last)))

	err := r.Setup(Data{Initial: true})
	require.Error(t, err)

	// Every component received the call despite the middle failure
	assert.Len(t, first.setups, 1)
	assert.Len(t, failing.setups, 1)
	assert.Len(t, last.setups, 1)
	assert.True(t, first.setups[0].Initial)
}

func TestBroadcastContinuesPastPanic(t *testing.T) {
	r := NewRegistry(Deps{})
	panicking := &fakeComponent{panics: true}
	last := &fakeComponent{}

	require.NoError(t, r.Register(fakeFactory("panicking", panicking)))
	require.NoError(t, r.Register(fakeFactory("last", last)))

	err := r.Setup(Data{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Len(t, last.setups, 1)
}

func TestTeardownReachesEveryComponent(t *testing.T) {
	r := NewRegistry(Deps{})
	a := &fakeComponent{}
	b := &fakeComponent{}
	require.NoError(t, r.Register(fakeFactory("a", a)))
	require.NoError(t, r.Register(fakeFactory("b", b)))

	require.NoError(t, r.Teardown())
	assert.True(t, a.torn)
	assert.True(t, b.torn)
}

func TestDataSucceeded(t *testing.T) {
	assert.True(t, Data{}.Succeeded())
	assert.True(t, Data{Output: map[string]any{"environments": []string{}}}.Succeeded())
	assert.False(t, Data{Err: "connection refused"}.Succeeded())
}
