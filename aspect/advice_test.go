package aspect

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proceedHandler(e *Execution) ([]any, error) { return e.Proceed() }

func TestNew_GeneratesUUIDv7ID(t *testing.T) {
	a := New(proceedHandler)

	parsed, err := uuid.Parse(a.ID())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.True(t, a.Enabled(), "advice starts enabled")
}

func TestNew_Options(t *testing.T) {
	a := New(proceedHandler, WithID("adv-1"), WithName("tracer"), Disabled())

	assert.Equal(t, "adv-1", a.ID())
	assert.Equal(t, "tracer", a.Name())
	assert.False(t, a.Enabled())
}

func TestAdvice_NameFallsBackToID(t *testing.T) {
	a := New(proceedHandler, WithID("adv-7"))
	assert.Equal(t, "adv-7", a.Name())
}

func TestAdvice_SetEnabled(t *testing.T) {
	a := New(proceedHandler)

	a.SetEnabled(false)
	assert.False(t, a.Enabled())

	a.SetEnabled(true)
	assert.True(t, a.Enabled())
}

func TestAdvice_EqualComparesIDOnly(t *testing.T) {
	a := New(proceedHandler, WithID("same"), WithName("left"))
	b := New(func(e *Execution) ([]any, error) { return nil, nil }, WithID("same"), WithName("right"))
	c := New(proceedHandler, WithID("other"))

	assert.True(t, a.Equal(b), "identity is the id, not the handler or name")
	assert.True(t, b.Equal(a))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestNew_DefaultGeneratorInjectable(t *testing.T) {
	prev := defaultIDs
	defaultIDs = NewFixedGenerator("fixed-1", "fixed-2")
	t.Cleanup(func() { defaultIDs = prev })

	assert.Equal(t, "fixed-1", New(proceedHandler).ID())
	assert.Equal(t, "fixed-2", New(proceedHandler).ID())
}
