package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/faceswap/internal/job"
)

type namedProcessor struct {
	id ID
}

func (n namedProcessor) ID() ID { return n.id }

func (namedProcessor) PreCheck(context.Context) error { return nil }

func (namedProcessor) PreStart(context.Context) error { return nil }

func (namedProcessor) PostProcess(context.Context) error { return nil }

func (namedProcessor) ProcessImage(context.Context, string, string, string) error { return nil }

func (namedProcessor) ProcessFrameSet(context.Context, string, job.FrameSet) error { return nil }

func namedFactory(id ID) Factory {
	return func(Deps) (FrameProcessor, error) { return namedProcessor{id: id}, nil }
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", "first", namedFactory("a")))
	require.NoError(t, r.Register("b", "second", namedFactory("b")))

	err := r.Register("a", "again", namedFactory("a"))
	assert.ErrorIs(t, err, ErrDuplicateProcessor)

	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("c"))
	assert.Equal(t, []Info{{ID: "a", Description: "first"}, {ID: "b", Description: "second"}}, r.List())
}

func TestRegistry_Chain_PreservesOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", "", namedFactory("a")))
	require.NoError(t, r.Register("b", "", namedFactory("b")))

	chain, err := r.Chain([]string{"b", "a"}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, []ID{"b", "a"}, chain.IDs())

	chain, err = r.Chain([]string{"a", "b"}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, []ID{"a", "b"}, chain.IDs())
}

func TestRegistry_Chain_Unknown(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", "", namedFactory("a")))

	_, err := r.Chain([]string{"a", "nope"}, Deps{})
	assert.ErrorIs(t, err, ErrUnknownProcessor)
	assert.ErrorIs(t, r.Validate([]string{"nope"}), ErrUnknownProcessor)
}

func TestRegistry_Chain_FactoryError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, r.Register("a", "", func(Deps) (FrameProcessor, error) { return nil, boom }))

	_, err := r.Chain([]string{"a"}, Deps{})
	assert.ErrorIs(t, err, boom)
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(&mockEngine{})

	chain, err := r.Chain([]string{string(FaceSwapperID), string(FaceEnhancerID)}, Deps{Request: job.Request{Options: job.DefaultOptions()}})
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.IsType(t, &FaceSwapper{}, chain[0])
	assert.IsType(t, &FaceEnhancer{}, chain[1])

	// Each job gets fresh instances.
	again, err := r.Chain([]string{string(FaceSwapperID)}, Deps{})
	require.NoError(t, err)
	assert.NotSame(t, chain[0], again[0])
}
