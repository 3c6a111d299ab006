package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/genmerge/internal/model"
)

func TestClock_NextAndCurrent(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	assert.Equal(t, int64(101), NewClockAt(100).Next())
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("r1", "r2")
	assert.Equal(t, "r1", g.Generate())
	assert.Equal(t, "r2", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestRequestQueue(t *testing.T) {
	q := newRequestQueue()
	a := MustRequest(nil, model.FeatureComponents, model.NewMachine("a"))
	b := MustRequest(nil, model.FeatureComponents, model.NewMachine("b"))

	assert.True(t, q.Enqueue(a))
	assert.True(t, q.Enqueue(b))
	assert.Equal(t, 2, q.Len())

	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Same(t, a.Value(), got.Value())

	q.Close()
	assert.False(t, q.Enqueue(a))

	got, ok = q.TryDequeue()
	require.True(t, ok, "requests queued before Close stay available")
	assert.Same(t, b.Value(), got.Value())

	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestQuotaEnforcer(t *testing.T) {
	q := NewQuotaEnforcer(2)
	require.NoError(t, q.Check("run"))
	require.NoError(t, q.Check("run"))

	err := q.Check("run")
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
	assert.Contains(t, err.Error(), "(3 > 2)")
	assert.Equal(t, 3, q.Current())

	unlimited := NewQuotaEnforcer(0)
	for i := 0; i < 50; i++ {
		require.NoError(t, unlimited.Check("run"))
	}
}

func TestRunStorage(t *testing.T) {
	s := NewRunStorage()
	target := model.New(model.KindMachine, "m")

	s.Stash("k", "v")
	s.Reset(target)

	_, ok := s.Fetch("k")
	assert.False(t, ok, "Reset clears entries")

	v, ok := s.Fetch(TranslationTargetKey)
	require.True(t, ok)
	assert.Same(t, target, v)
}

func TestRuntimeErrorFormatting(t *testing.T) {
	assert.Equal(t, "MALFORMED_REQUEST: bad", NewMalformedRequestError("bad").Error())
	assert.Equal(t, "QUOTA_EXCEEDED: run exceeded max requests (5 > 4) (run=r)", NewQuotaError("r", 5, 4).Error())

	err := &RuntimeError{Code: ErrCodeMissingParent, Message: "gone", RunID: "r", Path: "components:m"}
	assert.Equal(t, "MISSING_PARENT: gone (run=r, path=components:m)", err.Error())
	assert.False(t, IsCyclicModelError(err))
	assert.True(t, IsMissingParentError(err))
}
