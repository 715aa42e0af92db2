package statement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLinesDropsEmpty(t *testing.T) {
	s := SplitLines([]byte("<a> <b> <c> .\n\n<x> <y> <z> .\n"))
	assert.Len(t, s, 2)
	assert.True(t, s.Equal(NewSet("<a> <b> <c> .", "<x> <y> <z> .")))
}

func TestJoinDeterministic(t *testing.T) {
	a := NewSet("<x> <y> <z> .", "<a> <b> <c> .")
	b := NewSet("<a> <b> <c> .", "<x> <y> <z> .")

	assert.Equal(t, a.Join(), b.Join())
	assert.Equal(t, "<a> <b> <c> .\n<x> <y> <z> .", string(a.Join()))
}

func TestDiffAndPatch(t *testing.T) {
	prev := NewSet("<a> <b> <c> .", "<d> <e> <f> .")
	next := NewSet("<a> <b> <c> .", "<x> <y> <z> .")

	delta := prev.Diff(next)
	assert.Equal(t, "A <x> <y> <z> .\nD <d> <e> <f> .", string(delta))

	got := NewSet("<a> <b> <c> .", "<d> <e> <f> .")
	got.Patch(delta)
	assert.True(t, got.Equal(next))
}

func TestDiffEmpty(t *testing.T) {
	s := NewSet("<a> <b> <c> .")
	assert.Empty(t, s.Diff(NewSet("<a> <b> <c> .")))

	// patching with an empty delta is a no-op
	s.Patch(nil)
	assert.Len(t, s, 1)
}

func TestEqual(t *testing.T) {
	assert.True(t, NewSet().Equal(NewSet()))
	assert.False(t, NewSet("<a> <b> <c> .").Equal(NewSet()))
	assert.False(t, NewSet("<a> <b> <c> .").Equal(NewSet("<a> <b> <d> .")))
}
