package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringSetAddIdempotent(t *testing.T) {
	s := StringSet{}
	s = s.Add("a").Add("b").Add("a")
	assert.Len(t, s, 2)
	assert.True(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))
}

func TestStringSetRemoveAbsentIsNoop(t *testing.T) {
	s := StringSet{"a"}
	s = s.Remove("missing")
	assert.Equal(t, StringSet{"a"}, s)
	assert.Empty(t, s.Remove("a"))
}

func TestStringSetUnionCommutative(t *testing.T) {
	a := StringSet{"x", "y"}
	b := StringSet{"y", "z"}

	ab := a.Union(b)
	ba := b.Union(a)
	assert.Len(t, ab, 3)
	assert.Len(t, ba, 3)
	for _, v := range []string{"x", "y", "z"} {
		assert.True(t, ab.Contains(v))
		assert.True(t, ba.Contains(v))
	}
}

func TestReactionMapDropsEmptyEmojiKey(t *testing.T) {
	r := ReactionMap{}
	r = r.Add("👍", "alice")
	r = r.Add("👍", "bob")
	r = r.Remove("👍", "alice")
	assert.Len(t, r["👍"], 1)

	r = r.Remove("👍", "bob")
	_, present := r["👍"]
	assert.False(t, present)
}

func TestReactionMapNilReceiver(t *testing.T) {
	var r ReactionMap
	r = r.Add("🔥", "alice")
	assert.True(t, r["🔥"].Contains("alice"))

	var empty ReactionMap
	assert.NotPanics(t, func() { empty.Remove("🔥", "alice") })
}
