package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	r := New[string]()

	_, ok := r.Get("a")
	assert.False(t, ok)

	r.Add("b", "bee")
	r.Add("a", "ay")
	v, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "ay", v)

	v, loaded := r.GetOrAdd("a", func() string { return "other" })
	assert.True(t, loaded)
	assert.Equal(t, "ay", v)

	v, loaded = r.GetOrAdd("c", func() string { return "sea" })
	assert.False(t, loaded)
	assert.Equal(t, "sea", v)

	assert.Equal(t, []string{"a", "b", "c"}, r.Names())

	r.Del("b")
	assert.Equal(t, []string{"a", "c"}, r.Names())
}
