package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromKey_Stable(t *testing.T) {
	a := FromKey("reconcile", "s1", "p1", "1")
	b := FromKey("reconcile", "s1", "p1", "1")
	c := FromKey("reconcile", "s1", "p1", "2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.False(t, IsNil(a))
}

func TestNew_Ordered(t *testing.T) {
	first := New()
	second := New()

	assert.NotEqual(t, first, second)
	assert.Equal(t, 7, int(first.Version()))
}
