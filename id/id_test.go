package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoneIsSentinel(t *testing.T) {
	assert.True(t, None.IsNone())
	assert.False(t, ID{Client: 0, Clock: 0}.IsNone())
}

func TestLast(t *testing.T) {
	a := ID{Client: 3, Clock: 10}
	assert.Equal(t, ID{Client: 3, Clock: 10}, a.Last(1))
	assert.Equal(t, ID{Client: 3, Clock: 14}, a.Last(5))
}

func TestLess(t *testing.T) {
	assert.True(t, ID{Client: 1, Clock: 100}.Less(ID{Client: 2, Clock: 0}))
	assert.False(t, ID{Client: 2, Clock: 0}.Less(ID{Client: 1, Clock: 100}))
	assert.True(t, ID{Client: 1, Clock: 5}.Less(ID{Client: 1, Clock: 6}))
	assert.False(t, ID{Client: 1, Clock: 5}.Less(ID{Client: 1, Clock: 5}))
}

func TestContains(t *testing.T) {
	a := ID{Client: 1, Clock: 10}
	assert.True(t, a.Contains(10, 5))
	assert.True(t, a.Contains(14, 5))
	assert.False(t, a.Contains(15, 5))
	assert.False(t, a.Contains(9, 5))
}

func TestString(t *testing.T) {
	assert.Equal(t, "(3,7)", ID{Client: 3, Clock: 7}.String())
}
