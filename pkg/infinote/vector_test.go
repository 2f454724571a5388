package infinote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorGetAndIncr(t *testing.T) {
	v := NewVector()
	assert.Equal(t, 0, v.Get(1))

	v2 := v.Incr(1, 1)
	assert.Equal(t, 0, v.Get(1), "incr is functional")
	assert.Equal(t, 1, v2.Get(1))

	// incr(u,a).incr(u,b) == incr(u,a+b)
	assert.True(t, v.Incr(1, 2).Incr(1, 3).Equals(v.Incr(1, 5)))

	// components that reach zero are dropped
	assert.Empty(t, v2.Incr(1, -1).Users())
}

func TestVectorAdd(t *testing.T) {
	a := NewVectorFromMap(map[UserID]int{1: 2, 2: 1})
	b := NewVectorFromMap(map[UserID]int{2: 3, 3: 1})
	sum := a.Add(b)
	assert.Equal(t, 2, sum.Get(1))
	assert.Equal(t, 4, sum.Get(2))
	assert.Equal(t, 1, sum.Get(3))
}

func TestVectorCausallyBefore(t *testing.T) {
	a := NewVectorFromMap(map[UserID]int{1: 1})
	b := NewVectorFromMap(map[UserID]int{1: 2, 2: 1})

	assert.True(t, a.CausallyBefore(b))
	assert.False(t, b.CausallyBefore(a))
	assert.True(t, a.CausallyBefore(a), "causallyBefore is reflexive")
	assert.True(t, NewVector().CausallyBefore(a), "empty vector precedes everything")
}

func TestVectorEquals(t *testing.T) {
	a := NewVectorFromMap(map[UserID]int{1: 1, 2: 2})
	b := NewVectorFromMap(map[UserID]int{2: 2, 1: 1})
	c := NewVectorFromMap(map[UserID]int{1: 1})

	assert.True(t, a.Equals(b))
	assert.True(t, b.Equals(a))
	assert.False(t, a.Equals(c))
	assert.True(t, NewVector().Equals(NewVectorFromMap(map[UserID]int{1: 0})), "zero components are absent")
}

func TestLeastCommonSuccessor(t *testing.T) {
	a := NewVectorFromMap(map[UserID]int{1: 3, 2: 1})
	b := NewVectorFromMap(map[UserID]int{1: 1, 3: 2})
	lcs := LeastCommonSuccessor(a, b)

	assert.Equal(t, 3, lcs.Get(1))
	assert.Equal(t, 1, lcs.Get(2))
	assert.Equal(t, 2, lcs.Get(3))

	// The join dominates both inputs.
	assert.True(t, a.CausallyBefore(lcs))
	assert.True(t, b.CausallyBefore(lcs))
}

func TestVectorString(t *testing.T) {
	v := NewVectorFromMap(map[UserID]int{3: 4, 1: 2})
	assert.Equal(t, "1:2;3:4", v.String())
	assert.Equal(t, "", NewVector().String())

	parsed, err := ParseVector("1:2;3:4")
	require.NoError(t, err)
	assert.True(t, parsed.Equals(v))
}

func TestParseVector(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[UserID]int
		bad   bool
	}{
		{"empty", "", map[UserID]int{}, false},
		{"single", "7:3", map[UserID]int{7: 3}, false},
		{"multiple", "1:2;3:4", map[UserID]int{1: 2, 3: 4}, false},
		{"zero component dropped", "1:0;2:5", map[UserID]int{2: 5}, false},
		{"missing colon", "12", nil, true},
		{"non-numeric user", "a:1", nil, true},
		{"non-numeric value", "1:b", nil, true},
		{"negative value", "1:-2", nil, true},
		{"empty component", "1:2;", nil, true},
		{"duplicate user", "1:2;1:3", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVector(tt.input)
			if tt.bad {
				assert.ErrorIs(t, err, ErrMalformedVector)
				return
			}
			require.NoError(t, err)
			assert.True(t, v.Equals(NewVectorFromMap(tt.want)))
		})
	}
}

func TestVectorUsersSorted(t *testing.T) {
	v := NewVectorFromMap(map[UserID]int{5: 1, 1: 1, 3: 1})
	assert.Equal(t, []UserID{1, 3, 5}, v.Users())
}
