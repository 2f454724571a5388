package infinote

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Vector is a state vector: a logical clock mapping each user to the number
// of requests executed from that user. A missing component reads as zero and
// zero-valued components are semantically absent. Vectors are immutable;
// every operation returns a new vector.
type Vector struct {
	components map[UserID]int
}

// NewVector creates an empty vector.
func NewVector() Vector {
	return Vector{}
}

// NewVectorFromMap creates a vector from the given components. Zero and
// negative components are dropped.
func NewVectorFromMap(components map[UserID]int) Vector {
	v := Vector{components: make(map[UserID]int, len(components))}
	for user, value := range components {
		if value > 0 {
			v.components[user] = value
		}
	}
	return v
}

// ParseVector parses the canonical string form "u1:n1;u2:n2". The empty
// string parses to the empty vector. Malformed components, non-numeric
// values and duplicate users are rejected.
func ParseVector(s string) (Vector, error) {
	v := Vector{components: make(map[UserID]int)}
	if s == "" {
		return v, nil
	}
	seen := make(map[UserID]bool)
	for _, part := range strings.Split(s, ";") {
		user, value, ok := strings.Cut(part, ":")
		if !ok {
			return Vector{}, fmt.Errorf("%w: component %q", ErrMalformedVector, part)
		}
		u, err := strconv.Atoi(user)
		if err != nil || u < 0 {
			return Vector{}, fmt.Errorf("%w: user %q", ErrMalformedVector, user)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return Vector{}, fmt.Errorf("%w: value %q", ErrMalformedVector, value)
		}
		if seen[UserID(u)] {
			return Vector{}, fmt.Errorf("%w: duplicate user %d", ErrMalformedVector, u)
		}
		seen[UserID(u)] = true
		if n > 0 {
			v.components[UserID(u)] = n
		}
	}
	return v, nil
}

// Get returns a specific component of this vector, or 0 if it is not set.
func (v Vector) Get(user UserID) int {
	return v.components[user]
}

// Users returns the users with non-zero components, sorted ascending.
// Iteration over vector components must be deterministic wherever it feeds
// cache keys, serialization or translation order.
func (v Vector) Users() []UserID {
	users := make([]UserID, 0, len(v.components))
	for user := range v.components {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// Copy returns a copy of this vector.
func (v Vector) Copy() Vector {
	out := Vector{components: make(map[UserID]int, len(v.components))}
	for user, value := range v.components {
		out.components[user] = value
	}
	return out
}

// Incr returns a new vector with the given user's component increased by
// `by`. Components that reach zero are removed.
func (v Vector) Incr(user UserID, by int) Vector {
	out := v.Copy()
	next := out.components[user] + by
	if next > 0 {
		out.components[user] = next
	} else {
		delete(out.components, user)
	}
	return out
}

// set returns a copy of this vector with the given component replaced.
func (v Vector) set(user UserID, value int) Vector {
	out := v.Copy()
	if value > 0 {
		out.components[user] = value
	} else {
		delete(out.components, user)
	}
	return out
}

// Add returns the componentwise sum of two vectors.
func (v Vector) Add(other Vector) Vector {
	out := v.Copy()
	for user, value := range other.components {
		next := out.components[user] + value
		if next > 0 {
			out.components[user] = next
		} else {
			delete(out.components, user)
		}
	}
	return out
}

// CausallyBefore reports whether every component of this vector is less
// than or equal to the corresponding component of the other vector.
func (v Vector) CausallyBefore(other Vector) bool {
	for user, value := range v.components {
		if value > other.Get(user) {
			return false
		}
	}
	return true
}

// Equals reports whether the two vectors are mutually causally before each
// other, i.e. all components match.
func (v Vector) Equals(other Vector) bool {
	return v.CausallyBefore(other) && other.CausallyBefore(v)
}

// String returns the vector as a string of the form "u1:n1;u2:n2", sorted
// ascending by user, zero components omitted.
func (v Vector) String() string {
	parts := make([]string, 0, len(v.components))
	for _, user := range v.Users() {
		parts = append(parts, strconv.Itoa(int(user))+":"+strconv.Itoa(v.components[user]))
	}
	return strings.Join(parts, ";")
}

// LeastCommonSuccessor returns the join of two vectors in the causal-order
// lattice: the componentwise maximum.
func LeastCommonSuccessor(v1, v2 Vector) Vector {
	out := v1.Copy()
	for user, value := range v2.components {
		if value > out.components[user] {
			out.components[user] = value
		}
	}
	return out
}
