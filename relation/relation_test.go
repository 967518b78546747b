package relation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddLookup(t *testing.T) {
	r := New[string, int]()

	r.Add("a", 1)
	r.Add("a", 2)
	r.Add("b", 2)

	assert.ElementsMatch(t, []int{1, 2}, r.LookupA("a"))
	assert.ElementsMatch(t, []string{"a", "b"}, r.LookupB(2))
	assert.True(t, r.ContainsA("a"))
	assert.True(t, r.ContainsB(1))
	assert.False(t, r.ContainsA("c"))
}

func TestAddIdempotent(t *testing.T) {
	r := New[string, string]()

	r.Add("x", "y")
	r.Add("x", "y")

	assert.Len(t, r.LookupA("x"), 1)
}

func TestRemovePair(t *testing.T) {
	r := New[string, int]()

	r.Add("a", 1)
	r.Add("a", 2)
	r.Remove("a", 1)

	assert.ElementsMatch(t, []int{2}, r.LookupA("a"))
	assert.False(t, r.ContainsB(1))

	// removing an absent pair is a no-op
	r.Remove("zzz", 99)
	assert.ElementsMatch(t, []int{2}, r.LookupA("a"))
}

func TestRemoveSides(t *testing.T) {
	r := New[string, int]()

	r.Add("a", 1)
	r.Add("a", 2)
	r.Add("b", 2)

	r.RemoveA("a")
	assert.False(t, r.ContainsA("a"))
	assert.ElementsMatch(t, []string{"b"}, r.LookupB(2))

	r.RemoveB(2)
	assert.False(t, r.ContainsA("b"))
	assert.False(t, r.ContainsB(2))
}
