package names

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyFolds(t *testing.T) {
	assert.Equal(t, Key("bob"), Key("Bob"))
	assert.Equal(t, Key("BOB"), Key("bOb"))
	assert.Equal(t, Key("école"), Key("ÉCOLE"))
	assert.NotEqual(t, Key("bob"), Key("bobby"))
	assert.True(t, Equal("Alice", "aLICE"))
}

func TestLessIsCaseInsensitive(t *testing.T) {
	in := []string{"carol", "Bob", "alice", "Dave", "bea"}
	sort.Slice(in, func(i, j int) bool { return Less(in[i], in[j]) })
	assert.Equal(t, []string{"alice", "bea", "Bob", "carol", "Dave"}, in)

	// same folded key: raw spelling breaks the tie
	assert.True(t, Less("BOB", "bob"))
	assert.False(t, Less("bob", "BOB"))
}
