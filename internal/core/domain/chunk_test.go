package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewChunkID_Deterministic(t *testing.T) {
	a := NewChunkID("doc1", 0, "some chunk text")
	b := NewChunkID("doc1", 0, "some chunk text")
	assert.Equal(t, a, b)
}

func TestNewChunkID_Format(t *testing.T) {
	id := NewChunkID("report", 7, "text")
	assert.Regexp(t, `^report_chunk_7_[0-9a-f]{8}$`, id)
}

func TestNewChunkID_VariesWithInputs(t *testing.T) {
	base := NewChunkID("doc1", 0, "text")
	assert.NotEqual(t, base, NewChunkID("doc2", 0, "text"))
	assert.NotEqual(t, base, NewChunkID("doc1", 1, "text"))
	assert.NotEqual(t, base, NewChunkID("doc1", 0, "other"))
}

func TestNewChunkID_OnlyPrefixParticipates(t *testing.T) {
	prefix := strings.Repeat("a", 100)
	a := NewChunkID("doc1", 0, prefix+"tail one")
	b := NewChunkID("doc1", 0, prefix+"tail two")
	assert.Equal(t, a, b, "text beyond the hashed prefix must not change the ID")

	c := NewChunkID("doc1", 0, strings.Repeat("b", 100))
	assert.NotEqual(t, a, c)
}
