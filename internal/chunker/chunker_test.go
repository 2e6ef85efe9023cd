package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestSplit_ChunkCount(t *testing.T) {
	cases := []struct {
		name     string
		words    int
		maxWords int
		want     int
	}{
		{"empty", 0, 500, 0},
		{"shorter than max", 10, 500, 1},
		{"exact multiple", 1000, 500, 2},
		{"with remainder", 1200, 500, 3},
		{"one word chunks", 7, 1, 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := Split(words(tc.words), tc.maxWords)
			assert.Len(t, chunks, tc.want)
		})
	}
}

func TestSplit_EveryChunkButLastIsFull(t *testing.T) {
	chunks := Split(words(1200), 500)
	require.Len(t, chunks, 3)

	assert.Len(t, strings.Fields(chunks[0]), 500)
	assert.Len(t, strings.Fields(chunks[1]), 500)
	assert.Len(t, strings.Fields(chunks[2]), 200)
}

func TestSplit_PreservesWordSequence(t *testing.T) {
	input := words(1234)
	chunks := Split(input, 100)

	var got []string
	for _, c := range chunks {
		got = append(got, strings.Fields(c)...)
	}
	assert.Equal(t, strings.Fields(input), got)
}

func TestSplit_NormalizesWhitespace(t *testing.T) {
	chunks := Split("  one\t two \n three  ", 2)
	require.Len(t, chunks, 2)
	assert.Equal(t, "one two", chunks[0])
	assert.Equal(t, "three", chunks[1])
}

func TestSplit_InvalidMaxWords(t *testing.T) {
	assert.Nil(t, Split("some text here", 0))
	assert.Nil(t, Split("some text here", -1))
}

func TestSplit_EmptyInput(t *testing.T) {
	assert.Nil(t, Split("", 500))
	assert.Nil(t, Split("   \n\t ", 500))
}
