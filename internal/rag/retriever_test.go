package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPgvectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1,0.25]", pgvectorLiteral([]float32{0.5, -1, 0.25}))
	assert.Equal(t, "[]", pgvectorLiteral(nil))
}
