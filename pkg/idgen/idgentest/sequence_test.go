package idgentest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequence(t *testing.T) {
	var seq Sequence
	assert.Equal(t, int64(1), seq.GenerateID())
	assert.Equal(t, int64(2), seq.GenerateID())
	assert.Equal(t, int64(3), seq.GenerateID())
}
