package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("v_%d", i)
	}
	return out
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		numTasks int
		sizes    []int
	}{
		{"empty", 0, 4, nil},
		{"fewer ids than tasks", 3, 4, []int{3}},
		{"equal to tasks", 4, 4, []int{4}},
		{"even split", 8, 4, []int{2, 2, 2, 2}},
		{"remainder goes to last chunk", 10, 4, []int{2, 2, 2, 4}},
		{"large remainder", 11, 3, []int{3, 3, 5}},
		{"single task", 5, 1, []int{5}},
		{"non-positive tasks", 5, 0, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Split(ids(tt.n), tt.numTasks)
			require.Len(t, chunks, len(tt.sizes))
			for i, size := range tt.sizes {
				assert.Len(t, chunks[i], size, "chunk %d", i)
			}
		})
	}
}

func TestSplit_ContiguousAndComplete(t *testing.T) {
	input := ids(23)
	chunks := Split(input, 5)

	var flattened []string
	for _, c := range chunks {
		flattened = append(flattened, c...)
	}
	assert.Equal(t, input, flattened)
}

func TestSplit_Deterministic(t *testing.T) {
	input := ids(37)
	first := Split(input, 6)
	for range 10 {
		assert.Equal(t, first, Split(input, 6))
	}
}

func TestSplit_DoesNotAlias(t *testing.T) {
	input := ids(6)
	chunks := Split(input, 2)
	chunks[0][0] = "mutated"
	assert.Equal(t, "v_0", input[0])
}
