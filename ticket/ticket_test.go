package ticket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Shape(t *testing.T) {
	data := Generate()
	require.Len(t, data, 1)

	grid := data[0]
	require.Len(t, grid, rows)

	for r, row := range grid {
		require.Len(t, row, cols)

		occupied := 0
		for _, cell := range row {
			if cell != nil {
				occupied++
			}
		}
		assert.Equalf(t, cellsPerRow, occupied, "row %d should have exactly %d occupied cells", r, cellsPerRow)
	}
}

func TestGenerate_ColumnRanges(t *testing.T) {
	for i := 0; i < 50; i++ {
		grid := Generate()[0]
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				cell := grid[r][c]
				if cell == nil {
					continue
				}
				rng := colRanges[c]
				assert.GreaterOrEqualf(t, cell.Number, rng.min, "cell (%d,%d)", r, c)
				assert.LessOrEqualf(t, cell.Number, rng.max, "cell (%d,%d)", r, c)
			}
		}
	}
}

func TestGenerate_UniqueNumbers(t *testing.T) {
	// Uniqueness is best-effort with a bounded retry budget, but for a
	// single 15-cell ticket the budget makes a collision vanishingly
	// unlikely.
	for i := 0; i < 50; i++ {
		grid := Generate()[0]
		seen := make(map[int]bool)
		for _, row := range grid {
			for _, cell := range row {
				if cell == nil {
					continue
				}
				assert.Falsef(t, seen[cell.Number], "duplicate number %d", cell.Number)
				seen[cell.Number] = true
			}
		}
	}
}

func TestGenerate_ColumnMonotonicity(t *testing.T) {
	for i := 0; i < 50; i++ {
		grid := Generate()[0]
		for c := 0; c < cols; c++ {
			prev := 0
			for r := 0; r < rows; r++ {
				cell := grid[r][c]
				if cell == nil {
					continue
				}
				assert.Greaterf(t, cell.Number, prev, "column %d must ascend top to bottom", c)
				prev = cell.Number
			}
		}
	}
}

func TestGenerate_FreshCells(t *testing.T) {
	grid := Generate()[0]
	ids := make(map[string]bool)
	for _, row := range grid {
		for _, cell := range row {
			if cell == nil {
				continue
			}
			assert.False(t, cell.Marked, "cells start unmarked")
			assert.NotEmpty(t, cell.ID)
			assert.False(t, ids[cell.ID], "cell ids must be unique")
			ids[cell.ID] = true
		}
	}
}
