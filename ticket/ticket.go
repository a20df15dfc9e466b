// Package ticket generates Tambola tickets: 3 rows by 9 columns, five
// occupied cells per row, each column drawing from its own sub-range of
// 1-90.
package ticket

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/tambolahq/tambola-server/models"
)

const (
	rows        = 3
	cols        = 9
	cellsPerRow = 5

	// maxUniqueAttempts bounds the re-draw loop that keeps numbers
	// pairwise distinct within one ticket. If the budget runs out the
	// collision is accepted, so uniqueness is best-effort, not
	// guaranteed.
	maxUniqueAttempts = 100
)

type colRange struct {
	min, max int
}

// Column c draws from the c-th range; the last range is 11 wide so the
// partition covers 1..90.
var colRanges = [cols]colRange{
	{1, 9}, {10, 19}, {20, 29}, {30, 39}, {40, 49},
	{50, 59}, {60, 69}, {70, 79}, {80, 90},
}

// Generate produces one freshly randomized ticket wrapped in a
// single-element TicketData. Every call is independent; it is safe to
// call concurrently.
//
// The contract is deliberately relaxed: only per-row cardinality and
// best-effort numeric uniqueness are enforced. There is no guarantee
// that every column is occupied somewhere on the ticket.
func Generate() models.TicketData {
	grid := make(models.Ticket, rows)
	for r := range grid {
		grid[r] = make([]*models.Cell, cols)
	}

	used := make(map[int]bool)

	for r := 0; r < rows; r++ {
		picked := make(map[int]bool)
		for len(picked) < cellsPerRow {
			picked[rand.Intn(cols)] = true
		}

		for c := range picked {
			rng := colRanges[c]
			num := rng.min + rand.Intn(rng.max-rng.min+1)
			for attempts := 0; used[num] && attempts < maxUniqueAttempts; attempts++ {
				num = rng.min + rand.Intn(rng.max-rng.min+1)
			}
			used[num] = true

			grid[r][c] = &models.Cell{
				Number: num,
				Marked: false,
				ID:     fmt.Sprintf("cell-%d-%d-%s", r, c, uuid.NewString()[:8]),
			}
		}
	}

	sortColumns(grid)

	return models.TicketData{grid}
}

// sortColumns reassigns each column's numbers so occupied cells read
// ascending top to bottom, the usual Housie presentation.
func sortColumns(grid models.Ticket) {
	for c := 0; c < cols; c++ {
		var nums []int
		var occupied []int
		for r := 0; r < rows; r++ {
			if grid[r][c] != nil {
				nums = append(nums, grid[r][c].Number)
				occupied = append(occupied, r)
			}
		}
		sort.Ints(nums)
		for i, r := range occupied {
			grid[r][c].Number = nums[i]
		}
	}
}
