// Package cycle implements bounded reachability checks over the targeting
// graph. The traversal only needs a read port, so it can run against a
// transaction-scoped store or an in-memory fake.
package cycle

import (
	"context"
	"fmt"
)

// DefaultMaxDepth bounds the breadth-first traversal. Chains of targets
// longer than this are not realistic, and the bound guarantees termination
// on any graph.
const DefaultMaxDepth = 10

// GraphReader lists the active outgoing targets of a listing.
type GraphReader interface {
	ActiveTargetsOf(ctx context.Context, listingID int64) ([]int64, error)
}

// HasPath reports whether a directed path of active edges exists from one
// listing to another, following at most maxDepth hops. maxDepth <= 0 falls
// back to DefaultMaxDepth.
func HasPath(ctx context.Context, g GraphReader, from, to int64, maxDepth int) (bool, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if from == to {
		return true, nil
	}

	visited := map[int64]bool{from: true}
	frontier := []int64{from}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []int64
		for _, id := range frontier {
			targets, err := g.ActiveTargetsOf(ctx, id)
			if err != nil {
				return false, fmt.Errorf("failed to read targets of %d: %w", id, err)
			}
			for _, t := range targets {
				if t == to {
					return true, nil
				}
				if !visited[t] {
					visited[t] = true
					next = append(next, t)
				}
			}
		}
		frontier = next
	}

	return false, nil
}
