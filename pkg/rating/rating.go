// Package rating holds the bipartite rating graph: users rate objects, and
// each observation is a positional (object, user, weight) triple.
package rating

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange is returned when a rating references an object or user
// outside the dense index range the caller sized its vectors for.
var ErrIndexOutOfRange = errors.New("rating index out of range")

// Rating is a single score a user gave an object.
type Rating struct {
	Object int     `json:"object" yaml:"object"`
	User   int     `json:"user" yaml:"user"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Validate checks that every rating indexes into [0, objects) x [0, users).
func Validate(ratings []Rating, objects, users int) error {
	for i, r := range ratings {
		if r.Object < 0 || r.Object >= objects {
			return fmt.Errorf("rating %d: object %d not in [0, %d): %w", i, r.Object, objects, ErrIndexOutOfRange)
		}
		if r.User < 0 || r.User >= users {
			return fmt.Errorf("rating %d: user %d not in [0, %d): %w", i, r.User, users, ErrIndexOutOfRange)
		}
	}
	return nil
}

// Links counts the ratings authored by each of the users.
// The result must be recomputed whenever the rating set changes.
func Links(users int, ratings []Rating) ([]int, error) {
	links := make([]int, users)
	for i, r := range ratings {
		if r.User < 0 || r.User >= users {
			return nil, fmt.Errorf("rating %d: user %d not in [0, %d): %w", i, r.User, users, ErrIndexOutOfRange)
		}
		links[r.User]++
	}
	return links, nil
}
