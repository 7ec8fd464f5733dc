package service

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// requestCoalescer collapses concurrent fetches for the same key into one
// upstream call. Every waiter receives the same reading or the same error.
type requestCoalescer struct {
	group singleflight.Group
}

func newRequestCoalescer() *requestCoalescer {
	return &requestCoalescer{}
}

// Do runs fn once per key among concurrent callers. shared reports whether
// the result was delivered to more than one caller. A caller whose ctx ends
// first returns ctx.Err(); the flight keeps running for the others.
func (rc *requestCoalescer) Do(ctx context.Context, key string, fn func() (models.Reading, error)) (reading models.Reading, shared bool, err error) {
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		return fn()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.Reading{}, res.Shared, res.Err
		}
		return res.Val.(models.Reading), res.Shared, nil
	case <-ctx.Done():
		return models.Reading{}, false, ctx.Err()
	}
}
