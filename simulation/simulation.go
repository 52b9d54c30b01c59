// Package simulation fills fields with randomly placed entities.
package simulation

import (
	"context"
	"math/rand"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/quadfield/models"
	"github.com/aukilabs/quadfield/quadtree"
	"golang.org/x/sync/errgroup"
)

// RandomPositions returns count positions uniformly distributed over the
// region. Z is set to the region center.
func RandomPositions(region quadtree.Region, count int, rng *rand.Rand) []quadtree.Vector3f {
	min := region.Min()
	size := region.Size()
	z := region.Center().Z

	positions := make([]quadtree.Vector3f, count)
	for i := range positions {
		positions[i] = quadtree.Vector3f{
			X: min.X + rng.Float32()*size.X,
			Y: min.Y + rng.Float32()*size.Y,
			Z: z,
		}
	}
	return positions
}

// Populate spawns count entities with random positions and colors in the
// field. Entities are not owned by any participant.
func Populate(field *models.Field, count int, rng *rand.Rand) (quadtree.BulkResult, error) {
	if count <= 0 {
		return quadtree.BulkResult{}, nil
	}

	positions := RandomPositions(field.Region(), count, rng)

	colors := make([]models.Color, count)
	for i := range colors {
		colors[i] = models.RandomColor(rng)
	}

	_, res, err := field.Construct(0, positions, colors)
	if err != nil {
		return res, errors.New("populating field failed").
			WithTag("field_id", field.ID).
			WithTag("count", count).
			Wrap(err)
	}
	return res, nil
}

// SeedFields populates the given fields concurrently. Each field gets its
// own random source derived from seed and the field id so that a seed always
// produces the same positions.
func SeedFields(ctx context.Context, fields []*models.Field, count int, seed int64) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, f := range fields {
		f := f

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			rng := rand.New(rand.NewSource(seed + int64(f.ID)))
			res, err := Populate(f, count, rng)
			if err != nil {
				return err
			}

			logs.WithTag("field_id", f.ID).
				WithTag("inserted", res.Inserted).
				WithTag("overflowed", res.Overflowed).
				WithTag("ignored", res.Ignored).
				Info("field seeded")
			return nil
		})
	}

	return g.Wait()
}
