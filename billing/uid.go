/*
uid.go - Random 6-digit public identifier generation

PURPOSE:
  Produces the resident-facing UID: a 6-digit numeric string drawn
  uniformly from 000000-999999, leading zeros preserved. Residents use it
  for public lookup instead of typing their full address.

COLLISION HANDLING:
  GenerateUnique retries against an existence predicate (backed by the
  identity store) until it finds a free value. The retry loop is bounded:
  at municipal scale the space is mostly empty and a collision streak long
  enough to hit the bound means the space is pathologically full, which is
  reported as ErrUIDSpaceExhausted instead of spinning forever.

RANDOMNESS:
  Uses crypto/rand so assigned UIDs are not guessable from earlier ones.

SEE ALSO:
  - reconcile.go: Calls GenerateUnique when a resident needs a fresh UID
*/
package billing

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

// maxUIDAttempts bounds the collision-retry loop in GenerateUnique. With
// fewer than ~900k assigned UIDs the probability of a thousand consecutive
// collisions is negligible; hitting the bound means the space is full.
const maxUIDAttempts = 1000

var uidSpace = big.NewInt(1_000_000)

// UIDGenerator draws random candidate UIDs and resolves collisions.
type UIDGenerator struct{}

// NewUIDGenerator returns a generator backed by crypto/rand.
func NewUIDGenerator() *UIDGenerator {
	return &UIDGenerator{}
}

// Generate returns one uniformly random 6-digit UID string.
func (g *UIDGenerator) Generate() string {
	n, err := rand.Int(rand.Reader, uidSpace)
	if err != nil {
		// crypto/rand only fails if the OS entropy source is broken.
		panic(fmt.Sprintf("uid generation: %v", err))
	}
	return fmt.Sprintf("%06d", n.Int64())
}

// GenerateUnique repeatedly draws candidates until exists reports false,
// or the attempt bound is hit. The returned UID was unassigned at the time
// the predicate ran; the store's uniqueness constraint remains the final
// arbiter under concurrent writers.
func (g *UIDGenerator) GenerateUnique(ctx context.Context, exists func(ctx context.Context, uid string) (bool, error)) (string, error) {
	for i := 0; i < maxUIDAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		uid := g.Generate()
		taken, err := exists(ctx, uid)
		if err != nil {
			return "", fmt.Errorf("uid existence check: %w", err)
		}
		if !taken {
			return uid, nil
		}
	}
	return "", fmt.Errorf("no free uid after %d attempts: %w", maxUIDAttempts, ErrUIDSpaceExhausted)
}
