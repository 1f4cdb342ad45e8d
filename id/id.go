// Package id issues position identifiers.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator hands out ULIDs that sort by creation time. IDs created within
// the same millisecond stay strictly increasing.
type Generator struct {
	mu    sync.Mutex
	mono  io.Reader
	clock func() time.Time
}

// NewGenerator seeds a monotonic entropy source from crypto/rand, falling
// back to the clock if that read fails.
func NewGenerator(clock func() time.Time) *Generator {
	if clock == nil {
		clock = time.Now
	}
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = clock().UnixNano()
	}
	return &Generator{
		mono:  ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
		clock: clock,
	}
}

func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.clock().UTC()), g.mono)
	if err != nil {
		// ulid.New fails only on a timestamp past year 10889 or after 2^80
		// ids in one millisecond. A clock stepping backwards is fine.
		panic(err)
	}
	return id.String()
}

// Time recovers the creation time encoded in an id.
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}

var std = NewGenerator(nil)

// New returns an id from the package-level generator.
func New() string {
	return std.New()
}
