package domain

import (
	"strings"

	"github.com/google/uuid"
)

// KindAssociation scopes identifiers generated for associations.
const KindAssociation = "association"

const tokenLength = 12

// IDGenerator issues identifiers that are unique within one document session.
// Seeds are honoured when free so reloading a document reproduces its ids.
// The generator is owned by a single writer and is not safe for concurrent use.
type IDGenerator struct {
	inUse map[string]struct{}
	token func() string
}

// IDGeneratorOption customises an IDGenerator.
type IDGeneratorOption func(*IDGenerator)

// WithTokenSource replaces the random token source. Tokens may repeat; the
// generator retries until it finds a free id.
func WithTokenSource(fn func() string) IDGeneratorOption {
	return func(g *IDGenerator) {
		if fn != nil {
			g.token = fn
		}
	}
}

// NewIDGenerator constructs a generator backed by random UUIDs.
func NewIDGenerator(opts ...IDGeneratorOption) *IDGenerator {
	g := &IDGenerator{
		inUse: make(map[string]struct{}),
		token: uuidToken,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func uuidToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:tokenLength]
}

// Generate returns seed unchanged when it is non-empty and unused. Otherwise it
// synthesizes a new id of the form "<kind>:<token>". The returned id is marked
// in use until Release is called.
func (g *IDGenerator) Generate(seed, kind string) string {
	if seed != "" && g.Reserve(seed) {
		return seed
	}
	if kind == "" {
		kind = "id"
	}
	for {
		id := kind + ":" + g.token()
		if g.Reserve(id) {
			return id
		}
	}
}

// Reserve claims id. It reports false when id is empty or already taken.
func (g *IDGenerator) Reserve(id string) bool {
	if id == "" {
		return false
	}
	if _, taken := g.inUse[id]; taken {
		return false
	}
	g.inUse[id] = struct{}{}
	return true
}

// Release returns id to the pool. Releasing an unknown id is a no-op.
func (g *IDGenerator) Release(id string) {
	delete(g.inUse, id)
}

// InUse reports whether id is currently assigned.
func (g *IDGenerator) InUse(id string) bool {
	_, ok := g.inUse[id]
	return ok
}

// Len reports how many ids are currently assigned.
func (g *IDGenerator) Len() int { return len(g.inUse) }
