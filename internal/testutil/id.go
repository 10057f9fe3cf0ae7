package testutil

// FixedIDGenerator returns the same session id every time, so traces of
// the same scenario are byte-identical.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator for id. If id is empty,
// Generate returns "test-session-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-session-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id. Implements session.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
