package testutil

// FixedJobID names every materialization job the same way, so stored
// series state is byte-identical across runs.
//
// Unlike engine.FixedGenerator, which hands out a list of ids in order,
// FixedJobID never runs out. It implements engine.JobIDGenerator.
type FixedJobID struct {
	id string
}

// NewFixedJobID creates the generator. An empty id becomes "job-test".
func NewFixedJobID(id string) *FixedJobID {
	if id == "" {
		id = "job-test"
	}
	return &FixedJobID{id: id}
}

// Generate returns the fixed id.
func (g *FixedJobID) Generate() string {
	return g.id
}
