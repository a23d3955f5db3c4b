package eventflow

// StreamState expresses the concurrency requirement of an append.
type StreamState interface {
	streamState()
}

// Any means append without checking the current revision.
type Any struct{}

func (Any) streamState() {}

// NoStream means the stream should not exist yet.
type NoStream struct{}

func (NoStream) streamState() {}

// StreamExists means the stream must already exist.
type StreamExists struct{}

func (StreamExists) streamState() {}

// Revision matches exactly a numeric revision: the stream must currently be
// at this version for the append to succeed.
type Revision uint64

func (Revision) streamState() {}
