package fixtures

import (
	"context"
	"io"

	ef "github.com/terraskye/eventflow"
)

// EmptyIterator returns an iterator that yields no items.
func EmptyIterator() *ef.Iterator[*ef.Envelope] {
	return ef.NewIteratorFunc(func(ctx context.Context) (*ef.Envelope, error) {
		return nil, io.EOF
	})
}

// FailingIterator returns an iterator that fails with the given error.
func FailingIterator(err error) *ef.Iterator[*ef.Envelope] {
	return ef.NewIteratorFunc(func(ctx context.Context) (*ef.Envelope, error) {
		return nil, err
	})
}

// SingleEnvelopeIterator returns an iterator that yields a single envelope.
func SingleEnvelopeIterator(env *ef.Envelope) *ef.Iterator[*ef.Envelope] {
	returned := false
	return ef.NewIteratorFunc(func(ctx context.Context) (*ef.Envelope, error) {
		if returned {
			return nil, io.EOF
		}
		returned = true
		return env, nil
	})
}

// EnvelopeIteratorFromEvents creates an iterator from events.
func EnvelopeIteratorFromEvents(events ...ef.Event) *ef.Iterator[*ef.Envelope] {
	envelopes := EnvelopesFromEvents(events...)
	return SliceIterator(envelopes)
}

// FailAfterNIterator returns an iterator that yields n items, then fails.
func FailAfterNIterator(envelopes []*ef.Envelope, n int, err error) *ef.Iterator[*ef.Envelope] {
	idx := 0
	return ef.NewIteratorFunc(func(ctx context.Context) (*ef.Envelope, error) {
		if idx >= n {
			return nil, err
		}
		if idx >= len(envelopes) {
			return nil, io.EOF
		}
		env := envelopes[idx]
		idx++
		return env, nil
	})
}

// ContextAwareIterator returns an iterator that respects context cancellation.
func ContextAwareIterator(envelopes []*ef.Envelope) *ef.Iterator[*ef.Envelope] {
	idx := 0
	return ef.NewIteratorFunc(func(ctx context.Context) (*ef.Envelope, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if idx >= len(envelopes) {
			return nil, io.EOF
		}
		env := envelopes[idx]
		idx++
		return env, nil
	})
}

// DelayedIterator wraps an iterator with a callback before each Next.
// Useful for testing timing-sensitive scenarios.
func DelayedIterator(envelopes []*ef.Envelope, beforeNext func()) *ef.Iterator[*ef.Envelope] {
	idx := 0
	return ef.NewIteratorFunc(func(ctx context.Context) (*ef.Envelope, error) {
		if beforeNext != nil {
			beforeNext()
		}

		if idx >= len(envelopes) {
			return nil, io.EOF
		}
		env := envelopes[idx]
		idx++
		return env, nil
	})
}
