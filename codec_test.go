package eventflow

import (
	"testing"

	"github.com/google/uuid"
)

type paymentReceived struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
}

func (e paymentReceived) AggregateID() string { return e.OrderID }
func (e paymentReceived) EventType() string   { return "PaymentReceived" }

type paymentRefunded struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
}

func (e *paymentRefunded) AggregateID() string { return e.OrderID }
func (e *paymentRefunded) EventType() string   { return "PaymentRefunded" }

func paymentCodec() *Codec {
	registry := NewTypeRegistry()
	registry.Register(func() Event { return paymentReceived{} })
	registry.Register(func() Event { return &paymentRefunded{} })
	return NewCodec(registry)
}

func TestCodecRoundTrip(t *testing.T) {
	codec := paymentCodec()

	env := NewEnvelope(paymentReceived{OrderID: "order-1", Amount: 1299},
		WithVersion(3),
		WithMetadata(map[string]any{"tenant": "acme"}),
	)
	env.GlobalVersion = 17
	env.CausationID = uuid.NewString()

	data, err := codec.Encode(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decoded.EventID != env.EventID {
		t.Errorf("EventID = %s, want %s", decoded.EventID, env.EventID)
	}
	if decoded.StreamID != "order-1" {
		t.Errorf("StreamID = %q, want order-1", decoded.StreamID)
	}
	if decoded.Version != 3 || decoded.GlobalVersion != 17 {
		t.Errorf("versions = %d/%d, want 3/17", decoded.Version, decoded.GlobalVersion)
	}
	if decoded.CorrelationID != env.CorrelationID || decoded.CausationID != env.CausationID {
		t.Error("correlation chain not preserved")
	}
	if !decoded.OccurredAt.Equal(env.OccurredAt) {
		t.Errorf("OccurredAt = %v, want %v", decoded.OccurredAt, env.OccurredAt)
	}
	if decoded.Metadata["tenant"] != "acme" {
		t.Errorf("Metadata = %v", decoded.Metadata)
	}

	payment, ok := decoded.Event.(paymentReceived)
	if !ok {
		t.Fatalf("payload type = %T, want paymentReceived", decoded.Event)
	}
	if payment.Amount != 1299 {
		t.Errorf("Amount = %d, want 1299", payment.Amount)
	}
}

func TestCodecPointerFactory(t *testing.T) {
	codec := paymentCodec()

	data, err := codec.Encode(NewEnvelope(&paymentRefunded{OrderID: "order-2", Amount: 500}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	refund, ok := decoded.Event.(*paymentRefunded)
	if !ok {
		t.Fatalf("payload type = %T, want *paymentRefunded", decoded.Event)
	}
	if refund.OrderID != "order-2" || refund.Amount != 500 {
		t.Errorf("payload = %+v", refund)
	}
}

func TestCodecDecodeUnknownType(t *testing.T) {
	codec := paymentCodec()

	data, err := codec.Encode(NewEnvelope(paymentReceived{OrderID: "order-1"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A codec whose registry never saw the type cannot decode it, and the
	// failure is not worth retrying.
	empty := NewCodec(NewTypeRegistry())
	_, err = empty.Decode(data)
	if err == nil {
		t.Fatal("expected an error for an unregistered event type")
	}
	if Classify(err) != Permanent {
		t.Errorf("Classify(%v) = %v, want %v", err, Classify(err), Permanent)
	}
}

func TestCodecDecodeMalformedDocument(t *testing.T) {
	codec := paymentCodec()

	if _, err := codec.Decode([]byte("not json")); err == nil {
		t.Error("expected an error for a malformed document")
	}
}

func TestCodecDecodeMalformedPayload(t *testing.T) {
	codec := paymentCodec()

	doc := []byte(`{"event_id":"` + uuid.NewString() + `","stream_id":"order-1",` +
		`"event_type":"PaymentReceived","version":1,"payload":{"amount":"a lot"}}`)
	if _, err := codec.Decode(doc); err == nil {
		t.Error("expected an error for a mistyped payload field")
	}
}

func TestCodecRegistryAccessor(t *testing.T) {
	registry := NewTypeRegistry()
	if NewCodec(registry).Registry() != registry {
		t.Error("Registry() must return the registry the codec was built with")
	}
}

var errCodecBench error

func BenchmarkCodecRoundTrip(b *testing.B) {
	codec := paymentCodec()
	env := NewEnvelope(paymentReceived{OrderID: "order-1", Amount: 1299}, WithVersion(1))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := codec.Encode(env)
		if err != nil {
			b.Fatal(err)
		}
		_, errCodecBench = codec.Decode(data)
	}
}
