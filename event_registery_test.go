package eventflow

import (
	"strconv"
	"sync"
	"testing"
)

type RegistryEvent struct {
	ID string
}

func (e *RegistryEvent) EventType() string   { return "RegistryEvent" }
func (e *RegistryEvent) AggregateID() string { return e.ID }

type OtherEvent struct {
	Name string
}

func (e *OtherEvent) EventType() string   { return "OtherEvent" }
func (e *OtherEvent) AggregateID() string { return e.Name }

// --- Tests ---

func TestTypeRegistryRegister(t *testing.T) {
	r := NewTypeRegistry()

	t.Run("register and create new instance", func(t *testing.T) {
		r.Register(func() Event { return &RegistryEvent{} })

		ev, err := r.New("RegistryEvent")
		if err != nil {
			t.Fatal(err)
		}

		if ev == nil {
			t.Fatal("expected non-nil event")
		}

		if _, ok := ev.(*RegistryEvent); !ok {
			t.Fatalf("expected *RegistryEvent, got %T", ev)
		}

		// Each call returns a new instance
		ev2, _ := r.New("RegistryEvent")
		if ev == ev2 {
			t.Fatal("factory returned same instance twice")
		}
	})

	t.Run("panic on duplicate registration", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic on duplicate registration")
			}
		}()
		r.Register(func() Event { return &RegistryEvent{} })
	})

	t.Run("panic on nil factory", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic on nil factory")
			}
		}()
		r.Register(nil)
	})
}

func TestTypeRegistryRegisterName(t *testing.T) {
	r := NewTypeRegistry()

	t.Run("register by custom name", func(t *testing.T) {
		r.RegisterName("Custom", func() Event { return &RegistryEvent{} })

		ev, err := r.New("Custom")
		if err != nil {
			t.Fatal(err)
		}

		if ev == nil {
			t.Fatal("expected non-nil event")
		}

		if _, ok := ev.(*RegistryEvent); !ok {
			t.Fatalf("expected *RegistryEvent, got %T", ev)
		}
	})

	t.Run("panic on nil factory", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic on nil factory")
			}
		}()
		r.RegisterName("NilFactory", nil)
	})
}

func TestTypeRegistryNewErrors(t *testing.T) {
	r := NewTypeRegistry()

	_, err := r.New("NonExistent")
	if err == nil {
		t.Fatal("expected error for unregistered event")
	}
}

func TestTypeRegistryKnown(t *testing.T) {
	r := NewTypeRegistry()
	r.Register(func() Event { return &OtherEvent{} })

	if !r.Known("OtherEvent") {
		t.Error("expected OtherEvent to be known")
	}
	if r.Known("Missing") {
		t.Error("expected Missing to be unknown")
	}
}

func TestTypeRegistryConcurrent(t *testing.T) {
	r := NewTypeRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.RegisterName("Event"+strconv.Itoa(i), func() Event { return &RegistryEvent{} })
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		if !r.Known("Event" + strconv.Itoa(i)) {
			t.Errorf("expected Event%d to be registered", i)
		}
	}
}
