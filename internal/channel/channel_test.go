package channel

import (
	"context"
	"errors"
	"testing"
)

type fakeChannel struct {
	name     string
	modality Modality
}

func (f *fakeChannel) Name() string       { return f.name }
func (f *fakeChannel) Modality() Modality { return f.modality }

func (f *fakeChannel) Deliver(context.Context, string, string) DeliveryOutcome {
	return DeliveryOutcome{Delivered: true}
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeChannel{name: "hubtel", modality: ModalitySMS})

	ch, err := r.Resolve("hubtel")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if ch.Name() != "hubtel" {
		t.Fatalf("resolved %q", ch.Name())
	}

	if _, err := r.Resolve("unknown"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestRegistryFirstRegisteredBecomesActive(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeChannel{name: "hubtel", modality: ModalitySMS})
	r.Register(&fakeChannel{name: "mnotify", modality: ModalitySMS})

	ch, err := r.Active(ModalitySMS)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if ch.Name() != "hubtel" {
		t.Fatalf("active = %q, want first-registered hubtel", ch.Name())
	}
}

func TestRegistryActiveUnconfiguredModality(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeChannel{name: "hubtel", modality: ModalitySMS})

	if _, err := r.Active(ModalityEmail); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestRegistrySetActiveSwitchesSubsequentLookups(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeChannel{name: "hubtel", modality: ModalitySMS})
	r.Register(&fakeChannel{name: "twilio", modality: ModalitySMS})

	// A channel resolved before the switch is unaffected by it.
	before, err := r.Active(ModalitySMS)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}

	if err := r.SetActive(ModalitySMS, "twilio"); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	if before.Name() != "hubtel" {
		t.Fatalf("previously resolved channel changed: %q", before.Name())
	}

	after, err := r.Active(ModalitySMS)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if after.Name() != "twilio" {
		t.Fatalf("active after switch = %q, want twilio", after.Name())
	}
}

func TestRegistrySetActiveRejectsUnknownAndMismatched(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeChannel{name: "hubtel", modality: ModalitySMS})
	r.Register(&fakeChannel{name: "smtp", modality: ModalityEmail})

	if err := r.SetActive(ModalitySMS, "unknown"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}

	// smtp exists but serves email; it cannot become the sms selection.
	if err := r.SetActive(ModalitySMS, "smtp"); err == nil {
		t.Fatal("SetActive accepted a modality mismatch")
	}

	ch, err := r.Active(ModalitySMS)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if ch.Name() != "hubtel" {
		t.Fatalf("failed SetActive changed the selection to %q", ch.Name())
	}
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeChannel{name: "twilio", modality: ModalitySMS})
	r.Register(&fakeChannel{name: "hubtel", modality: ModalitySMS})
	r.Register(&fakeChannel{name: "smtp", modality: ModalityEmail})

	names, active := r.Snapshot()

	if len(names) != 3 || names[0] != "hubtel" || names[1] != "smtp" || names[2] != "twilio" {
		t.Fatalf("names = %v", names)
	}
	if active[ModalitySMS] != "twilio" || active[ModalityEmail] != "smtp" {
		t.Fatalf("active = %v", active)
	}
}
