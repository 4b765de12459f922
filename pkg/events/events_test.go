package events

import "testing"

type pinged struct{ n int }

func (pinged) EventName() string { return "pinged" }

type other struct{}

func (other) EventName() string { return "other" }

func TestBusEmitOrder(t *testing.T) {
	t.Parallel()

	b := NewBus()
	var got []int
	b.On("pinged", func(e Event) { got = append(got, 1) })
	b.On("pinged", func(e Event) { got = append(got, 2) })
	b.On("other", func(e Event) { got = append(got, 3) })

	b.Emit(pinged{})

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("listeners ran as %v, want [1 2]", got)
	}
}

func TestSubscribeTyped(t *testing.T) {
	t.Parallel()

	b := NewBus()
	var sum int
	Subscribe(b, func(e pinged) { sum += e.n })

	b.Emit(pinged{n: 2})
	b.Emit(other{})
	b.Emit(pinged{n: 3})

	if sum != 5 {
		t.Fatalf("sum = %d, want 5", sum)
	}
	if b.Count("pinged") != 1 {
		t.Fatalf("Count(pinged) = %d, want 1", b.Count("pinged"))
	}
}

func TestNilBus(t *testing.T) {
	t.Parallel()

	var b *Bus
	b.On("x", func(Event) {})
	b.Emit(pinged{})
	if b.Count("pinged") != 0 {
		t.Fatal("nil bus should report no listeners")
	}
}
