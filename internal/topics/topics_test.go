package topics

import "testing"

func TestByID(t *testing.T) {
	topic, ok := ByID("technology")
	if !ok {
		t.Fatalf("expected technology topic to exist")
	}
	if topic.RatePerMinute <= 0 {
		t.Fatalf("expected positive rate, got %v", topic.RatePerMinute)
	}
	if _, ok := ByID("nope"); ok {
		t.Fatalf("did not expect unknown topic to resolve")
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	a := All()
	if len(a) == 0 {
		t.Fatalf("expected non-empty catalog")
	}
	a[0].Name = "mutated"
	b := All()
	if b[0].Name == "mutated" {
		t.Fatalf("catalog must be immutable")
	}
}

func TestProjectedValue(t *testing.T) {
	topic := Topic{EstimatedMinutes: 8, RatePerMinute: 0.5}
	if got := topic.ProjectedValue(); got != 4.0 {
		t.Fatalf("expected projected value 4.0, got %v", got)
	}
}
