package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := Unbalanced("snap-1", 0.9)
	want := `unbalanced_composition: composition_snapshot "snap-1" (field average): shares sum to 0.9, want 1`
	if err.Error() != want {
		t.Fatalf("unexpected message\nwant: %s\ngot:  %s", want, err.Error())
	}
	if got := (&Error{Kind: KindConflict}).Error(); got != "conflict" {
		t.Fatalf("unexpected bare message %q", got)
	}
}

func TestErrorIsMatchesKindAndNarrowsOnTargetFields(t *testing.T) {
	err := fmt.Errorf("commit: %w", NotFound(EntityProfile, "p1"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected kind match through wrapping")
	}
	if !errors.Is(err, &Error{Kind: KindNotFound, ID: "p1"}) {
		t.Fatalf("expected id match")
	}
	if errors.Is(err, &Error{Kind: KindNotFound, ID: "p2"}) {
		t.Fatalf("different id must not match")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatalf("different kind must not match")
	}
	if errors.Is(OutOfRange("average", 2, 0, 1), &Error{Kind: KindOutOfRange, Field: "standard_deviation"}) {
		t.Fatalf("different field must not match")
	}
}

func TestKindOfAndRetryable(t *testing.T) {
	kind, ok := KindOf(fmt.Errorf("wrapped: %w", Conflict(EntitySnapshot, "s", "changed")))
	if !ok || kind != KindConflict {
		t.Fatalf("unexpected kind %q %v", kind, ok)
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("plain errors carry no kind")
	}
	if !IsRetryable(Conflict(EntitySnapshot, "s", "")) || IsRetryable(ErrUnbalancedComposition) {
		t.Fatalf("only conflicts are retryable")
	}
}

func TestStorageFailureKeepsBackendDetailOutOfMessage(t *testing.T) {
	cause := errors.New(`upsert weight_fractions f1: pq: duplicate key value violates unique constraint`)
	err := StorageFailure(EntityWeightFraction, "f1", cause)
	want := `storage: weight_fraction "f1": write not persisted`
	if err.Error() != want {
		t.Fatalf("unexpected message\nwant: %s\ngot:  %s", want, err.Error())
	}
	if !errors.Is(err, ErrStorage) || !errors.Is(err, cause) {
		t.Fatalf("expected kind match and reachable cause")
	}
	if IsRetryable(err) {
		t.Fatalf("storage failures are not conflicts")
	}
}
