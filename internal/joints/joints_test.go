package joints

import (
	"errors"
	"testing"
)

func TestCount(t *testing.T) {
	tests := []struct {
		variant string
		want    int
		wantErr bool
	}{
		{"MMPose", 17, false},
		{"MMPoseWholebody", 23, false},
		{"MMPoseHalpe", 26, false},
		{"OpenPose", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			got, err := Count(tt.variant)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownVariant) {
					t.Fatalf("Expected ErrUnknownVariant, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Count(%q) = %d, want %d", tt.variant, got, tt.want)
			}
		})
	}
}

func TestLabelsOrder(t *testing.T) {
	labels, err := Labels("MMPoseHalpe")
	if err != nil {
		t.Fatal(err)
	}
	// Halpe keeps the COCO-17 prefix and then appends head/neck/pelvis before the feet
	if labels[0] != "Nose" || labels[16] != "Right Ankle" {
		t.Errorf("COCO prefix broken: %q ... %q", labels[0], labels[16])
	}
	if labels[17] != "Head" || labels[19] != "Pelvis" || labels[25] != "Right Heel" {
		t.Errorf("Halpe suffix out of order: %v", labels[17:])
	}
}

func TestLabelsAreCopies(t *testing.T) {
	labels, _ := Labels("MMPose")
	labels[0] = "Mutated"

	again, _ := Labels("MMPose")
	if again[0] != "Nose" {
		t.Fatalf("Dictionary was mutated through a returned slice: %q", again[0])
	}

	// Wholebody shares the COCO prefix; it must not have been affected either
	whole, _ := Labels("MMPoseWholebody")
	if whole[0] != "Nose" {
		t.Fatalf("Shared prefix was mutated: %q", whole[0])
	}
}

func TestIndex(t *testing.T) {
	if got := Index("MMPoseWholebody", "Left Heel"); got != 19 {
		t.Errorf("Index(Left Heel) = %d, want 19", got)
	}
	if got := Index("MMPose", "Left Heel"); got != -1 {
		t.Errorf("Expected -1 for a label outside the variant, got %d", got)
	}
}

func TestVariantsSorted(t *testing.T) {
	got := Variants()
	want := []string{"MMPose", "MMPoseHalpe", "MMPoseWholebody"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Variants()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
