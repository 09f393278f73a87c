package detection_test

import (
	"testing"

	"medwarehouse/internal/detection"
)

func TestClassifyDecisionTable(t *testing.T) {
	cases := []struct {
		name    string
		classes []string
		want    detection.Category
	}{
		{"person and product", []string{"person", "bottle"}, detection.CategoryPromotional},
		{"product order irrelevant", []string{"cell phone", "dog", "person"}, detection.CategoryPromotional},
		{"product only", []string{"bottle", "cup"}, detection.CategoryProductDisplay},
		{"laptop", []string{"laptop"}, detection.CategoryProductDisplay},
		{"person only", []string{"person", "person"}, detection.CategoryLifestyle},
		{"unrelated", []string{"dog", "chair"}, detection.CategoryOther},
		{"empty", nil, detection.CategoryOther},
		{"case sensitive", []string{"Person", "Bottle"}, detection.CategoryOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := detection.Classify(tc.classes); got != tc.want {
				t.Fatalf("Classify(%v) = %q, want %q", tc.classes, got, tc.want)
			}
		})
	}
}

func TestClassifyIsOrderIndependent(t *testing.T) {
	a := detection.Classify([]string{"handbag", "person", "vase"})
	b := detection.Classify([]string{"vase", "handbag", "person"})
	if a != b {
		t.Fatalf("expected same category, got %q and %q", a, b)
	}
}

func TestEveryProductClassIsRecognized(t *testing.T) {
	for _, name := range []string{"bottle", "cup", "vase", "handbag", "cell phone", "laptop"} {
		if !detection.IsProductClass(name) {
			t.Fatalf("expected %q to be a product class", name)
		}
	}
	if detection.IsProductClass("person") {
		t.Fatal("person must not be a product class")
	}
}
