package domain

import (
	"errors"
	"testing"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		key  string
		want Category
	}{
		{"음식", CategoryFood},
		{"food", CategoryFood},
		{"인테리어/공간", CategoryInterior},
		{"인테리어", CategoryInterior},
		{"제품 (잡화/화장품 등)", CategoryProduct},
		{"제품", CategoryProduct},
		{" Product ", CategoryProduct},
		{"의류 / 패션", CategoryApparel},
		{"의류/패션", CategoryApparel},
		{"FASHION", CategoryApparel},
		{"헤어 / 뷰티", CategoryBeauty},
		{"뷰티", CategoryBeauty},
		{"행사", CategoryEvent},
		{"event", CategoryEvent},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.key)
		if err != nil {
			t.Fatalf("ParseCategory(%q) returned error: %v", tt.key, err)
		}
		if got != tt.want {
			t.Fatalf("ParseCategory(%q) = %s, want %s", tt.key, got, tt.want)
		}
	}
}

func TestParseCategoryFallbacks(t *testing.T) {
	got, err := ParseCategory("")
	if err != nil || got != CategoryNone {
		t.Fatalf("expected CategoryNone without error for empty key, got %s err=%v", got, err)
	}

	got, err = ParseCategory("spaceship")
	if !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if got != CategoryNone {
		t.Fatalf("expected CategoryNone fallback, got %s", got)
	}
}

func TestCategoryProfile(t *testing.T) {
	p, ok := CategoryProduct.Profile()
	if !ok {
		t.Fatal("expected product to be a known category")
	}
	if p.Brightness != 1.05 || p.Contrast != 1.2 || p.Saturation != 1.25 {
		t.Fatalf("unexpected product profile: %+v", p)
	}

	beauty, _ := CategoryBeauty.Profile()
	if beauty.BlurRadius != 0.5 {
		t.Fatalf("expected beauty blur radius 0.5, got %v", beauty.BlurRadius)
	}

	neutral, ok := CategoryNone.Profile()
	if ok {
		t.Fatal("expected CategoryNone to be unknown")
	}
	if neutral != NeutralProfile {
		t.Fatalf("expected neutral profile, got %+v", neutral)
	}

	for _, c := range Categories() {
		if !c.Known() || c.Label() == "" {
			t.Fatalf("category %s is missing table data", c)
		}
		p, _ := c.Profile()
		if p.Brightness < 1 || p.Contrast < 1 || p.Saturation < 1 {
			t.Fatalf("category %s has multiplier below 1: %+v", c, p)
		}
	}
}
