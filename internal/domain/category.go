package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrUnknownCategory = errors.New("unknown category")

// Category is the subject type of a source image. The zero value means no
// category was selected and grading uses the neutral fallback.
type Category int

const (
	CategoryNone Category = iota
	CategoryFood
	CategoryInterior
	CategoryProduct
	CategoryApparel
	CategoryBeauty
	CategoryEvent
)

// CategoryProfile is the grading look for one category. Multipliers of 1.0
// leave a channel untouched.
type CategoryProfile struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
	BlurRadius float64 `json:"blur_radius,omitempty"`
}

var NeutralProfile = CategoryProfile{Brightness: 1, Contrast: 1, Saturation: 1}

type categoryInfo struct {
	slug    string
	label   string
	profile CategoryProfile
	aliases []string
}

var categoryTable = map[Category]categoryInfo{
	CategoryFood: {
		slug:    "food",
		label:   "음식",
		profile: CategoryProfile{Brightness: 1.1, Contrast: 1.2, Saturation: 1.3},
	},
	CategoryInterior: {
		slug:    "interior",
		label:   "인테리어/공간",
		profile: CategoryProfile{Brightness: 1.15, Contrast: 1.05, Saturation: 1.05},
		aliases: []string{"인테리어", "공간", "space"},
	},
	CategoryProduct: {
		slug:    "product",
		label:   "제품 (잡화/화장품 등)",
		profile: CategoryProfile{Brightness: 1.05, Contrast: 1.2, Saturation: 1.25},
		aliases: []string{"제품"},
	},
	CategoryApparel: {
		slug:    "apparel",
		label:   "의류 / 패션",
		profile: CategoryProfile{Brightness: 1.1, Contrast: 1.1, Saturation: 1.15},
		aliases: []string{"의류", "패션", "fashion"},
	},
	CategoryBeauty: {
		slug:    "beauty",
		label:   "헤어 / 뷰티",
		profile: CategoryProfile{Brightness: 1.08, Contrast: 1.15, Saturation: 1.1, BlurRadius: 0.5},
		aliases: []string{"헤어", "뷰티", "hair"},
	},
	CategoryEvent: {
		slug:    "event",
		label:   "행사",
		profile: CategoryProfile{Brightness: 1.05, Contrast: 1.3, Saturation: 1.2},
	},
}

var categoryKeys = buildCategoryKeys()

func buildCategoryKeys() map[string]Category {
	keys := make(map[string]Category)
	for c, info := range categoryTable {
		keys[normalizeKey(info.slug)] = c
		keys[normalizeKey(info.label)] = c
		for _, alias := range info.aliases {
			keys[normalizeKey(alias)] = c
		}
	}
	return keys
}

// Categories returns every known category in declaration order.
func Categories() []Category {
	return []Category{
		CategoryFood,
		CategoryInterior,
		CategoryProduct,
		CategoryApparel,
		CategoryBeauty,
		CategoryEvent,
	}
}

// ParseCategory resolves a free-form key. An empty key is CategoryNone with no
// error; an unrecognized key is CategoryNone with ErrUnknownCategory so callers
// can log it and carry on with the fallback.
func ParseCategory(key string) (Category, error) {
	norm := normalizeKey(key)
	if norm == "" {
		return CategoryNone, nil
	}
	if c, ok := categoryKeys[norm]; ok {
		return c, nil
	}
	return CategoryNone, fmt.Errorf("%w: %q", ErrUnknownCategory, key)
}

func (c Category) Known() bool {
	_, ok := categoryTable[c]
	return ok
}

// Profile returns the grading profile and whether c is a known category.
// Unknown categories get NeutralProfile.
func (c Category) Profile() (CategoryProfile, bool) {
	info, ok := categoryTable[c]
	if !ok {
		return NeutralProfile, false
	}
	return info.profile, true
}

func (c Category) String() string {
	if info, ok := categoryTable[c]; ok {
		return info.slug
	}
	return "none"
}

func (c Category) Label() string {
	if info, ok := categoryTable[c]; ok {
		return info.label
	}
	return ""
}

func normalizeKey(in string) string {
	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
