package models

import "fmt"

type Category string

const (
	Yearly    Category = "Yearly"
	Quarterly Category = "Quarterly"
	Monthly   Category = "Monthly"
	Weekly    Category = "Weekly"
	Daily     Category = "Daily"
	Hourly    Category = "Hourly"
)

// Role decides how a category takes part in the summary.
type Role int

const (
	// Major categories are reported on their own, weighted by their count.
	Major Role = iota
	// Minor categories are pooled into the Others bucket.
	Minor
)

type CategoryRule struct {
	Category  Category
	Role      Role
	Frequency int
	Horizon   int
}

// Categories is the closed category set in declared order.
var Categories = []CategoryRule{
	{Category: Yearly, Role: Major, Frequency: 1, Horizon: 6},
	{Category: Quarterly, Role: Major, Frequency: 4, Horizon: 8},
	{Category: Monthly, Role: Major, Frequency: 12, Horizon: 18},
	{Category: Weekly, Role: Minor, Frequency: 1, Horizon: 13},
	{Category: Daily, Role: Minor, Frequency: 1, Horizon: 14},
	{Category: Hourly, Role: Minor, Frequency: 24, Horizon: 48},
}

// Summary bucket labels that are not categories.
const (
	BucketOthers  = "Others"
	BucketAverage = "Average"
)

func Rule(c Category) (CategoryRule, bool) {
	for _, r := range Categories {
		if r.Category == c {
			return r, true
		}
	}
	return CategoryRule{}, false
}

func ParseCategory(s string) (Category, error) {
	if _, ok := Rule(Category(s)); ok {
		return Category(s), nil
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrSchemaMismatch, s)
}

func CategoriesWithRole(role Role) []Category {
	var out []Category
	for _, r := range Categories {
		if r.Role == role {
			out = append(out, r.Category)
		}
	}
	return out
}
