package model

import (
	"fmt"
	"sort"
)

// Category names a class of configuration data. Each category is posted to
// its own sub-endpoint: <base>/configuration/<category>.
type Category string

const (
	// CategoryStateModels holds equipment state model definitions.
	CategoryStateModels Category = "state_models"
	// CategoryAlarmClasses holds alarm class definitions.
	CategoryAlarmClasses Category = "alarm_classes"
	// CategoryMessageClasses holds message class definitions.
	CategoryMessageClasses Category = "message_classes"
)

// categoryPriority is the fixed drain order. Definitions that other
// categories reference come first.
var categoryPriority = map[Category]int{
	CategoryStateModels:    0,
	CategoryAlarmClasses:   1,
	CategoryMessageClasses: 2,
}

// Categories returns all categories in drain order.
func Categories() []Category {
	return []Category{CategoryStateModels, CategoryAlarmClasses, CategoryMessageClasses}
}

// ParseCategory converts a name into a Category.
func ParseCategory(name string) (Category, error) {
	c := Category(name)
	if _, ok := categoryPriority[c]; !ok {
		return "", fmt.Errorf("unknown configuration category %q", name)
	}
	return c, nil
}

// Valid reports whether c is one of the enumerated categories.
func (c Category) Valid() bool {
	_, ok := categoryPriority[c]
	return ok
}

// Priority returns the drain rank of c. Unknown categories sort last.
func (c Category) Priority() int {
	if p, ok := categoryPriority[c]; ok {
		return p
	}
	return len(categoryPriority)
}

// SortCategories orders cs in place by drain priority, ties by name.
func SortCategories(cs []Category) {
	sort.SliceStable(cs, func(i, j int) bool {
		pi, pj := cs[i].Priority(), cs[j].Priority()
		if pi != pj {
			return pi < pj
		}
		return cs[i] < cs[j]
	})
}
