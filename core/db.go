package core

import (
	"fmt"
	"strings"
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// ParseOrderings parses a comma-separated ordering expression such as "title,-createdAt".
// A leading "-" means descending.
func ParseOrderings(expr string) []DBOrdering {
	var orderings []DBOrdering
	for _, field := range strings.Split(expr, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		orderings = append(orderings, DBOrdering{Field: field, Ascending: !descending})
	}
	return orderings
}

// CheckOrderings returns a ValidationError on the "ordering" field if any ordering is not allowed.
func CheckOrderings(orderings []DBOrdering, allowed ...string) error {
	for _, ord := range orderings {
		ok := false
		for _, a := range allowed {
			if ord.Field == a {
				ok = true
				break
			}
		}
		if !ok {
			return NewValidationError(nil, FieldError{
				Field: "ordering",
				Error: fmt.Sprintf("cannot order by %q", ord.Field),
			})
		}
	}
	return nil
}
