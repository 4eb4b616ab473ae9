// internal/catalog/seed.go
package catalog

import "github.com/google/uuid"

const seedUnits = 10

// SeedBooks returns the fixed init set with fresh ids.
func SeedBooks() []*Book {
	return []*Book{
		{
			ID:     uuid.New(),
			Name:   "The Winds of Winter",
			Author: "Martin, George Raymond Richard",
			Year:   2050,
			ISBN:   "978-0553801477",
			Amount: seedUnits,
		},
		{
			ID:     uuid.New(),
			Name:   "A Dream of Spring",
			Author: "Sanderson, Brandon",
			Year:   2051,
			ISBN:   "978-0553801478",
			Amount: seedUnits,
		},
		{
			ID:     uuid.New(),
			Name:   "A Dream of Summer",
			Author: "Sanderson, Brandon",
			Year:   2052,
			ISBN:   "978-0553801479",
			Amount: seedUnits,
		},
	}
}
