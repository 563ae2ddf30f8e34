package query

import "go.einride.tech/aip/filtering"

// Ideas is the schema for the idea listing. Columns are qualified with the
// aliases used by the SQLite idea queries (i = ideas, u = users).
var Ideas = NewSchema(
	Field{Name: "id", Column: "i.id", Type: filtering.TypeInt},
	Field{Name: "title", Column: "i.title", Type: filtering.TypeString},
	Field{Name: "location", Column: "i.location", Type: filtering.TypeString},
	Field{Name: "category", Column: "i.category", Type: filtering.TypeString},
	Field{Name: "status", Column: "i.status", Type: filtering.TypeString},
	Field{Name: "username", Column: "u.username", Type: filtering.TypeString},
	Field{Name: "created_date", Column: "i.created_at", Type: filtering.TypeTimestamp},
	Field{Name: "expected_start_date", Column: "i.expected_start_at", Type: filtering.TypeTimestamp},
)
