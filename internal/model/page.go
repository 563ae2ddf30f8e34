package model

// PageMetadata describes where a page sits in the full result set.
// Number is zero-based.
type PageMetadata struct {
	Size          int   `json:"size"`
	Number        int   `json:"number"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// Page is one page of a listing:
//
//	{"content":[...],"page":{"size":10,"number":0,"totalElements":2,"totalPages":1}}
//
// GENERICS:
// Page[T] works for any element type. The list endpoint returns
// Page[IdeaSummary]; nothing here is specific to ideas.
type Page[T any] struct {
	Content []T          `json:"content"`
	Page    PageMetadata `json:"page"`
}

// NewPage builds a page and derives TotalPages from total and size.
// A nil content slice is replaced with an empty one so the JSON is
// "content":[] rather than "content":null.
func NewPage[T any](content []T, number, size int, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	totalPages := 0
	if size > 0 {
		totalPages = int((total + int64(size) - 1) / int64(size))
	}
	return Page[T]{
		Content: content,
		Page: PageMetadata{
			Size:          size,
			Number:        number,
			TotalElements: total,
			TotalPages:    totalPages,
		},
	}
}
