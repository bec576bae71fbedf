package item

import "time"

const (
	// ParkOffset is added to numbers while a shift is in flight. Stored numbers
	// at or above it belong to a shift that has not settled yet.
	ParkOffset = 1_000_000
	// MaxNumber is the largest number an item may hold at rest.
	MaxNumber = ParkOffset - 1
)

// Item is one numbered check-sheet entry
type Item struct {
	ID         string    `json:"id"`
	ProjectKey string    `json:"project_key"`
	Number     int       `json:"number"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Detail     string    `json:"detail"`
	Images     []string  `json:"images"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Fields holds the text columns of an item
type Fields struct {
	Title   string `json:"title" validate:"required,max=1000"`
	Content string `json:"content" validate:"required,max=10000"`
	Detail  string `json:"detail" validate:"required,max=10000"`
}

// Upload is a raw image attached to a save request
type Upload struct {
	Name string
	Data []byte
}

// Range is an inclusive number span; zero when the project is empty
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// RenumberResult reports what a compaction run did
type RenumberResult struct {
	Changed bool  `json:"changed"`
	Before  Range `json:"before"`
	After   Range `json:"after"`
	Count   int   `json:"count"`
}

// SweepResult reports attachment files released by a sweep
type SweepResult struct {
	Released []string `json:"released"`
	Kept     int      `json:"kept"`
}

func (it *Item) fields() Fields {
	return Fields{Title: it.Title, Content: it.Content, Detail: it.Detail}
}
