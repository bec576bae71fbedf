package project

import "time"

// Project is the namespace owning one check-sheet's items
type Project struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is a lightweight representation for listing
type Summary struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	ItemCount  int       `json:"item_count"`
	HighestNum int       `json:"highest_number"`
	CreatedAt  time.Time `json:"created_at"`
}
