package item

// ListOptions pages through a project's items in (number, id) order.
// The zero value lists everything.
type ListOptions struct {
	// AfterNumber and AfterID form the keyset cursor of the previous page.
	AfterNumber int
	AfterID     string
	Limit       int
}

// UpsertRequest describes a create (ID empty) or update.
type UpsertRequest struct {
	ID     string
	Number int
	Fields Fields
	Images []Upload
}
