package activity

// ListOptions provides filtering options for listing activity.
type ListOptions struct {
	ProjectKey string
	ItemID     *string
	Type       *Type
	Limit      int
	Offset     int
}
