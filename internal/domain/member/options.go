package member

// ListOptions provides filtering options for listing members.
type ListOptions struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}
