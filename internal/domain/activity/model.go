package activity

import "time"

// Type represents the kind of registry event
type Type string

const (
	TypeItemCreated      Type = "item_created"
	TypeItemUpdated      Type = "item_updated"
	TypeItemDeleted      Type = "item_deleted"
	TypeItemsWiped       Type = "items_wiped"
	TypeItemsShifted     Type = "items_shifted"
	TypeItemsRenumbered  Type = "items_renumbered"
	TypeItemsImported    Type = "items_imported"
	TypeImageAttached    Type = "image_attached"
	TypeImageRemoved     Type = "image_removed"
	TypeAttachmentsSwept Type = "attachments_swept"
	TypeShiftRepaired    Type = "shift_repaired"
	TypeProjectDropped   Type = "project_dropped"
)

// Entry represents an event in the activity log
type Entry struct {
	ID         int64     `json:"id"`
	ProjectKey string    `json:"project_key"`
	ItemID     *string   `json:"item_id,omitempty"`
	Type       Type      `json:"type"`
	Summary    string    `json:"summary"`
	Details    string    `json:"details,omitempty"` // JSON string
	CreatedAt  time.Time `json:"created_at"`
}
