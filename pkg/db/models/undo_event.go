package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UndoEvent records a reversed action group. UndoneSeq is the highest unit seq of
// that group; only units with a greater seq remain undoable in the same scope.
type UndoEvent struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ActionGroupID uuid.UUID `gorm:"column:action_group_id;type:uuid;not null"`
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	Units         int       `gorm:"column:units;not null"`
	UndoneSeq     int64     `gorm:"column:undone_seq;not null;default:0;index"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;index"`
}

func (e *UndoEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
