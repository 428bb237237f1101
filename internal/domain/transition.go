package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Transition is an append-only audit row. Seq is strictly increasing per
// instance and is assigned by the store on append.
type Transition struct {
	ID              uuid.UUID      `gorm:"type:uuid;primary_key;"`
	InstanceID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_transition_instance_seq"`
	Seq             int            `gorm:"not null;uniqueIndex:idx_transition_instance_seq"`
	StepExecutionID *uuid.UUID     `gorm:"type:uuid;index"`
	From            string         `gorm:"type:varchar(20)"`
	To              string         `gorm:"type:varchar(20);not null"`
	ActorID         *uuid.UUID     `gorm:"type:uuid"`
	Decision        *Decision      `gorm:"type:varchar(20)"`
	Notes           *string        `gorm:"type:text"`
	Metadata        datatypes.JSON `gorm:"type:jsonb"`
	At              time.Time      `gorm:"not null"`
}

func (Transition) TableName() string {
	return "workflow_transitions"
}
