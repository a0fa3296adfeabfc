package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// StringArray persists a []string as a JSON text column, the usual
// encode/decode shape for an array-valued gorm column.
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	}
	return nil
}

// JobRecord is the Job Registry's audit trail: a durable row per job,
// written alongside the in-memory pipeline.Job so job history survives a
// process restart even though the live Registry itself does not. Follows
// the familiar render-task-row shape (id/status/progress/timestamps/error
// columns) adapted for pipeline jobs specifically.
type JobRecord struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	JobID         string     `json:"job_id" gorm:"uniqueIndex;not null;size:64"`
	State         string     `json:"state" gorm:"default:'pending';size:20"`
	Progress      float64    `json:"progress" gorm:"default:0"`
	CurrentStep   string     `json:"current_step" gorm:"size:200"`
	Clips         StringArray `json:"clips" gorm:"type:text"`
	MusicPath     string     `json:"music_path" gorm:"size:500"`
	TargetSeconds int        `json:"target_seconds"`
	StoryStyle    string     `json:"story_style" gorm:"size:20"`
	StylePreset   string     `json:"style_preset" gorm:"size:20"`
	ResultCount   int        `json:"result_count"`
	ErrorMessage  string     `json:"error_message" gorm:"type:text"`
	StartedAt     *time.Time `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}
