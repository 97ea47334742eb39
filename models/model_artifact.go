package models

import "time"

// ModelArtifact is a cached trained model, keyed by model name.
type ModelArtifact struct {
	Name          string    `gorm:"column:name;primaryKey" json:"name"`
	FormatVersion int       `gorm:"column:format_version" json:"format_version"`
	Columns       string    `gorm:"column:columns" json:"columns"`
	TrainedAt     time.Time `gorm:"column:trained_at" json:"trained_at"`
	Payload       []byte    `gorm:"column:payload" json:"-"`
}

func (ModelArtifact) TableName() string { return "model_artifacts" }
