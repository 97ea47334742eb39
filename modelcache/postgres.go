package modelcache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"attendance-insights-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres stores artifacts in the model_artifacts table.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) (*Postgres, error) {
	if err := db.AutoMigrate(&models.ModelArtifact{}); err != nil {
		return nil, fmt.Errorf("migrate model_artifacts: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Save(ctx context.Context, a Artifact) error {
	row := models.ModelArtifact{
		Name:          a.Name,
		FormatVersion: a.FormatVersion,
		Columns:       strings.Join(a.Columns, ","),
		TrainedAt:     a.TrainedAt,
		Payload:       a.Payload,
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"format_version", "columns", "trained_at", "payload"}),
	}).Create(&row).Error
}

func (p *Postgres) Load(ctx context.Context, name string) (Artifact, error) {
	var row models.ModelArtifact
	err := p.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Artifact{}, ErrMissing
	}
	if err != nil {
		return Artifact{}, err
	}
	var columns []string
	if row.Columns != "" {
		columns = strings.Split(row.Columns, ",")
	}
	return Artifact{
		Name:          row.Name,
		FormatVersion: row.FormatVersion,
		Columns:       columns,
		TrainedAt:     row.TrainedAt,
		Payload:       row.Payload,
	}, nil
}
