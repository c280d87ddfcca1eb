package repository

import (
	"context"

	"github.com/pitstophq/pitstop/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, activity *domain.Activity) error {
	return db.WithContext(ctx).Create(activity).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]*domain.Activity, error) {
	var activities []*domain.Activity
	stmt := db.WithContext(ctx).Model(&domain.Activity{})
	if req.SystemModule != "" {
		stmt = stmt.Where("system_module = ?", req.SystemModule)
	}
	if req.ActivityType != "" {
		stmt = stmt.Where("activity_type = ?", req.ActivityType)
	}
	if req.From != nil {
		stmt = stmt.Where("activity_at >= ?", *req.From)
	}
	if req.To != nil {
		stmt = stmt.Where("activity_at <= ?", *req.To)
	}
	limit := req.Limit
	if limit <= 0 || limit > 250 {
		limit = 100
	}
	err := stmt.Order("activity_at desc, id desc").Limit(limit).Find(&activities).Error
	if err != nil {
		return nil, err
	}
	return activities, nil
}
