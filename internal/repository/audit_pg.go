package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kalefund/fundgate/internal/model"
	"gorm.io/gorm"
)

type auditRow struct {
	ID           string `gorm:"primaryKey;size:64"`
	CallerID     string `gorm:"size:128;index"`
	Method       string `gorm:"size:8"`
	Path         string `gorm:"size:256"`
	IP           string `gorm:"size:64"`
	UserAgent    string `gorm:"size:256"`
	RequestBody  string `gorm:"type:text"`
	StatusCode   int
	ResponseBody string `gorm:"type:text"`
	LatencyMs    int64
	Context      string `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"index"`
}

func (auditRow) TableName() string { return "audit_logs" }

type PostgresAuditRepo struct {
	db *gorm.DB
}

func NewPostgresAuditRepo(db *gorm.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	ctxJSON, _ := json.Marshal(entry.Context)
	row := auditRow{
		ID:           entry.ID,
		CallerID:     entry.CallerID,
		Method:       entry.Method,
		Path:         entry.Path,
		IP:           entry.IP,
		UserAgent:    entry.UserAgent,
		RequestBody:  entry.RequestBody,
		StatusCode:   entry.StatusCode,
		ResponseBody: entry.ResponseBody,
		LatencyMs:    entry.LatencyMs,
		Context:      string(ctxJSON),
		CreatedAt:    entry.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *PostgresAuditRepo) List(ctx context.Context, callerID string, limit int) ([]*model.AuditLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if callerID != "" {
		q = q.Where("caller_id = ?", callerID)
	}
	var rows []auditRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.AuditLog, len(rows))
	for i := range rows {
		entry := &model.AuditLog{
			ID:           rows[i].ID,
			CallerID:     rows[i].CallerID,
			Method:       rows[i].Method,
			Path:         rows[i].Path,
			IP:           rows[i].IP,
			UserAgent:    rows[i].UserAgent,
			RequestBody:  rows[i].RequestBody,
			StatusCode:   rows[i].StatusCode,
			ResponseBody: rows[i].ResponseBody,
			LatencyMs:    rows[i].LatencyMs,
			CreatedAt:    rows[i].CreatedAt,
		}
		if rows[i].Context != "" {
			_ = json.Unmarshal([]byte(rows[i].Context), &entry.Context)
		}
		out[i] = entry
	}
	return out, nil
}
