package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/logger"
)

// AuditRepo is the optional durable sink behind the in-memory buffer.
type AuditRepo interface {
	Insert(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, callerID string, limit int) ([]*model.AuditLog, error)
}

// AuditService fans audit entries out to a JSONL file, an in-memory
// ring for quick queries, and (when configured) a database repo.
type AuditService struct {
	logChan chan *model.AuditLog
	logFile *os.File
	buffer  *auditBuffer
	repo    AuditRepo
}

func NewAuditService(logDir string, repo AuditRepo) (*AuditService, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}

	// 简单的按日轮转文件
	filename := filepath.Join(logDir, "audit-"+time.Now().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	svc := &AuditService{
		logChan: make(chan *model.AuditLog, 1000),
		logFile: f,
		buffer:  newAuditBuffer(1000),
		repo:    repo,
	}
	go svc.processLogs()
	return svc, nil
}

// Log never blocks the request path: when the channel is full the entry
// is dropped with a warning.
func (s *AuditService) Log(entry *model.AuditLog) {
	if s.buffer != nil {
		s.buffer.Add(entry)
	}
	select {
	case s.logChan <- entry:
	default:
		logger.Warn("audit log buffer full, dropping entry", "caller_id", entry.CallerID)
	}
}

func (s *AuditService) List(ctx context.Context, callerID string, limit int) ([]*model.AuditLog, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, callerID, limit)
		if err == nil {
			return records, nil
		}
	}
	if s.buffer == nil {
		return nil, nil
	}
	return s.buffer.List(callerID, limit), nil
}

func (s *AuditService) processLogs() {
	encoder := json.NewEncoder(s.logFile)
	for entry := range s.logChan {
		if s.repo != nil {
			if err := s.repo.Insert(context.Background(), entry); err != nil {
				logger.Error("audit db write failed", "error", err)
			}
		}
		if err := encoder.Encode(entry); err != nil {
			logger.Error("audit file write failed", "error", err)
		}
	}
}

func (s *AuditService) Close() {
	close(s.logChan)
	s.logFile.Close()
}

// auditBuffer is a fixed-size ring of the most recent entries.
type auditBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.AuditLog
	nextIndex int
}

func newAuditBuffer(maxSize int) *auditBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &auditBuffer{
		maxSize: maxSize,
		records: make([]*model.AuditLog, 0, maxSize),
	}
}

func (b *auditBuffer) Add(entry *model.AuditLog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, entry)
		return
	}
	b.records[b.nextIndex] = entry
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

func (b *auditBuffer) List(callerID string, limit int) []*model.AuditLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]*model.AuditLog, 0, limit)
	// newest first: walk backwards from the write cursor
	for i := 0; i < len(b.records) && len(out) < limit; i++ {
		idx := (b.nextIndex - 1 - i + len(b.records)*2) % len(b.records)
		entry := b.records[idx]
		if entry == nil {
			continue
		}
		if callerID != "" && entry.CallerID != callerID {
			continue
		}
		out = append(out, entry)
	}
	return out
}
