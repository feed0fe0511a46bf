package repository

import (
	"github.com/FelixHaller/RoomCanvas/app/models"
	"gorm.io/gorm"
)

// historyRepository implements the HistoryRepository interface
type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new processing history repository instance
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

// Create appends a history entry. Entries are never updated or deleted.
func (r *historyRepository) Create(entry *models.ProcessingHistoryEntry) error {
	return r.db.Create(entry).Error
}

// GetByUserID returns a user's history entries, newest first
func (r *historyRepository) GetByUserID(userID uint, offset, limit int) ([]models.ProcessingHistoryEntry, error) {
	var entries []models.ProcessingHistoryEntry
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&entries).Error
	return entries, err
}

// CountByUserID returns the number of history entries for a user
func (r *historyRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.ProcessingHistoryEntry{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
