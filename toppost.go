package marley

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// DefaultPopularLimit is the length of the popular articles list.
const DefaultPopularLimit = 15

// TopPost counts the views of an article.
type TopPost struct {
	ID     uint   `gorm:"primaryKey"`
	PostID string `gorm:"index;not null"`
	Count  int    `gorm:"index;default:0"`
}

// TopPostStore keeps the popularity counters.
type TopPostStore struct {
	db *gorm.DB
}

func NewTopPostStore(db *gorm.DB) *TopPostStore {
	return &TopPostStore{db: db}
}

// Hit records one view of postID.
func (s *TopPostStore) Hit(ctx context.Context, postID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tp TopPost
		if err := tx.Where(TopPost{PostID: postID}).FirstOrCreate(&tp).Error; err != nil {
			return errors.Wrapf(err, "find counter %s", postID)
		}
		err := tx.Model(&tp).UpdateColumn("count", gorm.Expr("count + ?", 1)).Error
		return errors.Wrapf(err, "increment counter %s", postID)
	})
}

// Top returns the limit most viewed counters.
func (s *TopPostStore) Top(ctx context.Context, limit int) ([]TopPost, error) {
	if limit <= 0 {
		limit = DefaultPopularLimit
	}
	var tps []TopPost
	err := s.db.WithContext(ctx).Order("count DESC, id ASC").Limit(limit).Find(&tps).Error
	return tps, errors.Wrap(err, "top posts")
}

// Count returns the views of postID.
func (s *TopPostStore) Count(ctx context.Context, postID string) (int, error) {
	var tps []TopPost
	if err := s.db.WithContext(ctx).Where("post_id = ?", postID).Limit(1).Find(&tps).Error; err != nil {
		return 0, errors.Wrapf(err, "counter %s", postID)
	}
	if len(tps) == 0 {
		return 0, nil
	}
	return tps[0].Count, nil
}
