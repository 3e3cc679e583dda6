package entitlements

import (
	"errors"

	"github.com/docexpress/docexpress/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the DB reads and the single usage write the
// entitlement service needs. Subscription rows are never written here; they
// are owned by the billing webhook handler.
type Repository interface {
	GetUserByID(id uint) (*models.User, error)
	GetSubscriptionByUserID(userID uint) (*models.Subscription, error)
	GetMonthlyUsageCount(userID uint, month, year int) (int, error)
	IncrementMonthlyUsage(userID uint, month, year int) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an entitlement repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetSubscriptionByUserID(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetMonthlyUsageCount(userID uint, month, year int) (int, error) {
	var usage models.MonthlyUsage
	err := r.db.Where("user_id = ? AND month = ? AND year = ?", userID, month, year).First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return usage.Count, nil
}

// IncrementMonthlyUsage upserts the period row and increments its counter in
// a single statement so concurrent increments serialize at the database.
func (r *gormRepository) IncrementMonthlyUsage(userID uint, month, year int) error {
	usage := &models.MonthlyUsage{UserID: userID, Month: month, Year: year, Count: 1}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "month"},
			{Name: "year"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count": gorm.Expr("count + 1"),
		}),
	}).Create(usage).Error
}
