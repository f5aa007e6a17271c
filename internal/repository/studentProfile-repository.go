package repository

import (
	"context"
	"errors"
	"log"

	"github.com/SundayYogurt/clearance_service/internal/domain"
	"github.com/SundayYogurt/clearance_service/internal/helper"
	"github.com/SundayYogurt/clearance_service/internal/helper/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StudentProfileRepository interface {
	// Upsert merges into the record with the same email, or inserts a new one.
	// profile is updated to what was stored.
	Upsert(ctx context.Context, profile *domain.StudentProfile) error
	FindByEmail(ctx context.Context, email string) (*domain.StudentProfile, error)
	FindByID(ctx context.Context, id string) (*domain.StudentProfile, error)
	// ListAll returns every profile in insertion order.
	ListAll(ctx context.Context) ([]domain.StudentProfile, error)
}

type studentProfileRepository struct {
	db *gorm.DB
}

func NewStudentProfileRepository(db *gorm.DB) StudentProfileRepository {
	return &studentProfileRepository{db: db}
}

func (s *studentProfileRepository) Upsert(ctx context.Context, profile *domain.StudentProfile) error {
	if profile == nil {
		return errors.New("nil profile")
	}
	profile.Email = utils.NormalizeEmail(profile.Email)
	if profile.Email == "" {
		return errors.New("profile email is required")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertProfileTx(tx, profile)
	})
	if helper.IsUniqueViolation(err) {
		// insert raced with another insert for the same email; the row exists now
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return upsertProfileTx(tx, profile)
		})
	}
	if err != nil {
		log.Printf("upsert student profile error: email=%s err=%v", profile.Email, err)
	}
	return err
}

func upsertProfileTx(tx *gorm.DB, profile *domain.StudentProfile) error {
	var existing domain.StudentProfile
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("email = ?", profile.Email).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if profile.ID == "" {
			profile.ID = uuid.NewString()
		}
		return tx.Create(profile).Error
	}
	if err != nil {
		return err
	}

	merged := existing.Merge(*profile)
	if err := tx.Save(&merged).Error; err != nil {
		return err
	}
	*profile = merged
	return nil
}

func (s *studentProfileRepository) FindByEmail(ctx context.Context, email string) (*domain.StudentProfile, error) {
	return s.findOne(ctx, "email = ?", utils.NormalizeEmail(email))
}

func (s *studentProfileRepository) FindByID(ctx context.Context, id string) (*domain.StudentProfile, error) {
	return s.findOne(ctx, "id = ?", id)
}

func (s *studentProfileRepository) findOne(ctx context.Context, query string, arg any) (*domain.StudentProfile, error) {
	var profile domain.StudentProfile
	if err := s.db.WithContext(ctx).Where(query, arg).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}
	profile.Normalize()
	return &profile, nil
}

func (s *studentProfileRepository) ListAll(ctx context.Context) ([]domain.StudentProfile, error) {
	var profiles []domain.StudentProfile
	if err := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}
