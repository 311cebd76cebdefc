package repo

import (
	"errors"

	"jobdef"
	"jobdef/internal/api/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type JobRepository struct {
	Db *gorm.DB
}

func NewJobRepository() *JobRepository {
	return &JobRepository{Db: jobdef.DB}
}

// FindByID retrieves a job by ID
func (slf *JobRepository) FindByID(id uuid.UUID) (models.Job, error) {
	var job models.Job
	err := slf.Db.First(&job, "id = ?", id).Error
	return job, err
}

// Create inserts a new job header
func (slf *JobRepository) Create(job *models.Job) error {
	return slf.Db.Create(job).Error
}

// FindSteps retrieves the steps of a job ordered by step id
func (slf *JobRepository) FindSteps(jobID uuid.UUID) ([]models.JobStep, error) {
	var steps []models.JobStep
	err := slf.Db.
		Where("job_id = ?", jobID).
		Order("step_id ASC").
		Find(&steps).Error
	return steps, err
}

// ReplaceSteps drops the removed steps and upserts the current ones in one
// transaction
func (slf *JobRepository) ReplaceSteps(jobID uuid.UUID, current []models.JobStep, removed []uuid.UUID) error {
	return slf.Db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Job{}).Where("id = ?", jobID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
		if len(removed) > 0 {
			if err := tx.Where("job_id = ? AND uid IN ?", jobID, removed).Delete(&models.JobStep{}).Error; err != nil {
				return err
			}
		}
		for i := range current {
			current[i].JobID = jobID
			if err := tx.Save(&current[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// IsNotFound returns true for gorm's missing-record error
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
