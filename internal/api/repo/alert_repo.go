package repo

import (
	"jobdef"
	"jobdef/internal/api/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AlertRepository struct {
	Db *gorm.DB
}

func NewAlertRepository() *AlertRepository {
	return &AlertRepository{Db: jobdef.DB}
}

// FindByName retrieves an alert by name
func (slf *AlertRepository) FindByName(name string) (models.Alert, error) {
	var alert models.Alert
	err := slf.Db.First(&alert, "name = ?", name).Error
	return alert, err
}

// FindAllByJob retrieves the alerts that respond with a job
func (slf *AlertRepository) FindAllByJob(jobID uuid.UUID) ([]models.Alert, error) {
	var alerts []models.Alert
	err := slf.Db.
		Where("job_id = ?", jobID).
		Order("name ASC").
		Find(&alerts).Error
	return alerts, err
}

// Update saves an alert
func (slf *AlertRepository) Update(alert *models.Alert) error {
	return slf.Db.Save(alert).Error
}
