package repo

import (
	"jobdef"
	"jobdef/internal/api/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ScheduleRepository struct {
	Db *gorm.DB
}

func NewScheduleRepository() *ScheduleRepository {
	return &ScheduleRepository{Db: jobdef.DB}
}

// FindByID retrieves a schedule by ID
func (slf *ScheduleRepository) FindByID(id int) (models.Schedule, error) {
	var schedule models.Schedule
	err := slf.Db.First(&schedule, id).Error
	return schedule, err
}

// FindAllByJob retrieves the schedules referenced by a job
func (slf *ScheduleRepository) FindAllByJob(jobID uuid.UUID) ([]models.Schedule, error) {
	var schedules []models.Schedule
	err := slf.Db.
		Joins("JOIN job_schedule_ref ON job_schedule_ref.schedule_id = schedule.id").
		Where("job_schedule_ref.job_id = ?", jobID).
		Order("schedule.id ASC").
		Find(&schedules).Error
	return schedules, err
}

// CreateForJob creates a schedule and its reference from the job
func (slf *ScheduleRepository) CreateForJob(jobID uuid.UUID, schedule *models.Schedule) error {
	return slf.Db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(schedule).Error; err != nil {
			return err
		}
		return tx.Create(&models.JobScheduleRef{JobID: jobID, ScheduleID: schedule.ID}).Error
	})
}

// Update saves the schedule fields
func (slf *ScheduleRepository) Update(schedule *models.Schedule) error {
	res := slf.Db.Model(&models.Schedule{}).
		Where("id = ?", schedule.ID).
		Updates(map[string]interface{}{
			"name":               schedule.Name,
			"enabled":            schedule.Enabled,
			"frequency_type":     schedule.FrequencyType,
			"frequency_interval": schedule.FrequencyInterval,
			"active_start_date":  schedule.ActiveStartDate,
			"active_start_time":  schedule.ActiveStartTime,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a schedule and every reference to it
func (slf *ScheduleRepository) Delete(id int) error {
	return slf.Db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("schedule_id = ?", id).Delete(&models.JobScheduleRef{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Schedule{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// AddReference links an existing schedule to a job
func (slf *ScheduleRepository) AddReference(jobID uuid.UUID, id int) error {
	return slf.Db.Transaction(func(tx *gorm.DB) error {
		var schedule models.Schedule
		if err := tx.First(&schedule, id).Error; err != nil {
			return err
		}
		return tx.Where(models.JobScheduleRef{JobID: jobID, ScheduleID: id}).
			FirstOrCreate(&models.JobScheduleRef{}).Error
	})
}

// RemoveReference unlinks a schedule from a job and deletes the schedule when
// no job references it anymore
func (slf *ScheduleRepository) RemoveReference(jobID uuid.UUID, id int) error {
	return slf.Db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ? AND schedule_id = ?", jobID, id).Delete(&models.JobScheduleRef{}).Error; err != nil {
			return err
		}
		var remaining int64
		if err := tx.Model(&models.JobScheduleRef{}).Where("schedule_id = ?", id).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		return tx.Delete(&models.Schedule{}, id).Error
	})
}
