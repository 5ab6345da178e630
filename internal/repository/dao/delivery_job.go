package dao

import (
	"context"
	"errors"
	"fmt"

	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/pkg/xsql"
	"gorm.io/gorm"
)

// DeliveryJob 送达任务实体
type DeliveryJob struct {
	Id            string `gorm:"primaryKey;type:varchar(64)"`
	CaseId        string `gorm:"type:varchar(128);index:idx_case_id"`
	CreatedBy     string `gorm:"type:varchar(128);index:idx_created_by"`
	PriorityOrder xsql.JsonColumn[[]string]
	Status        string `gorm:"type:varchar(32);index:idx_partition_status,priority:2"`
	Notes         string `gorm:"type:text"`
	PartitionNo   uint64 `gorm:"index:idx_partition_status,priority:1"`
	Version       int64
	CreatedAt     int64 `gorm:"autoCreateTime:false;index:idx_created_at"`
	UpdatedAt     int64 `gorm:"autoUpdateTime:false"`
}

func (DeliveryJob) TableName() string {
	return "delivery_job"
}

// MethodDetail 送达方式中不参与查询的描述性字段
type MethodDetail struct {
	RecipientName   string   `json:"recipientName,omitempty"`
	Email           string   `json:"email,omitempty"`
	Phone           string   `json:"phone,omitempty"`
	Address         string   `json:"address,omitempty"`
	ScheduledAt     int64    `json:"scheduledAt,omitempty"`
	ServiceProvider string   `json:"serviceProvider,omitempty"`
	TrackingNumber  string   `json:"trackingNumber,omitempty"`
	CertifiedNumber string   `json:"certifiedNumber,omitempty"`
	ProofFiles      []string `json:"proofFiles,omitempty"`
	Instructions    string   `json:"instructions,omitempty"`
	CostEstimate    float64  `json:"costEstimate,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	RequiredFields  []string `json:"requiredFields,omitempty"`
}

// DeliveryMethod 送达方式实体，status 为冗余字段，以 history 推导结果为准。
type DeliveryMethod struct {
	JobId     string `gorm:"primaryKey;type:varchar(64)"`
	MethodId  string `gorm:"primaryKey;type:varchar(64)"`
	Position  int
	Type      string `gorm:"type:varchar(32)"`
	Detail    xsql.JsonColumn[MethodDetail]
	Status    string `gorm:"type:varchar(32)"`
	CreatedAt int64  `gorm:"autoCreateTime:false"`
	UpdatedAt int64  `gorm:"autoUpdateTime:false"`
}

func (DeliveryMethod) TableName() string {
	return "delivery_method"
}

// DeliveryHistory 审计记录实体，只插入不更新。
type DeliveryHistory struct {
	Id        string `gorm:"primaryKey;type:varchar(64)"`
	JobId     string `gorm:"type:varchar(64);uniqueIndex:uk_job_seq,priority:1"`
	Seq       int64  `gorm:"uniqueIndex:uk_job_seq,priority:2"`
	MethodId  string `gorm:"type:varchar(64)"`
	Event     string `gorm:"type:varchar(16)"`
	Actor     string `gorm:"type:varchar(128)"`
	Timestamp int64  `gorm:"index"`
	Metadata  xsql.JsonColumn[map[string]any]
	CreatedAt int64 `gorm:"autoCreateTime:false"`
}

func (DeliveryHistory) TableName() string {
	return "delivery_history"
}

// JobAggregate 一个 job 的完整持久化形态
type JobAggregate struct {
	Job     DeliveryJob
	Methods []DeliveryMethod
	History []DeliveryHistory
}

type DeliveryJobDAO interface {
	Insert(ctx context.Context, agg JobAggregate) error
	GetById(ctx context.Context, id string) (JobAggregate, error)
	// Commit 乐观锁提交，数据库中的版本不等于 expectedVersion 时返回 errs.ErrConflict。
	// newHistory 只包含本次新增的事件。
	Commit(ctx context.Context, agg JobAggregate, expectedVersion int64, newHistory []DeliveryHistory) error
	// FindActiveIds 按 id 升序分页，afterId 为上一页最后一个 id，首页传空串。
	FindActiveIds(ctx context.Context, partitionNo uint64, statuses []string, afterId string, limit int) ([]string, error)
	FindHistory(ctx context.Context, jobId string, from, to int64) ([]DeliveryHistory, error)
	// FindIds 按创建时间倒序分页查询
	FindIds(ctx context.Context, filter JobFilter) ([]string, error)
}

// JobFilter 列表查询条件，空值表示不过滤
type JobFilter struct {
	CaseId    string
	CreatedBy string
	Status    string
	Offset    int
	Limit     int
}

var _ DeliveryJobDAO = (*DefaultDeliveryJobDAO)(nil)

type DefaultDeliveryJobDAO struct {
	db *gorm.DB
}

func (d *DefaultDeliveryJobDAO) Insert(ctx context.Context, agg JobAggregate) error {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&agg.Job).Error; err != nil {
			return err
		}
		if len(agg.Methods) > 0 {
			if err := tx.Create(&agg.Methods).Error; err != nil {
				return err
			}
		}
		if len(agg.History) > 0 {
			if err := tx.Create(&agg.History).Error; err != nil {
				return err
			}
		}
		return nil
	})

	if IsDuplicateErr(err) {
		return fmt.Errorf("%w: delivery job %s already exists", errs.ErrValidation, agg.Job.Id)
	}
	return err
}

func (d *DefaultDeliveryJobDAO) GetById(ctx context.Context, id string) (JobAggregate, error) {
	var agg JobAggregate

	db := d.db.WithContext(ctx)
	if err := db.Where("id = ?", id).First(&agg.Job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return JobAggregate{}, fmt.Errorf("%w: delivery job id = %s", errs.ErrNotFound, id)
		}
		return JobAggregate{}, err
	}

	if err := db.Where("job_id = ?", id).Order("position ASC").Find(&agg.Methods).Error; err != nil {
		return JobAggregate{}, err
	}
	if err := db.Where("job_id = ?", id).Order("timestamp ASC, seq ASC").Find(&agg.History).Error; err != nil {
		return JobAggregate{}, err
	}
	return agg, nil
}

func (d *DefaultDeliveryJobDAO) Commit(
	ctx context.Context, agg JobAggregate, expectedVersion int64, newHistory []DeliveryHistory,
) error {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&DeliveryJob{}).
			Where("id = ? AND version = ?", agg.Job.Id, expectedVersion).
			Updates(map[string]any{
				"status":     agg.Job.Status,
				"notes":      agg.Job.Notes,
				"version":    expectedVersion + 1,
				"updated_at": agg.Job.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: delivery job %s version %d is stale", errs.ErrConflict, agg.Job.Id, expectedVersion)
		}

		for _, m := range agg.Methods {
			err := tx.Model(&DeliveryMethod{}).
				Where("job_id = ? AND method_id = ?", m.JobId, m.MethodId).
				Updates(map[string]any{
					"status":     m.Status,
					"detail":     m.Detail,
					"updated_at": m.UpdatedAt,
				}).Error
			if err != nil {
				return err
			}
		}

		if len(newHistory) > 0 {
			return tx.Create(&newHistory).Error
		}
		return nil
	})

	if IsDuplicateErr(err) {
		return fmt.Errorf("%w: delivery job %s history seq already committed", errs.ErrConflict, agg.Job.Id)
	}
	return err
}

func (d *DefaultDeliveryJobDAO) FindActiveIds(
	ctx context.Context, partitionNo uint64, statuses []string, afterId string, limit int,
) ([]string, error) {
	var ids []string
	err := d.db.WithContext(ctx).Model(&DeliveryJob{}).
		Where("partition_no = ? AND status IN ? AND id > ?", partitionNo, statuses, afterId).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (d *DefaultDeliveryJobDAO) FindHistory(ctx context.Context, jobId string, from, to int64) ([]DeliveryHistory, error) {
	db := d.db.WithContext(ctx).Where("job_id = ?", jobId)
	if from > 0 {
		db = db.Where("timestamp >= ?", from)
	}
	if to > 0 {
		db = db.Where("timestamp < ?", to)
	}

	var history []DeliveryHistory
	err := db.Order("timestamp ASC, seq ASC").Find(&history).Error
	return history, err
}

func (d *DefaultDeliveryJobDAO) FindIds(ctx context.Context, filter JobFilter) ([]string, error) {
	db := d.db.WithContext(ctx).Model(&DeliveryJob{})
	if filter.CaseId != "" {
		db = db.Where("case_id = ?", filter.CaseId)
	}
	if filter.CreatedBy != "" {
		db = db.Where("created_by = ?", filter.CreatedBy)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}

	var ids []string
	err := db.Order("created_at DESC, id DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Pluck("id", &ids).Error
	return ids, err
}

func NewDefaultDeliveryJobDAO(db *gorm.DB) *DefaultDeliveryJobDAO {
	return &DefaultDeliveryJobDAO{
		db: db,
	}
}
