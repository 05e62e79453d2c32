package data

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lk2023060901/pricehunt-backend/internal/pkg/database"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"github.com/lk2023060901/pricehunt-backend/internal/task/biz"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const resultBatchSize = 100

// SearchParamsJSON 搜索参数 JSONB 列
type SearchParamsJSON biz.SearchParams

func (j *SearchParamsJSON) Scan(value any) error {
	return scanJSON(value, j)
}

func (j SearchParamsJSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// ResultJSON 任务汇总 JSONB 列
type ResultJSON biz.Result

func (j *ResultJSON) Scan(value any) error {
	return scanJSON(value, j)
}

func (j ResultJSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// LogsJSON 处理日志 JSONB 列（数组）
type LogsJSON []biz.LogEntry

func (j *LogsJSON) Scan(value any) error {
	return scanJSON(value, j)
}

func (j LogsJSON) Value() (driver.Value, error) {
	if j == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(j)
}

// StringsJSON 字符串数组 JSONB 列
type StringsJSON []string

func (j *StringsJSON) Scan(value any) error {
	return scanJSON(value, j)
}

func (j StringsJSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func scanJSON(value any, dst any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// TaskPO represents the search_tasks table
type TaskPO struct {
	ID             string           `gorm:"type:uuid;primarykey"`
	Name           string           `gorm:"size:255;not null"`
	Status         string           `gorm:"size:20;not null;index:idx_search_tasks_status_created,priority:1"`
	SearchParams   SearchParamsJSON `gorm:"type:jsonb;not null"`
	Result         *ResultJSON      `gorm:"type:jsonb"`
	Error          string           `gorm:"type:text"`
	ProcessingLogs LogsJSON         `gorm:"type:jsonb;not null;default:'[]'"`
	CreatedAt      time.Time        `gorm:"not null;index:idx_search_tasks_status_created,priority:2"`
	UpdatedAt      time.Time        `gorm:"not null"`
	CompletedAt    *time.Time
}

func (TaskPO) TableName() string {
	return "search_tasks"
}

// TaskResultPO represents one normalized listing stored for a task
type TaskResultPO struct {
	ID              uint64      `gorm:"primarykey;autoIncrement"`
	TaskID          string      `gorm:"type:uuid;not null;index:idx_search_task_results_task_price,priority:1"`
	Task            *TaskPO     `gorm:"foreignKey:TaskID;references:ID;constraint:OnDelete:CASCADE"`
	Position        int         `gorm:"not null"`
	Platform        string      `gorm:"size:32;not null;index"`
	ItemID          string      `gorm:"size:128;not null"`
	Title           string      `gorm:"type:text;not null"`
	Description     string      `gorm:"type:text"`
	URL             string      `gorm:"type:text;not null"`
	ImageURLs       StringsJSON `gorm:"type:jsonb"`
	BasePrice       float64     `gorm:"type:numeric(14,2);not null"`
	ShippingFee     float64     `gorm:"type:numeric(14,2);not null"`
	ShippingUnknown bool        `gorm:"not null;default:false"`
	TotalPrice      float64     `gorm:"type:numeric(14,2);not null;index:idx_search_task_results_task_price,priority:2"`
	Currency        string      `gorm:"size:3;not null"`
	Condition       string      `gorm:"size:20;not null"`
	SellerID        string      `gorm:"size:128"`
	SellerName      string      `gorm:"size:255"`
	SellerRating    *float64
	Relevance       *int
	RelevanceTag    string `gorm:"size:10"`
	ListedAt        *time.Time
	CreatedAt       time.Time `gorm:"not null"`
}

func (TaskResultPO) TableName() string {
	return "search_task_results"
}

type resultCount struct {
	TaskID string
	Count  int
}

type platformAggregate struct {
	Platform string
	Count    int
	Min      float64
	Max      float64
	Sum      float64
}

// Models lists the tables owned by this package for migration.
func Models() []any {
	return []any{&TaskPO{}, &TaskResultPO{}}
}

// TaskRepo implements biz.TaskRepo on PostgreSQL
type TaskRepo struct {
	db *database.DB
}

func NewTaskRepo(db *database.DB) *TaskRepo {
	return &TaskRepo{db: db}
}

func (r *TaskRepo) Create(ctx context.Context, task *biz.Task) error {
	po := r.toPO(task)
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(po).Error
}

func (r *TaskRepo) Get(ctx context.Context, id string) (*biz.Task, error) {
	var po TaskPO
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrTaskNotFound
		}
		return nil, err
	}
	return r.toBiz(&po), nil
}

func (r *TaskRepo) List(ctx context.Context, filter biz.ListFilter) ([]*biz.TaskSummary, int64, error) {
	query := r.db.WithContext(ctx).Model(&TaskPO{})
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var pos []TaskPO
	if err := query.Order("created_at DESC").Order("id DESC").
		Scopes(database.Paginate(filter.Page, filter.Limit)).
		Find(&pos).Error; err != nil {
		return nil, 0, err
	}
	if len(pos) == 0 {
		return []*biz.TaskSummary{}, total, nil
	}

	var counts []resultCount
	ids := lo.Map(pos, func(p TaskPO, _ int) string { return p.ID })
	if err := r.db.WithContext(ctx).Model(&TaskResultPO{}).
		Select("task_id, COUNT(*) AS count").
		Where("task_id IN ?", ids).
		Group("task_id").
		Scan(&counts).Error; err != nil {
		return nil, 0, err
	}
	byTask := make(map[string]int, len(counts))
	for _, c := range counts {
		byTask[c.TaskID] = c.Count
	}

	out := make([]*biz.TaskSummary, len(pos))
	for i := range pos {
		out[i] = &biz.TaskSummary{Task: r.toBiz(&pos[i]), ResultCount: byTask[pos[i].ID]}
	}
	return out, total, nil
}

// Transition locks the row, checks the current status and applies a
// conditional update. RowsAffected guards against writers that bypass the
// lock.
func (r *TaskRepo) Transition(ctx context.Context, id string, t biz.Transition) (*biz.Task, error) {
	var updated TaskPO
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var po TaskPO
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&po).Error; err != nil {
			if database.IsRecordNotFoundError(err) {
				return biz.ErrTaskNotFound
			}
			return err
		}
		if !lo.Contains(t.From, biz.Status(po.Status)) {
			return biz.ErrStaleWrite
		}

		updates := map[string]any{
			"status":          string(t.To),
			"updated_at":      t.At,
			"processing_logs": append(po.ProcessingLogs, t.Logs...),
		}
		if t.ErrorMessage != nil {
			updates["error"] = *t.ErrorMessage
		}
		if t.Result != nil {
			updates["result"] = ResultJSON(*t.Result)
		}
		if t.Name != "" {
			updates["name"] = t.Name
		}
		if t.To.Terminal() {
			updates["completed_at"] = t.At
		}

		from := lo.Map(t.From, func(s biz.Status, _ int) string { return string(s) })
		res := tx.Model(&TaskPO{}).Where("id = ? AND status IN ?", id, from).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return biz.ErrStaleWrite
		}

		if t.Results != nil {
			if err := tx.Where("task_id = ?", id).Delete(&TaskResultPO{}).Error; err != nil {
				return err
			}
			if rows := r.toResultPOs(id, t.Results, t.At); len(rows) > 0 {
				if err := tx.Omit(clause.Associations).CreateInBatches(rows, resultBatchSize).Error; err != nil {
					return err
				}
			}
		}

		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	return r.toBiz(&updated), nil
}

func (r *TaskRepo) Results(ctx context.Context, id string, limit int) ([]*types.SearchResult, biz.Stats, error) {
	var exists int64
	if err := r.db.WithContext(ctx).Model(&TaskPO{}).Where("id = ?", id).Count(&exists).Error; err != nil {
		return nil, biz.Stats{}, err
	}
	if exists == 0 {
		return nil, biz.Stats{}, biz.ErrTaskNotFound
	}

	var rows []TaskResultPO
	query := r.db.WithContext(ctx).Where("task_id = ?", id).Order("total_price ASC").Order("position ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, biz.Stats{}, err
	}

	var aggs []platformAggregate
	if err := r.db.WithContext(ctx).Model(&TaskResultPO{}).
		Select("platform, COUNT(*) AS count, MIN(total_price) AS min, MAX(total_price) AS max, SUM(total_price) AS sum").
		Where("task_id = ?", id).
		Group("platform").
		Scan(&aggs).Error; err != nil {
		return nil, biz.Stats{}, err
	}

	stats := biz.MergeStats(lo.Map(aggs, func(a platformAggregate, _ int) biz.PlatformAggregate {
		return biz.PlatformAggregate{
			Platform: types.PlatformCode(a.Platform),
			Count:    a.Count,
			Min:      a.Min,
			Max:      a.Max,
			Sum:      a.Sum,
		}
	}))

	results := make([]*types.SearchResult, len(rows))
	for i := range rows {
		results[i] = r.toResult(&rows[i])
	}
	return results, stats, nil
}

// Delete removes the task and its rows in one transaction.
func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	return r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&TaskResultPO{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&TaskPO{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return biz.ErrTaskNotFound
		}
		return nil
	})
}

func (r *TaskRepo) toPO(t *biz.Task) *TaskPO {
	po := &TaskPO{
		ID:             t.ID,
		Name:           t.Name,
		Status:         string(t.Status),
		SearchParams:   SearchParamsJSON(t.SearchParams),
		Error:          t.ErrorMessage,
		ProcessingLogs: LogsJSON(t.ProcessingLogs),
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		CompletedAt:    t.CompletedAt,
	}
	if t.Result != nil {
		res := ResultJSON(*t.Result)
		po.Result = &res
	}
	return po
}

func (r *TaskRepo) toBiz(po *TaskPO) *biz.Task {
	t := &biz.Task{
		ID:             po.ID,
		Name:           po.Name,
		Status:         biz.Status(po.Status),
		SearchParams:   biz.SearchParams(po.SearchParams),
		ErrorMessage:   po.Error,
		ProcessingLogs: []biz.LogEntry(po.ProcessingLogs),
		CreatedAt:      po.CreatedAt,
		UpdatedAt:      po.UpdatedAt,
		CompletedAt:    po.CompletedAt,
	}
	if po.Result != nil {
		res := biz.Result(*po.Result)
		t.Result = &res
	}
	return t
}

func (r *TaskRepo) toResultPOs(taskID string, results []*types.SearchResult, at time.Time) []*TaskResultPO {
	rows := make([]*TaskResultPO, len(results))
	for i, res := range results {
		rows[i] = &TaskResultPO{
			TaskID:          taskID,
			Position:        i,
			Platform:        string(res.Platform),
			ItemID:          res.ItemID,
			Title:           res.Title,
			Description:     res.Description,
			URL:             res.URL,
			ImageURLs:       StringsJSON(res.ImageURLs),
			BasePrice:       res.BasePrice,
			ShippingFee:     res.ShippingFee,
			ShippingUnknown: res.ShippingUnknown,
			TotalPrice:      res.TotalPrice,
			Currency:        res.Currency,
			Condition:       string(res.Condition),
			SellerID:        res.Seller.ID,
			SellerName:      res.Seller.Name,
			SellerRating:    res.Seller.Rating,
			Relevance:       res.Relevance,
			RelevanceTag:    res.RelevanceTag,
			ListedAt:        res.ListedAt,
			CreatedAt:       at,
		}
	}
	return rows
}

func (r *TaskRepo) toResult(po *TaskResultPO) *types.SearchResult {
	return &types.SearchResult{
		Platform:        types.PlatformCode(po.Platform),
		ItemID:          po.ItemID,
		Title:           po.Title,
		Description:     po.Description,
		URL:             po.URL,
		ImageURLs:       []string(po.ImageURLs),
		BasePrice:       po.BasePrice,
		ShippingFee:     po.ShippingFee,
		ShippingUnknown: po.ShippingUnknown,
		TotalPrice:      po.TotalPrice,
		Currency:        po.Currency,
		Condition:       types.Condition(po.Condition),
		Seller:          types.Seller{ID: po.SellerID, Name: po.SellerName, Rating: po.SellerRating},
		Relevance:       po.Relevance,
		RelevanceTag:    po.RelevanceTag,
		ListedAt:        po.ListedAt,
	}
}
