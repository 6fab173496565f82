package models

import (
	"context"
	"time"

	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/utils"
	"github.com/shopspring/decimal"
)

// Payable is an actual third-party invoice against a project, carrying
// the invoice date and number it is ordered by.
type Payable struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ProjectID   int             `gorm:"not null;index" json:"project_id" binding:"required"`
	Project     *Project        `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	Description string          `gorm:"size:255" json:"description"`
	Date        time.Time       `gorm:"type:date;not null" json:"date" binding:"required"`
	Number      string          `gorm:"size:50;not null" json:"number" binding:"required"`
	Added       time.Time       `gorm:"autoCreateTime" json:"added"`
	AddedByID   *int            `json:"added_by_id"`
}

type NewPayable struct {
	ProjectId   int             `json:"project_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date" binding:"required"`
	Number      string          `json:"number" binding:"required"`
}

func (input *NewPayable) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Project](ctx, input.ProjectId); err != nil {
		return err
	}
	if err := utils.ValidateNonNegative("amount", input.Amount); err != nil {
		return err
	}
	return nil
}

func CreatePayable(ctx context.Context, input *NewPayable) (*Payable, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	payable := Payable{
		ProjectID:   input.ProjectId,
		Amount:      utils.RoundAmount(input.Amount),
		Description: input.Description,
		Date:        input.Date,
		Number:      input.Number,
		AddedByID:   utils.ActingPersonId(ctx),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&payable).Error; err != nil {
		return nil, err
	}
	return &payable, nil
}

func UpdatePayable(ctx context.Context, id int, input *NewPayable) (*Payable, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	payable, err := utils.FetchModel[Payable](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(payable).Updates(map[string]interface{}{
		"ProjectID":   input.ProjectId,
		"Amount":      utils.RoundAmount(input.Amount),
		"Description": input.Description,
		"Date":        input.Date,
		"Number":      input.Number,
	}).Error
	if err != nil {
		return nil, err
	}
	return payable, nil
}

func DeletePayable(ctx context.Context, id int) (*Payable, error) {

	payable, err := utils.FetchModel[Payable](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(payable).Error; err != nil {
		return nil, err
	}
	return payable, nil
}

func GetPayable(ctx context.Context, id int) (*Payable, error) {

	return utils.FetchModel[Payable](ctx, id)
}

// GetPayablesForProject lists a project's payables ordered by
// (date, number).
func GetPayablesForProject(ctx context.Context, projectId int) ([]*Payable, error) {

	db := config.GetDB()
	var results []*Payable
	err := db.WithContext(ctx).
		Where("project_id = ?", projectId).
		Order("date, number").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SumPayables totals a project's invoiced external costs.
func SumPayables(ctx context.Context, projectId int) (decimal.Decimal, error) {

	db := config.GetDB()
	var total decimal.NullDecimal
	err := db.WithContext(ctx).Model(&Payable{}).
		Where("project_id = ?", projectId).
		Select("SUM(amount)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
