package models

import (
	"context"
	"time"

	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/utils"
	"github.com/shopspring/decimal"
)

// ThirdPartyEstimate is an estimated external cost against a project,
// subtracted from the remaining budget alongside the actual payables.
type ThirdPartyEstimate struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ProjectID   int             `gorm:"not null;index" json:"project_id" binding:"required"`
	Project     *Project        `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	Description string          `gorm:"size:255" json:"description"`
	Added       time.Time       `gorm:"autoCreateTime" json:"added"`
	AddedByID   *int            `json:"added_by_id"`
}

type NewThirdPartyEstimate struct {
	ProjectId   int             `json:"project_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func (input *NewThirdPartyEstimate) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Project](ctx, input.ProjectId); err != nil {
		return err
	}
	if err := utils.ValidateNonNegative("amount", input.Amount); err != nil {
		return err
	}
	return nil
}

func CreateThirdPartyEstimate(ctx context.Context, input *NewThirdPartyEstimate) (*ThirdPartyEstimate, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	estimate := ThirdPartyEstimate{
		ProjectID:   input.ProjectId,
		Amount:      utils.RoundAmount(input.Amount),
		Description: input.Description,
		AddedByID:   utils.ActingPersonId(ctx),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&estimate).Error; err != nil {
		return nil, err
	}
	return &estimate, nil
}

func UpdateThirdPartyEstimate(ctx context.Context, id int, input *NewThirdPartyEstimate) (*ThirdPartyEstimate, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	estimate, err := utils.FetchModel[ThirdPartyEstimate](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(estimate).Updates(map[string]interface{}{
		"ProjectID":   input.ProjectId,
		"Amount":      utils.RoundAmount(input.Amount),
		"Description": input.Description,
	}).Error
	if err != nil {
		return nil, err
	}
	return estimate, nil
}

func DeleteThirdPartyEstimate(ctx context.Context, id int) (*ThirdPartyEstimate, error) {

	estimate, err := utils.FetchModel[ThirdPartyEstimate](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(estimate).Error; err != nil {
		return nil, err
	}
	return estimate, nil
}

func GetThirdPartyEstimate(ctx context.Context, id int) (*ThirdPartyEstimate, error) {

	return utils.FetchModel[ThirdPartyEstimate](ctx, id)
}

func GetThirdPartyEstimatesForProject(ctx context.Context, projectId int) ([]*ThirdPartyEstimate, error) {

	db := config.GetDB()
	var results []*ThirdPartyEstimate
	err := db.WithContext(ctx).
		Where("project_id = ?", projectId).
		Order("added, id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SumThirdPartyEstimates totals a project's estimated external costs.
func SumThirdPartyEstimates(ctx context.Context, projectId int) (decimal.Decimal, error) {

	db := config.GetDB()
	var total decimal.NullDecimal
	err := db.WithContext(ctx).Model(&ThirdPartyEstimate{}).
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
