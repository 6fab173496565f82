package models

import (
	"context"
	"time"

	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/utils"
	"github.com/shopspring/decimal"
)

// Mpc is a market/product combination, the portfolio grouping persons
// and projects roll up into.
type Mpc struct {
	ID            int             `gorm:"primary_key" json:"id"`
	Name          string          `gorm:"size:100;not null;uniqueIndex" json:"name" binding:"required"`
	Description   string          `gorm:"size:255" json:"description"`
	RevenueTarget decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"revenue_target"`
	Added         time.Time       `gorm:"autoCreateTime" json:"added"`
	AddedByID     *int            `json:"added_by_id"`
}

func (Mpc) TableName() string {
	return "mpcs"
}

type NewMpc struct {
	Name          string          `json:"name" binding:"required"`
	Description   string          `json:"description"`
	RevenueTarget decimal.Decimal `json:"revenue_target"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewMpc) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[Mpc](ctx, "name", input.Name, id); err != nil {
		return err
	}
	if err := utils.ValidateNonNegative("revenue_target", input.RevenueTarget); err != nil {
		return err
	}
	return nil
}

func CreateMpc(ctx context.Context, input *NewMpc) (*Mpc, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	mpc := Mpc{
		Name:          input.Name,
		Description:   input.Description,
		RevenueTarget: utils.RoundAmount(input.RevenueTarget),
		AddedByID:     utils.ActingPersonId(ctx),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&mpc).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Mpc](); err != nil {
		return nil, err
	}
	return &mpc, nil
}

func UpdateMpc(ctx context.Context, id int, input *NewMpc) (*Mpc, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	mpc, err := utils.FetchModel[Mpc](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(mpc).Updates(map[string]interface{}{
		"Name":          input.Name,
		"Description":   input.Description,
		"RevenueTarget": utils.RoundAmount(input.RevenueTarget),
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisBoth[Mpc](id); err != nil {
		return nil, err
	}
	return mpc, nil
}

func DeleteMpc(ctx context.Context, id int) (*Mpc, error) {

	mpc, err := utils.FetchModel[Mpc](ctx, id)
	if err != nil {
		return nil, err
	}

	// an MPC still classifying persons or projects cannot go
	personCount, err := utils.ResourceCountWhere[Person](ctx, "mpc_id = ?", id)
	if err != nil {
		return nil, err
	}
	projectCount, err := utils.ResourceCountWhere[Project](ctx, "mpc_id = ?", id)
	if err != nil {
		return nil, err
	}
	if personCount > 0 || projectCount > 0 {
		return nil, utils.NewValidationError("mpc", "still referenced by persons or projects")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(mpc).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisBoth[Mpc](id); err != nil {
		return nil, err
	}
	return mpc, nil
}

func GetMpc(ctx context.Context, id int) (*Mpc, error) {

	return GetResource[Mpc](ctx, id)
}

func GetMpcs(ctx context.Context) ([]*Mpc, error) {

	return ListAllResource[Mpc](ctx, "name")
}
