package models

import (
	"context"
	"time"

	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/utils"
	"github.com/shopspring/decimal"
)

// Project is a unit of work with a budget. Once accepted, the budget
// figures freeze: ordinary users can no longer touch them, only office
// management can (and can reverse the acceptance itself).
type Project struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	Code                string          `gorm:"size:50;not null" json:"code" binding:"required"`
	Slug                string          `gorm:"size:120;not null;uniqueIndex" json:"slug"`
	Description         string          `gorm:"size:255" json:"description"`
	IsAccepted          *bool           `gorm:"not null;default:false" json:"is_accepted"`
	Internal            *bool           `gorm:"not null;default:false" json:"internal"`
	ContractAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"contract_amount"`
	Reservation         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"reservation"`
	Profit              decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"profit"`
	SoftwareDevelopment decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"software_development"`
	Principal           string          `gorm:"size:100" json:"principal"`
	StartYearWeekID     *int            `json:"start_year_week_id"`
	StartYearWeek       *YearWeek       `gorm:"foreignKey:StartYearWeekID" json:"start_year_week,omitempty"`
	EndYearWeekID       *int            `json:"end_year_week_id"`
	EndYearWeek         *YearWeek       `gorm:"foreignKey:EndYearWeekID" json:"end_year_week,omitempty"`
	MpcID               *int            `json:"mpc_id"`
	Mpc                 *Mpc            `gorm:"foreignKey:MpcID" json:"mpc,omitempty"`
	ProjectLeaderID     *int            `json:"project_leader_id"`
	ProjectLeader       *Person         `gorm:"foreignKey:ProjectLeaderID" json:"project_leader,omitempty"`
	ProjectManagerID    *int            `json:"project_manager_id"`
	ProjectManager      *Person         `gorm:"foreignKey:ProjectManagerID" json:"project_manager,omitempty"`
	Added               time.Time       `gorm:"autoCreateTime" json:"added"`
	AddedByID           *int            `json:"added_by_id"`
}

type NewProject struct {
	Code                string          `json:"code" binding:"required"`
	Description         string          `json:"description"`
	Internal            *bool           `json:"internal"`
	ContractAmount      decimal.Decimal `json:"contract_amount"`
	Reservation         decimal.Decimal `json:"reservation"`
	Profit              decimal.Decimal `json:"profit"`
	SoftwareDevelopment decimal.Decimal `json:"software_development"`
	Principal           string          `json:"principal"`
	StartYearWeekId     int             `json:"start_year_week_id"`
	EndYearWeekId       int             `json:"end_year_week_id"`
	MpcId               int             `json:"mpc_id"`
	ProjectLeaderId     int             `json:"project_leader_id"`
	ProjectManagerId    int             `json:"project_manager_id"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewProject) validate(ctx context.Context, id int) error {
	for field, value := range map[string]decimal.Decimal{
		"contract_amount":      input.ContractAmount,
		"reservation":          input.Reservation,
		"profit":               input.Profit,
		"software_development": input.SoftwareDevelopment,
	} {
		if err := utils.ValidateNonNegative(field, value); err != nil {
			return err
		}
	}
	if input.MpcId != 0 {
		if err := utils.ValidateResourceId[Mpc](ctx, input.MpcId); err != nil {
			return err
		}
	}
	if input.ProjectLeaderId != 0 {
		if err := utils.ValidateResourceId[Person](ctx, input.ProjectLeaderId); err != nil {
			return err
		}
	}
	if input.ProjectManagerId != 0 {
		if err := utils.ValidateResourceId[Person](ctx, input.ProjectManagerId); err != nil {
			return err
		}
	}

	// the project window must run forward on the week axis
	if input.StartYearWeekId != 0 && input.EndYearWeekId != 0 {
		start, err := GetYearWeek(ctx, input.StartYearWeekId)
		if err != nil {
			return err
		}
		end, err := GetYearWeek(ctx, input.EndYearWeekId)
		if err != nil {
			return err
		}
		if WeekKey(start.Year, start.Week) > WeekKey(end.Year, end.Week) {
			return utils.NewValidationError("start_year_week_id", "must not be after end week")
		}
	} else if input.StartYearWeekId != 0 {
		if err := utils.ValidateResourceId[YearWeek](ctx, input.StartYearWeekId); err != nil {
			return err
		}
	} else if input.EndYearWeekId != 0 {
		if err := utils.ValidateResourceId[YearWeek](ctx, input.EndYearWeekId); err != nil {
			return err
		}
	}
	return nil
}

// touchesBudget reports whether the input would change any of the
// frozen-after-acceptance money fields.
func (input *NewProject) touchesBudget(project *Project) bool {
	return !input.ContractAmount.Equal(project.ContractAmount) ||
		!input.Reservation.Equal(project.Reservation) ||
		!input.Profit.Equal(project.Profit) ||
		!input.SoftwareDevelopment.Equal(project.SoftwareDevelopment)
}

func CreateProject(ctx context.Context, input *NewProject) (*Project, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	slug, err := nextAvailableSlug[Project](ctx, utils.Slugify(input.Code))
	if err != nil {
		return nil, err
	}

	project := Project{
		Code:                input.Code,
		Slug:                slug,
		Description:         input.Description,
		IsAccepted:          utils.NewFalse(),
		Internal:            input.Internal,
		ContractAmount:      utils.RoundAmount(input.ContractAmount),
		Reservation:         utils.RoundAmount(input.Reservation),
		Profit:              utils.RoundAmount(input.Profit),
		SoftwareDevelopment: utils.RoundAmount(input.SoftwareDevelopment),
		Principal:           input.Principal,
		StartYearWeekID:     utils.NilIfEmpty(input.StartYearWeekId),
		EndYearWeekID:       utils.NilIfEmpty(input.EndYearWeekId),
		MpcID:               utils.NilIfEmpty(input.MpcId),
		ProjectLeaderID:     utils.NilIfEmpty(input.ProjectLeaderId),
		ProjectManagerID:    utils.NilIfEmpty(input.ProjectManagerId),
		AddedByID:           utils.ActingPersonId(ctx),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&project).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			return nil, utils.NewValidationError("slug", "duplicate value")
		}
		return nil, err
	}
	if err := utils.RemoveRedisList[Project](); err != nil {
		return nil, err
	}
	return &project, nil
}

func UpdateProject(ctx context.Context, id int, input *NewProject) (*Project, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	project, err := utils.FetchModel[Project](ctx, id)
	if err != nil {
		return nil, err
	}

	// accepted projects have frozen budget figures
	if utils.DereferencePtr(project.IsAccepted) && input.touchesBudget(project) {
		if isAdmin, _ := utils.GetIsAdminFromContext(ctx); !isAdmin {
			return nil, utils.ErrorNotAuthorized
		}
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(project).Updates(map[string]interface{}{
		"Code":                input.Code,
		"Description":         input.Description,
		"Internal":            utils.DereferencePtr(input.Internal, utils.DereferencePtr(project.Internal)),
		"ContractAmount":      utils.RoundAmount(input.ContractAmount),
		"Reservation":         utils.RoundAmount(input.Reservation),
		"Profit":              utils.RoundAmount(input.Profit),
		"SoftwareDevelopment": utils.RoundAmount(input.SoftwareDevelopment),
		"Principal":           input.Principal,
		"StartYearWeekID":     utils.NilIfEmpty(input.StartYearWeekId),
		"EndYearWeekID":       utils.NilIfEmpty(input.EndYearWeekId),
		"MpcID":               utils.NilIfEmpty(input.MpcId),
		"ProjectLeaderID":     utils.NilIfEmpty(input.ProjectLeaderId),
		"ProjectManagerID":    utils.NilIfEmpty(input.ProjectManagerId),
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisBoth[Project](id); err != nil {
		return nil, err
	}
	return project, nil
}

// AcceptProject moves a draft project to accepted, freezing its budget
// figures for ordinary users.
func AcceptProject(ctx context.Context, id int) (*Project, error) {

	return setProjectAccepted(ctx, id, true)
}

// UnacceptProject reverses the acceptance. Administrative override only.
func UnacceptProject(ctx context.Context, id int) (*Project, error) {

	if isAdmin, _ := utils.GetIsAdminFromContext(ctx); !isAdmin {
		return nil, utils.ErrorNotAuthorized
	}
	return setProjectAccepted(ctx, id, false)
}

func setProjectAccepted(ctx context.Context, id int, accepted bool) (*Project, error) {

	project, err := utils.FetchModel[Project](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(project).
		UpdateColumn("IsAccepted", accepted).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisBoth[Project](id); err != nil {
		return nil, err
	}
	return project, nil
}

func DeleteProject(ctx context.Context, id int) (*Project, error) {

	project, err := utils.FetchModel[Project](ctx, id)
	if err != nil {
		return nil, err
	}

	referenced, err := projectHasLedgerRows(ctx, id)
	if err != nil {
		return nil, err
	}
	if referenced {
		return nil, utils.NewValidationError("project", "has ledger history and cannot be deleted")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(project).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisBoth[Project](id); err != nil {
		return nil, err
	}
	return project, nil
}

func projectHasLedgerRows(ctx context.Context, id int) (bool, error) {
	counts := []func() (int64, error){
		func() (int64, error) { return utils.ResourceCountWhere[Booking](ctx, "booked_on_id = ?", id) },
		func() (int64, error) { return utils.ResourceCountWhere[WorkAssignment](ctx, "assigned_on_id = ?", id) },
		func() (int64, error) { return utils.ResourceCountWhere[BudgetAssignment](ctx, "assigned_to_id = ?", id) },
		func() (int64, error) { return utils.ResourceCountWhere[ThirdPartyEstimate](ctx, "project_id = ?", id) },
		func() (int64, error) { return utils.ResourceCountWhere[Payable](ctx, "project_id = ?", id) },
	}
	for _, count := range counts {
		n, err := count()
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

func GetProject(ctx context.Context, id int) (*Project, error) {

	return GetResource[Project](ctx, id)
}

// GetProjectBySlug resolves the stable external reference.
// (may return RecordNotFound)
func GetProjectBySlug(ctx context.Context, slug string) (*Project, error) {

	db := config.GetDB()
	var result Project
	if err := db.WithContext(ctx).Where("slug = ?", slug).First(&result).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetProjects(ctx context.Context) ([]*Project, error) {

	return ListAllResource[Project](ctx, "code")
}

// GetAcceptedProjects lists the projects that count toward the
// organisation-wide totals.
func GetAcceptedProjects(ctx context.Context) ([]*Project, error) {

	db := config.GetDB()
	var results []*Project
	err := db.WithContext(ctx).
		Where("is_accepted = ?", true).
		Order("code").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
