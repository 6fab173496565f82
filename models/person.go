package models

import (
	"context"
	"time"

	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/utils"
)

// Person is a staff member. Persons are long-lived aggregation roots:
// ledger rows reference them, so a person with booking history is
// deactivated rather than deleted.
type Person struct {
	ID                 int       `gorm:"primary_key" json:"id"`
	Name               string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Slug               string    `gorm:"size:120;not null;uniqueIndex" json:"slug"`
	LoginName          string    `gorm:"size:100;index" json:"login_name"`
	Description        string    `gorm:"size:255" json:"description"`
	IsManagement       *bool     `gorm:"not null;default:false" json:"is_management"`
	IsOfficeManagement *bool     `gorm:"not null;default:false" json:"is_office_management"`
	IsActive           *bool     `gorm:"not null;default:true" json:"is_active"`
	MpcID              *int      `json:"mpc_id"`
	Mpc                *Mpc      `gorm:"foreignKey:MpcID" json:"mpc,omitempty"`
	Added              time.Time `gorm:"autoCreateTime" json:"added"`
	AddedByID          *int      `json:"added_by_id"`
}

type NewPerson struct {
	Name               string `json:"name" binding:"required"`
	LoginName          string `json:"login_name"`
	Description        string `json:"description"`
	IsManagement       *bool  `json:"is_management"`
	IsOfficeManagement *bool  `json:"is_office_management"`
	MpcId              int    `json:"mpc_id"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewPerson) validate(ctx context.Context, id int) error {
	if input.LoginName != "" {
		if err := utils.ValidateUnique[Person](ctx, "login_name", input.LoginName, id); err != nil {
			return err
		}
	}
	if input.MpcId != 0 {
		if err := utils.ValidateResourceId[Mpc](ctx, input.MpcId); err != nil {
			return err
		}
	}
	return nil
}

func CreatePerson(ctx context.Context, input *NewPerson) (*Person, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	slug, err := nextAvailableSlug[Person](ctx, utils.Slugify(input.Name))
	if err != nil {
		return nil, err
	}

	person := Person{
		Name:               input.Name,
		Slug:               slug,
		LoginName:          input.LoginName,
		Description:        input.Description,
		IsManagement:       input.IsManagement,
		IsOfficeManagement: input.IsOfficeManagement,
		IsActive:           utils.NewTrue(),
		MpcID:              utils.NilIfEmpty(input.MpcId),
		AddedByID:          utils.ActingPersonId(ctx),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&person).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			return nil, utils.NewValidationError("slug", "duplicate value")
		}
		return nil, err
	}
	if err := utils.RemoveRedisList[Person](); err != nil {
		return nil, err
	}
	return &person, nil
}

// UpdatePerson edits the mutable person fields. The slug stays fixed:
// it is the stable external reference and renaming must not break it.
func UpdatePerson(ctx context.Context, id int, input *NewPerson) (*Person, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	person, err := utils.FetchModel[Person](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(person).Updates(map[string]interface{}{
		"Name":               input.Name,
		"LoginName":          input.LoginName,
		"Description":        input.Description,
		"IsManagement":       utils.DereferencePtr(input.IsManagement, utils.DereferencePtr(person.IsManagement)),
		"IsOfficeManagement": utils.DereferencePtr(input.IsOfficeManagement, utils.DereferencePtr(person.IsOfficeManagement)),
		"MpcID":              utils.NilIfEmpty(input.MpcId),
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisBoth[Person](id); err != nil {
		return nil, err
	}
	return person, nil
}

// DeletePerson removes a person that never touched the ledger. Once
// bookings, assignments or capacity changes exist the row must stay
// (hard delete would orphan them); callers deactivate instead.
func DeletePerson(ctx context.Context, id int) (*Person, error) {

	person, err := utils.FetchModel[Person](ctx, id)
	if err != nil {
		return nil, err
	}

	referenced, err := personHasLedgerRows(ctx, id)
	if err != nil {
		return nil, err
	}
	if referenced {
		return nil, utils.NewValidationError("person", "has ledger history; deactivate instead of deleting")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(person).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisBoth[Person](id); err != nil {
		return nil, err
	}
	return person, nil
}

func personHasLedgerRows(ctx context.Context, id int) (bool, error) {
	counts := []func() (int64, error){
		func() (int64, error) { return utils.ResourceCountWhere[Booking](ctx, "booked_by_id = ?", id) },
		func() (int64, error) { return utils.ResourceCountWhere[WorkAssignment](ctx, "assigned_to_id = ?", id) },
		func() (int64, error) { return utils.ResourceCountWhere[PersonChange](ctx, "person_id = ?", id) },
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

func ToggleActivePerson(ctx context.Context, id int, isActive bool) (*Person, error) {

	return ToggleActiveModel[Person](ctx, id, isActive)
}

func GetPerson(ctx context.Context, id int) (*Person, error) {

	return GetResource[Person](ctx, id)
}

// GetPersonBySlug resolves the stable external reference.
// (may return RecordNotFound)
func GetPersonBySlug(ctx context.Context, slug string) (*Person, error) {

	db := config.GetDB()
	var result Person
	if err := db.WithContext(ctx).Where("slug = ?", slug).First(&result).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

// GetPersonByLoginName maps an SSO login to its Person. Used by the
// session middleware on every authenticated request.
// (may return RecordNotFound)
func GetPersonByLoginName(ctx context.Context, loginName string) (*Person, error) {

	db := config.GetDB()
	var result Person
	if err := db.WithContext(ctx).Where("login_name = ?", loginName).First(&result).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetPersons(ctx context.Context) ([]*Person, error) {

	return ListAllResource[Person](ctx, "name")
}
