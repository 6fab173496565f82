package utils

import (
	"context"

	"github.com/nens/trs_backend/appctx"
)

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyLoginName     = appctx.ContextKeyLoginName
	ContextKeyPersonId      = appctx.ContextKeyPersonId
	ContextKeyPersonName    = appctx.ContextKeyPersonName
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyIsAdmin       = appctx.ContextKeyIsAdmin
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetLoginNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyLoginName)
}

func GetPersonIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyPersonId)
}

func GetPersonNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyPersonName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetIsAdminFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeyIsAdmin)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetLoginNameInContext(ctx context.Context, loginName string) context.Context {
	return appctx.Set(ctx, ContextKeyLoginName, loginName)
}

func SetPersonIdInContext(ctx context.Context, personId int) context.Context {
	return appctx.Set(ctx, ContextKeyPersonId, personId)
}

func SetPersonNameInContext(ctx context.Context, personName string) context.Context {
	return appctx.Set(ctx, ContextKeyPersonName, personName)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetIsAdminInContext(ctx context.Context, isAdmin bool) context.Context {
	return appctx.Set(ctx, ContextKeyIsAdmin, isAdmin)
}

// ActingPersonId returns the acting user's Person id as a nullable
// foreign key for added_by audit columns. System-generated rows (no
// request identity in context) get nil.
func ActingPersonId(ctx context.Context) *int {
	id, ok := GetPersonIdFromContext(ctx)
	if !ok || id == 0 {
		return nil
	}
	return &id
}
