package utils

import (
	"context"
)

type CustomContext struct {
	AppSource  string
	RunID      string
	MailboxKey string
}

type customContextKeyType string

const customContextKey customContextKeyType = "CUSTOM_CONTEXT"

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAppSourceFromContext(ctx context.Context) string {
	return GetContext(ctx).AppSource
}

func GetRunIDFromContext(ctx context.Context) string {
	return GetContext(ctx).RunID
}

func GetMailboxKeyFromContext(ctx context.Context) string {
	return GetContext(ctx).MailboxKey
}

func SetAppSourceInContext(ctx context.Context, appSource string) context.Context {
	customContext := *GetContext(ctx)
	customContext.AppSource = appSource
	return WithCustomContext(ctx, &customContext)
}

func SetRunIDInContext(ctx context.Context, runID string) context.Context {
	customContext := *GetContext(ctx)
	customContext.RunID = runID
	return WithCustomContext(ctx, &customContext)
}

func SetMailboxKeyInContext(ctx context.Context, mailboxKey string) context.Context {
	customContext := *GetContext(ctx)
	customContext.MailboxKey = mailboxKey
	return WithCustomContext(ctx, &customContext)
}
