package common

import "context"

type adminSubjectKey struct{}

// WithAdminSubject stores the authenticated admin subject on the context.
func WithAdminSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, adminSubjectKey{}, subject)
}

// AdminSubject returns the authenticated admin subject, if any.
func AdminSubject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(adminSubjectKey{}).(string)
	return subject, ok && subject != ""
}
