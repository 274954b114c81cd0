package middleware

import "context"

type (
	subjectKey   struct{}
	errorCodeKey struct{}
)

// SetSubject records the authenticated admin subject.
func SetSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// GetSubject returns the admin subject, or "" for anonymous requests.
func GetSubject(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey{}).(string)
	return sub
}

// SetErrorCode records the API error code a handler responded with.
func SetErrorCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode returns the recorded error code, or "".
func GetErrorCode(ctx context.Context) string {
	code, _ := ctx.Value(errorCodeKey{}).(string)
	return code
}
