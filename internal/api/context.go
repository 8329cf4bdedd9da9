package api

import (
	"context"

	"opsportal/internal/errreport"
	"opsportal/internal/models"
)

type ctxKey int

const (
	requestInfoKey ctxKey = iota
	sessionKey
)

// RequestInfo identifies the request being served. The instrumentation
// wrapper stores it in the request context.
type RequestInfo struct {
	ID     string
	Route  string
	Method string
}

func withRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey, info)
}

// RequestInfoFromContext returns the request info stored by the wrapper.
func RequestInfoFromContext(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey).(RequestInfo)
	return info, ok
}

// RequestIDFromContext returns the request id, or "" outside a wrapped handler.
func RequestIDFromContext(ctx context.Context) string {
	info, _ := RequestInfoFromContext(ctx)
	return info.ID
}

func withSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the authenticated session, if any.
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*models.Session)
	return s, ok && s != nil
}

func reportContext(ctx context.Context) errreport.Context {
	info, _ := RequestInfoFromContext(ctx)
	return errreport.Context{RequestID: info.ID, Route: info.Route, Method: info.Method}
}
