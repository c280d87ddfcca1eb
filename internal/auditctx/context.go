// Package auditctx carries request actor metadata through context for the
// audit side-channel, so services never depend on the HTTP layer.
package auditctx

import "context"

type metaKey struct{}

type Meta struct {
	ActorID   string
	IP        string
	UserAgent string
}

func WithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

func FromContext(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	meta, _ := ctx.Value(metaKey{}).(Meta)
	return meta
}
