package domain

import (
	"context"
	"time"
)

type actorKey struct{}

// Actor carries the authenticated identity through request context.
// A zero UserID means the request is anonymous; anonymous actors are
// denied by the permission resolver.
type Actor struct {
	UserID string
	Name   string
}

// Anonymous reports whether the actor has no identity.
func (a Actor) Anonymous() bool { return a.UserID == "" }

// WithActor stores an Actor in the context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext extracts the Actor from the context.
// Returns a zero Actor (anonymous) when none is present.
func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

// PolicyContext holds the request-scoped values available for row-policy
// placeholder substitution: actor id, actor role, current time.
type PolicyContext struct {
	UserID   string
	RoleName string
	Now      time.Time
}
