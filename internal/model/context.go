package model

import "context"

// Actor is the authenticated instructor on whose behalf an operation runs.
// It is passed explicitly; host calls never rely on ambient request state.
type Actor struct {
	UserID    int64  `json:"user_id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
}

// FullName returns the actor's display name.
func (a Actor) FullName() string {
	return a.FirstName + " " + a.LastName
}

type actorCtxKey struct{}

// ContextWithActor stores the acting instructor in the request context.
func ContextWithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, a)
}

// ActorFromContext retrieves the acting instructor from context, or nil.
func ActorFromContext(ctx context.Context) *Actor {
	a, _ := ctx.Value(actorCtxKey{}).(*Actor)
	return a
}
