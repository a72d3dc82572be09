package shared

import "context"

type actorContextKey struct{}

// Actor identifies the authenticated user behind a request. Authentication
// itself happens at the gateway; the identity arrives as a trusted header and
// is placed in context by the app middleware.
type Actor struct {
	ID string
}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor means the
// request was not attributed.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
