package shared

import "context"

// Actor identifies the authenticated user and tenant attached to a request.
// The identity collaborator resolves it upstream; the core trusts it verbatim.
type Actor struct {
	TenantID int64
	Email    string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor means
// the request carried no identity headers.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
