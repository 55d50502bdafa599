package appctx

import (
	"context"

	"github.com/google/uuid"
)

type claimsKey struct{}

// RoomIdentity is what the room token middleware puts on the request
// context: who the caller is and which show the token is scoped to.
type RoomIdentity struct {
	UserID   uuid.UUID
	UserName string
	ShowID   uuid.UUID
	Role     string
}

func WithIdentity(ctx context.Context, id RoomIdentity) context.Context {
	return context.WithValue(ctx, claimsKey{}, id)
}

func Identity(ctx context.Context) (RoomIdentity, bool) {
	id, ok := ctx.Value(claimsKey{}).(RoomIdentity)
	return id, ok
}
