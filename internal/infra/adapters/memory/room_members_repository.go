package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Member is one connected commerce channel participant of a show.
type Member struct {
	UserID   uuid.UUID
	UserName string
	Role     string
}

// RoomMembersRepository tracks which viewers are connected to which show.
// Transport-derived only; membership is never a permission.
type RoomMembersRepository interface {
	AddMember(ctx context.Context, showID uuid.UUID, member Member)
	RemoveMember(ctx context.Context, showID uuid.UUID, userID uuid.UUID)
	GetMembers(ctx context.Context, showID uuid.UUID) []Member
	Count(ctx context.Context, showID uuid.UUID) int
}

type roomMembersRepository struct {
	members map[uuid.UUID]map[uuid.UUID]Member
	mu      sync.RWMutex
}

func NewRoomMembersRepository() RoomMembersRepository {
	return &roomMembersRepository{
		members: make(map[uuid.UUID]map[uuid.UUID]Member),
	}
}

func (r *roomMembersRepository) AddMember(ctx context.Context, showID uuid.UUID, member Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[showID]; !ok {
		r.members[showID] = make(map[uuid.UUID]Member)
	}

	r.members[showID][member.UserID] = member
}

func (r *roomMembersRepository) RemoveMember(ctx context.Context, showID uuid.UUID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[showID]; !ok {
		return
	}

	delete(r.members[showID], userID)

	if len(r.members[showID]) == 0 {
		delete(r.members, showID)
	}
}

func (r *roomMembersRepository) GetMembers(ctx context.Context, showID uuid.UUID) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []Member

	for _, member := range r.members[showID] {
		members = append(members, member)
	}

	return members
}

func (r *roomMembersRepository) Count(ctx context.Context, showID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.members[showID])
}
