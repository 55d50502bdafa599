package state

import "time"

// Giveaway tracks entrants with set semantics: entering twice never
// duplicates the participant, even when the transport replays the join
// event.
type Giveaway struct {
	ID        string
	ProductID string

	Participants map[string]struct{}
	Bookmarks    map[string]struct{}

	StartedAt time.Time
	EndedAt   time.Time
	WinnerID  string
}

func (g *Giveaway) Ended() bool {
	return !g.EndedAt.IsZero()
}

func (g *Giveaway) EntrantCount() int {
	return len(g.Participants)
}

func (g *Giveaway) HasEntered(participantID string) bool {
	_, ok := g.Participants[participantID]
	return ok
}

func (g *Giveaway) clone() *Giveaway {
	cp := *g

	cp.Participants = make(map[string]struct{}, len(g.Participants))
	for id := range g.Participants {
		cp.Participants[id] = struct{}{}
	}

	cp.Bookmarks = make(map[string]struct{}, len(g.Bookmarks))
	for id := range g.Bookmarks {
		cp.Bookmarks[id] = struct{}{}
	}

	return &cp
}
