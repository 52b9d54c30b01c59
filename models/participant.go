package models

import (
	"sync"

	"github.com/aukilabs/quadfield/messages"
)

// A field participant.
type Participant struct {
	ID        uint32
	Responder messages.ResponseSender

	mutex     sync.Mutex
	entityIDs map[uint32]struct{}
}

func (p *Participant) AddEntity(e *Entity) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.entityIDs == nil {
		p.entityIDs = make(map[uint32]struct{})
	}
	p.entityIDs[e.ID] = struct{}{}
}

// EntityCount returns the number of entities spawned by the participant.
func (p *Participant) EntityCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return len(p.entityIDs)
}

func ParticipantIDs(participants []*Participant) []uint32 {
	ids := make([]uint32, len(participants))
	for i, p := range participants {
		ids[i] = p.ID
	}
	return ids
}
