package models

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/quadfield/messages"
	"github.com/aukilabs/quadfield/quadtree"
	"github.com/google/uuid"
)

const (
	ErrTypeFieldClosed       = "field_closed"
	ErrTypeFieldLimitReached = "field_limit_reached"
)

// Field is an area where participants spawn entities. Entity positions are
// indexed by a quadtree to answer nearby queries.
type Field struct {
	ID        uint32
	FieldUUID string
	CreatedAt time.Time

	// Persistent fields stay in the store when their last participant
	// leaves.
	Persist bool

	treeMutex sync.RWMutex
	tree      *quadtree.Tree
	index     map[quadtree.Vector3f]*roaring.Bitmap
	rng       *rand.Rand
	closed    bool

	participantIDs   SequentialIDGenerator
	participantMutex sync.RWMutex
	participants     map[uint32]*Participant

	entityIDs   SequentialIDGenerator
	entityMutex sync.RWMutex
	entities    map[uint32]*Entity
}

// NewField creates a field covering the given region. Capacity and options
// configure the underlying quadtree.
func NewField(id uint32, region quadtree.Region, capacity int, opts ...quadtree.Option) (*Field, error) {
	tree, err := quadtree.New(region, capacity, opts...)
	if err != nil {
		return nil, err
	}

	return &Field{
		ID:           id,
		FieldUUID:    uuid.New().String(),
		CreatedAt:    time.Now(),
		tree:         tree,
		index:        make(map[quadtree.Vector3f]*roaring.Bitmap),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		participants: make(map[uint32]*Participant),
		entities:     make(map[uint32]*Entity),
	}, nil
}

// Close stops the field from accepting new entities.
func (f *Field) Close() {
	f.treeMutex.Lock()
	defer f.treeMutex.Unlock()

	f.closed = true
}

func (f *Field) Region() quadtree.Region {
	return f.tree.Region()
}

func (f *Field) Capacity() int {
	return f.tree.Capacity()
}

func (f *Field) MaxDepth() int {
	return f.tree.MaxDepth()
}

func (f *Field) BoundaryPolicy() quadtree.BoundaryPolicy {
	return f.tree.BoundaryPolicy()
}

// Spawn places a new entity at the given position. A random color is used
// when color is nil. The returned entity is nil when the position is outside
// the field.
func (f *Field) Spawn(participant *Participant, position quadtree.Vector3f, color *Color) (*Entity, quadtree.InsertResult, error) {
	f.treeMutex.Lock()
	defer f.treeMutex.Unlock()

	if f.closed {
		return nil, quadtree.Ignored, newFieldClosedError(f.ID)
	}

	res := f.tree.Insert(position)
	if res == quadtree.Ignored {
		return nil, res, nil
	}

	var participantID uint32
	if participant != nil {
		participantID = participant.ID
	}

	c := f.randomColor()
	if color != nil {
		c = *color
	}

	entity := NewEntity(f.entityIDs.New(), participantID, position, c)
	f.indexEntity(entity)
	f.addEntity(entity)

	if participant != nil {
		participant.AddEntity(entity)
	}

	instrumentSpawnEntities(1)
	return entity, res, nil
}

// Construct spawns an entity for each position inside the field, in order.
// Colors are matched with positions by index, missing ones are random.
func (f *Field) Construct(participantID uint32, positions []quadtree.Vector3f, colors []Color) ([]*Entity, quadtree.BulkResult, error) {
	f.treeMutex.Lock()
	defer f.treeMutex.Unlock()

	if f.closed {
		return nil, quadtree.BulkResult{}, newFieldClosedError(f.ID)
	}

	res := f.tree.Construct(positions)
	region := f.tree.Region()

	entities := make([]*Entity, 0, res.Inserted+res.Overflowed)
	for i, p := range positions {
		if !region.Contains(p) {
			continue
		}

		c := f.randomColor()
		if i < len(colors) {
			c = colors[i]
		}

		entity := NewEntity(f.entityIDs.New(), participantID, p, c)
		f.indexEntity(entity)
		entities = append(entities, entity)
	}

	f.entityMutex.Lock()
	for _, e := range entities {
		f.entities[e.ID] = e
	}
	f.entityMutex.Unlock()

	instrumentSpawnEntities(len(entities))
	return entities, res, nil
}

// Nearby returns the positions stored in the quadtree leaves containing
// origin and the ids of the entities placed at those positions.
func (f *Field) Nearby(origin quadtree.Vector3f) ([]quadtree.Vector3f, []uint32) {
	f.treeMutex.RLock()
	defer f.treeMutex.RUnlock()

	positions := f.tree.Nearby(origin)
	if len(positions) == 0 {
		return positions, nil
	}

	ids := roaring.New()
	for _, p := range positions {
		if bitmap, ok := f.index[p]; ok {
			ids.Or(bitmap)
		}
	}
	return positions, ids.ToArray()
}

// Walk traverses the field quadtree. The tree must not be retained or
// modified from fn.
func (f *Field) Walk(fn func(*quadtree.Node) bool) {
	f.treeMutex.RLock()
	defer f.treeMutex.RUnlock()

	f.tree.Walk(fn)
}

// Snapshot returns the nodes of the field quadtree and its summary.
func (f *Field) Snapshot() ([]quadtree.NodeInfo, quadtree.DebugInfo) {
	f.treeMutex.RLock()
	defer f.treeMutex.RUnlock()

	return f.tree.Nodes(), f.tree.DebugInfo()
}

func (f *Field) DebugInfo() quadtree.DebugInfo {
	f.treeMutex.RLock()
	defer f.treeMutex.RUnlock()

	return f.tree.DebugInfo()
}

func (f *Field) randomColor() Color {
	return RandomColor(f.rng)
}

func (f *Field) indexEntity(e *Entity) {
	bitmap, ok := f.index[e.position]
	if !ok {
		bitmap = roaring.New()
		f.index[e.position] = bitmap
	}
	bitmap.Add(e.ID)
}

func (f *Field) addEntity(e *Entity) {
	f.entityMutex.Lock()
	defer f.entityMutex.Unlock()

	f.entities[e.ID] = e
}

func (f *Field) EntityByID(id uint32) (*Entity, bool) {
	f.entityMutex.RLock()
	defer f.entityMutex.RUnlock()

	e, ok := f.entities[id]
	return e, ok
}

// Entities returns the field entities ordered by id.
func (f *Field) Entities() []*Entity {
	f.entityMutex.RLock()
	defer f.entityMutex.RUnlock()

	entities := make([]*Entity, 0, len(f.entities))
	for _, e := range f.entities {
		entities = append(entities, e)
	}

	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ID < entities[j].ID
	})
	return entities
}

func (f *Field) EntityCount() int {
	f.entityMutex.RLock()
	defer f.entityMutex.RUnlock()

	return len(f.entities)
}

func (f *Field) NewParticipantID() uint32 {
	return f.participantIDs.New()
}

func (f *Field) AddParticipant(p *Participant) {
	f.participantMutex.Lock()
	defer f.participantMutex.Unlock()

	f.participants[p.ID] = p
}

func (f *Field) RemoveParticipant(p *Participant) {
	f.participantMutex.Lock()
	defer f.participantMutex.Unlock()

	delete(f.participants, p.ID)
	f.participantIDs.Reuse(p.ID)
}

// Participants returns the field participants ordered by id.
func (f *Field) Participants() []*Participant {
	f.participantMutex.RLock()
	defer f.participantMutex.RUnlock()

	participants := make([]*Participant, 0, len(f.participants))
	for _, p := range f.participants {
		participants = append(participants, p)
	}

	sort.Slice(participants, func(i, j int) bool {
		return participants[i].ID < participants[j].ID
	})
	return participants
}

func (f *Field) ParticipantCount() int {
	f.participantMutex.RLock()
	defer f.participantMutex.RUnlock()

	return len(f.participants)
}

// Broadcast sends the payload to every participant but the sender.
func (f *Field) Broadcast(sender *Participant, p messages.Payload) {
	msg, err := messages.MsgFromPayload(p)
	if err != nil {
		logs.WithTag("msg_type", p.MsgType()).Debug(err)
		return
	}

	f.participantMutex.RLock()
	defer f.participantMutex.RUnlock()

	for _, participant := range f.participants {
		if participant == sender {
			continue
		}
		participant.Responder.SendMsg(msg)
	}
}

func newFieldClosedError(id uint32) error {
	return errors.New("field is closed").
		WithType(ErrTypeFieldClosed).
		WithTag("field_id", id)
}

type FieldStore struct {
	// The id of the server, prefixed to global field ids.
	ServerID string

	// The maximum number of fields. Zero means no limit.
	MaxFields int

	initOnce sync.Once
	mutex    sync.RWMutex
	fields   map[string]*Field
	ids      SequentialIDGenerator
}

func (s *FieldStore) init() {
	s.fields = map[string]*Field{}

	if s.ServerID == "" {
		s.ServerID = "qf"
	}
}

func (s *FieldStore) NewID() uint32 {
	return s.ids.New()
}

func (s *FieldStore) Add(ctx context.Context, field *Field) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.MaxFields > 0 && len(s.fields) >= s.MaxFields {
		return errors.New("field limit reached").
			WithType(ErrTypeFieldLimitReached).
			WithTag("max_fields", s.MaxFields)
	}

	s.fields[s.GlobalFieldID(field.ID)] = field

	instrumentIncreaseFieldGauge()
	instrumentCountField()
	return nil
}

func (s *FieldStore) Remove(ctx context.Context, field *Field) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := s.GlobalFieldID(field.ID)
	if _, ok := s.fields[id]; !ok {
		return
	}

	delete(s.fields, id)
	field.Close()
	s.ids.Reuse(field.ID)

	instrumentDecreaseFieldGauge()
}

func (s *FieldStore) GetByGlobalID(v string) (*Field, bool) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	field, ok := s.fields[v]
	return field, ok
}

// List returns the stored fields ordered by id.
func (s *FieldStore) List() []*Field {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	fields := make([]*Field, 0, len(s.fields))
	for _, f := range s.fields {
		fields = append(fields, f)
	}

	sort.Slice(fields, func(i, j int) bool {
		return fields[i].ID < fields[j].ID
	})
	return fields
}

func (s *FieldStore) Count() int {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.fields)
}

func (s *FieldStore) GlobalFieldID(fieldID uint32) string {
	s.initOnce.Do(s.init)
	return fmt.Sprintf("%sx%x", s.ServerID, fieldID)
}
