package memory

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/model"
)

const (
	defaultMaxParticipants = 50
	defaultOfficialRoomID  = "official"
	defaultOfficialName    = "Official live room"

	userRoomPrefix = "user-"
)

var (
	ErrRoomIsFull     = errors.New("room is full")
	ErrRoomNotFound   = errors.New("room is not found")
	ErrPublishDenied  = errors.New("user is not allowed to publish in this room")
	ErrNotAMember     = errors.New("user is not a member of this room")
	ErrEmptyCreator   = errors.New("room creator is empty")
	ErrEmptyUserID    = errors.New("user id is empty")
	ErrOfficialCreate = errors.New("official room cannot be created by users")
)

type Config struct {
	OfficialRoomID  string
	OfficialHosts   []string
	MaxParticipants int
	Now             func() time.Time
}

type MemStore struct {
	mx         *sync.Mutex
	db         map[string]*model.Room
	hosts      map[string]struct{}
	officialID string
	maxMembers int
	now        func() time.Time
}

func NewMemStore(cfg Config) *MemStore {
	ms := &MemStore{
		mx:         &sync.Mutex{},
		db:         make(map[string]*model.Room),
		hosts:      make(map[string]struct{}, len(cfg.OfficialHosts)),
		officialID: cfg.OfficialRoomID,
		maxMembers: cfg.MaxParticipants,
		now:        cfg.Now,
	}
	if ms.officialID == "" {
		ms.officialID = defaultOfficialRoomID
	}
	if ms.maxMembers <= 0 {
		ms.maxMembers = defaultMaxParticipants
	}
	if ms.now == nil {
		ms.now = time.Now
	}
	for _, h := range cfg.OfficialHosts {
		ms.hosts[strings.ToLower(h)] = struct{}{}
	}

	ms.db[ms.officialID] = &model.Room{
		ID:           ms.officialID,
		Name:         defaultOfficialName,
		Type:         model.RoomTypeOfficial,
		CreatedAt:    ms.now(),
		Participants: make(map[string]model.Participant),
	}
	return ms
}

// CreateRoom registers a new user room owned by creator. Room ids follow
// the user-<epoch-ms> scheme; a colliding id is bumped to the next free millisecond.
func (ms *MemStore) CreateRoom(creator, name string) (*model.Room, error) {
	if creator == "" {
		return nil, ErrEmptyCreator
	}
	ms.mx.Lock()
	defer ms.mx.Unlock()

	now := ms.now()
	stamp := now.UnixMilli()
	id := userRoomPrefix + strconv.FormatInt(stamp, 10)
	for {
		if _, ok := ms.db[id]; !ok {
			break
		}
		stamp++
		id = userRoomPrefix + strconv.FormatInt(stamp, 10)
	}
	if id == ms.officialID {
		return nil, ErrOfficialCreate
	}
	if name == "" {
		name = id
	}

	room := &model.Room{
		ID:           id,
		Name:         name,
		Type:         model.RoomTypeUser,
		Creator:      creator,
		CreatedAt:    now,
		Participants: make(map[string]model.Participant),
	}
	ms.db[id] = room
	return clone(room), nil
}

func (ms *MemStore) JoinRoom(roomID, userID string, publisher bool) (*model.Room, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if publisher && !ms.canPublish(room, userID) {
		return nil, ErrPublishDenied
	}

	p, member := room.Participants[userID]
	if !member && len(room.Participants) >= ms.maxMembers {
		return nil, ErrRoomIsFull
	}
	p.ID = userID
	p.Publisher = publisher
	room.Participants[userID] = p
	return clone(room), nil
}

func (ms *MemStore) canPublish(room *model.Room, userID string) bool {
	switch room.Type {
	case model.RoomTypeOfficial:
		_, ok := ms.hosts[strings.ToLower(userID)]
		return ok
	default:
		return strings.EqualFold(room.Creator, userID)
	}
}

// SetOnline flips the presence flag of an admitted member.
func (ms *MemStore) SetOnline(roomID, userID string, online bool) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	p, ok := room.Participants[userID]
	if !ok {
		return ErrNotAMember
	}
	p.Online = online
	room.Participants[userID] = p
	return nil
}

func (ms *MemStore) GetRoom(roomID string) (*model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return clone(room), nil
}

// ListRooms returns the official room first, then user rooms oldest first.
func (ms *MemStore) ListRooms() []model.RoomInfo {
	ms.mx.Lock()
	infos := make([]model.RoomInfo, 0, len(ms.db))
	for _, room := range ms.db {
		infos = append(infos, room.Info())
	}
	ms.mx.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		oi, oj := infos[i].Type == model.RoomTypeOfficial, infos[j].Type == model.RoomTypeOfficial
		if oi != oj {
			return oi
		}
		if infos[i].CreatedAt != infos[j].CreatedAt {
			return infos[i].CreatedAt < infos[j].CreatedAt
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

func clone(room *model.Room) *model.Room {
	cp := *room
	cp.Participants = make(map[string]model.Participant, len(room.Participants))
	for id, p := range room.Participants {
		cp.Participants[id] = p
	}
	return &cp
}
