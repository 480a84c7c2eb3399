package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

// fakePlatform implementa Platform en memoria y graba cada llamada.
type fakePlatform struct {
	mu sync.Mutex

	// verificación por canal; si hay secuencia, se consume primero
	verifs   map[string]Verification
	verifSeq map[string][]Verification

	names        map[string]string
	renames      []string                   // "canal=nombre"
	grants       map[string]map[string]bool // canal -> user -> esOwner
	locked       map[string]bool
	deleted      []string
	moved        []string // "user->canal"
	disconnected []string
	notMembers   map[string]bool // users que ya no están en el guild
	catChannels  []ChannelInfo
	createdIDs   []string
	nextID       int
	failCreate   bool
	failGrant    bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		verifs:     map[string]Verification{},
		verifSeq:   map[string][]Verification{},
		names:      map[string]string{},
		grants:     map[string]map[string]bool{},
		locked:     map[string]bool{},
		notMembers: map[string]bool{},
	}
}

func (f *fakePlatform) setVerify(id string, v Verification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifs[id] = v
}

func (f *fakePlatform) pushVerify(id string, vs ...Verification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifSeq[id] = append(f.verifSeq[id], vs...)
}

func existsWith(members ...Member) Verification {
	return Verification{Outcome: VerifyExists, Members: members}
}

func (f *fakePlatform) Verify(ctx context.Context, channelID string) Verification {
	f.mu.Lock()
	defer f.mu.Unlock()
	if seq := f.verifSeq[channelID]; len(seq) > 0 {
		v := seq[0]
		if len(seq) > 1 {
			f.verifSeq[channelID] = seq[1:]
		}
		return v
	}
	if v, ok := f.verifs[channelID]; ok {
		return v
	}
	return Verification{Outcome: VerifyDeleted}
}

func (f *fakePlatform) CreateVoice(ctx context.Context, guildID string, p CreateVoiceParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return "", errors.New("create roto")
	}
	f.nextID++
	id := "vc-" + strconv.Itoa(f.nextID)
	f.createdIDs = append(f.createdIDs, id)
	f.names[id] = p.Name
	f.locked[id] = p.LockDefault
	f.grants[id] = map[string]bool{p.OwnerID: true}
	f.verifs[id] = existsWith()
	return id, nil
}

func (f *fakePlatform) DeleteChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID)
	f.verifs[channelID] = Verification{Outcome: VerifyDeleted}
	return nil
}

func (f *fakePlatform) RenameChannel(ctx context.Context, channelID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names[channelID] = name
	f.renames = append(f.renames, channelID+"="+name)
	return nil
}

func (f *fakePlatform) ChannelName(ctx context.Context, channelID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.names[channelID]; ok {
		return n, nil
	}
	return "", domain.ErrNotFound
}

func (f *fakePlatform) EditVoice(ctx context.Context, channelID string, userLimit, bitrate int) error {
	return nil
}

func (f *fakePlatform) LockDefault(ctx context.Context, guildID, channelID string, deny bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked[channelID] = deny
	return nil
}

func (f *fakePlatform) GrantMember(ctx context.Context, channelID, userID string, owner bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGrant {
		return errors.New("grant roto")
	}
	if f.grants[channelID] == nil {
		f.grants[channelID] = map[string]bool{}
	}
	f.grants[channelID][userID] = owner
	return nil
}

func (f *fakePlatform) RevokeMember(ctx context.Context, channelID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.grants[channelID], userID)
	return nil
}

func (f *fakePlatform) HasMemberGrant(ctx context.Context, channelID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.grants[channelID][userID]
	return ok, nil
}

func (f *fakePlatform) hasGrant(channelID, userID string) bool {
	ok, _ := f.HasMemberGrant(context.Background(), channelID, userID)
	return ok
}

func (f *fakePlatform) MoveMember(ctx context.Context, guildID, userID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moved = append(f.moved, userID+"->"+channelID)
	return nil
}

func (f *fakePlatform) DisconnectMember(ctx context.Context, guildID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, userID)
	return nil
}

func (f *fakePlatform) IsGuildMember(ctx context.Context, guildID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.notMembers[userID], nil
}

func (f *fakePlatform) ListCategoryVoice(ctx context.Context, guildID, categoryID string) ([]ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.catChannels, nil
}

func (f *fakePlatform) wasDeleted(channelID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.deleted {
		if id == channelID {
			return true
		}
	}
	return false
}

// fakeNotifier graba mensajes y devuelve ids incrementales.
type fakeNotifier struct {
	mu sync.Mutex

	nextID       int
	hubPosts     []string // roomIDs
	hubDeletes   []string // messageIDs
	hubExisting  map[string]string
	threads      []string // roomIDs
	rehomes      []string // roomIDs
	knockMsgs    []string // "room:user"
	msgDeletes   []string
	pings        []string // "room:user"
	dms          []string // "user:texto"
	failKnock    bool
	panicDisplay bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{hubExisting: map[string]string{}}
}

func (f *fakeNotifier) id(prefix string) string {
	f.nextID++
	return prefix + "-" + strconv.Itoa(f.nextID)
}

func (f *fakeNotifier) PostHubMessage(ctx context.Context, room *domain.Room) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hubPosts = append(f.hubPosts, room.ID)
	return f.id("hubmsg"), nil
}

func (f *fakeNotifier) DeleteHubMessage(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hubDeletes = append(f.hubDeletes, messageID)
	return nil
}

func (f *fakeNotifier) ListHubMessages(ctx context.Context, guildID string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.hubExisting {
		out[k] = v
	}
	return out, nil
}

func (f *fakeNotifier) CreateThread(ctx context.Context, room *domain.Room) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads = append(f.threads, room.ID)
	return f.id("thread"), f.id("panel"), nil
}

func (f *fakeNotifier) DeleteThread(ctx context.Context, threadID string) error { return nil }

func (f *fakeNotifier) RehomeThread(ctx context.Context, room *domain.Room, oldOwnerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rehomes = append(f.rehomes, room.ID)
	return f.id("panel"), nil
}

func (f *fakeNotifier) ThreadAddUser(ctx context.Context, threadID, userID string) error { return nil }

func (f *fakeNotifier) ThreadRemoveUser(ctx context.Context, threadID, userID string) error {
	return nil
}

func (f *fakeNotifier) NotifyKnock(ctx context.Context, room *domain.Room, requesterID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKnock {
		return "", errors.New("thread roto")
	}
	f.knockMsgs = append(f.knockMsgs, room.ID+":"+requesterID)
	return f.id("knock"), nil
}

func (f *fakeNotifier) DeleteThreadMessage(ctx context.Context, threadID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgDeletes = append(f.msgDeletes, messageID)
	return nil
}

func (f *fakeNotifier) PingOwner(ctx context.Context, room *domain.Room, requesterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings = append(f.pings, room.ID+":"+requesterID)
	return nil
}

func (f *fakeNotifier) DM(ctx context.Context, userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms = append(f.dms, userID+":"+content)
	return nil
}

func (f *fakeNotifier) DisplayName(guildID, userID string) string {
	f.mu.Lock()
	pd := f.panicDisplay
	f.mu.Unlock()
	if pd {
		panic("display roto")
	}
	return "tester-" + userID
}

func (f *fakeNotifier) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pings)
}

// fakeRoomRepo guarda salas en memoria.
type fakeRoomRepo struct {
	mu      sync.Mutex
	rows    map[string]domain.Room
	upserts int
	deletes int
	failing bool
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rows: map[string]domain.Room{}}
}

func (f *fakeRoomRepo) Upsert(ctx context.Context, rm domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("db caída")
	}
	f.rows[rm.ID] = rm
	f.upserts++
	return nil
}

func (f *fakeRoomRepo) Get(ctx context.Context, id string) (domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rm, ok := f.rows[id]
	if !ok {
		return domain.Room{}, domain.ErrNotFound
	}
	return rm, nil
}

func (f *fakeRoomRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("db caída")
	}
	delete(f.rows, id)
	f.deletes++
	return nil
}

func (f *fakeRoomRepo) ListAll(ctx context.Context) ([]domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Room
	for _, rm := range f.rows {
		out = append(out, rm)
	}
	return out, nil
}

func (f *fakeRoomRepo) TouchOccupied(ctx context.Context, id string, t time.Time) error {
	return nil
}

func (f *fakeRoomRepo) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[id]
	return ok
}

// fakeConfigRepo es el key/value en memoria.
type fakeConfigRepo struct {
	mu   sync.Mutex
	rows map[string]string
}

func newFakeConfigRepo() *fakeConfigRepo { return &fakeConfigRepo{rows: map[string]string{}} }

func (f *fakeConfigRepo) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.rows[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (f *fakeConfigRepo) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[key] = value
	return nil
}

func (f *fakeConfigRepo) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, key)
	return nil
}

// fakePresetRepo en memoria, clave owner+"|"+name.
type fakePresetRepo struct {
	mu   sync.Mutex
	rows map[string]domain.Preset
}

func newFakePresetRepo() *fakePresetRepo { return &fakePresetRepo{rows: map[string]domain.Preset{}} }

func (f *fakePresetRepo) Upsert(ctx context.Context, ownerID string, p domain.Preset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[ownerID+"|"+p.Name] = p
	return nil
}

func (f *fakePresetRepo) Get(ctx context.Context, ownerID, name string) (domain.Preset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[ownerID+"|"+name]
	if !ok {
		return domain.Preset{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakePresetRepo) Delete(ctx context.Context, ownerID, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[ownerID+"|"+name]
	delete(f.rows, ownerID+"|"+name)
	return ok, nil
}

func (f *fakePresetRepo) ListNames(ctx context.Context, ownerID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.rows {
		if len(k) > len(ownerID) && k[:len(ownerID)] == ownerID {
			out = append(out, k[len(ownerID)+1:])
		}
	}
	return out, nil
}

func (f *fakePresetRepo) Count(ctx context.Context, ownerID string) (int, error) {
	names, _ := f.ListNames(ctx, ownerID)
	return len(names), nil
}

// newTestStack arma el wiring completo de servicios sobre los fakes.
type testStack struct {
	reg      *Registry
	tasks    *Tasks
	saver    *Saver
	platform *fakePlatform
	notif    *fakeNotifier
	repo     *fakeRoomRepo
	cfg      *fakeConfigRepo
	presets  *fakePresetRepo
	knocks   *KnockService
	hub      *HubNameService
	transfer *TransferService
	rooms    *RoomService
	cancel   context.CancelFunc
}

func newTestStack(t interface{ Cleanup(func()) }) *testStack {
	ctx, cancel := context.WithCancel(context.Background())

	st := &testStack{
		reg:      NewRegistry(),
		platform: newFakePlatform(),
		notif:    newFakeNotifier(),
		repo:     newFakeRoomRepo(),
		cfg:      newFakeConfigRepo(),
		presets:  newFakePresetRepo(),
		cancel:   cancel,
	}
	st.tasks = NewTasks(ctx)
	st.saver = NewSaver(st.reg, st.repo)
	st.knocks = NewKnockService(st.reg, st.platform, st.notif)
	st.hub = NewHubNameService(st.reg, st.platform, st.notif, st.cfg, func(string) string { return "hub-voice" })
	st.hub.Start(ctx)
	st.transfer = NewTransferService(st.reg, st.tasks, st.platform, st.notif, st.hub, st.saver)
	st.rooms = NewRoomService(st.reg, st.tasks, st.saver, st.platform, st.notif, st.knocks, st.hub, st.transfer, st.presets, Surfaces{
		GuildID:         "g1",
		CategoryID:      "cat1",
		LockedTriggerID: "hub-voice",
		BasicTriggerID:  "basic-voice",
	})
	st.platform.names["hub-voice"] = hubIdleName

	t.Cleanup(func() {
		cancel()
		st.tasks.Shutdown()
	})
	return st
}

func lockedRoom(id, owner string) domain.Room {
	return domain.Room{
		ID:               id,
		GuildID:          "g1",
		OwnerID:          owner,
		Mode:             domain.ModeLocked,
		ThreadID:         "thread-" + id,
		HubMessageID:     "hubmsg-" + id,
		CreatedAt:        time.Now(),
		LastSeenOccupied: time.Now(),
	}
}
