package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Fake is an in-memory guild used by tests and by the server's dry-run mode.
// Drift is injected through the Add/Delete/SetTopic/Grant helpers; every
// mutating call is appended to an op log so tests can assert both counts and
// ordering (e.g. revoke-before-grant on movement).
type Fake struct {
	mu     sync.Mutex
	nextID int

	categories map[string]Category
	channels   map[string]*Channel
	members    []Member
	bots       map[string]bool

	ops       []string
	announces []string

	// Failure injection.
	TopologyErr   error
	CreateErr     error
	VisibilityErr map[string]error // keyed by user id
}

func NewFake() *Fake {
	return &Fake{
		categories: make(map[string]Category),
		channels:   make(map[string]*Channel),
		bots:       make(map[string]bool),
	}
}

func (f *Fake) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

// AddCategory injects a pre-existing category.
func (f *Fake) AddCategory(name string) Category {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := Category{ID: f.id("cat"), Name: name}
	f.categories[c.ID] = c
	return c
}

// AddChannel injects a pre-existing channel.
func (f *Fake) AddChannel(categoryID, name, topic string, voice bool) Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &Channel{
		ID:         f.id("ch"),
		Name:       name,
		CategoryID: categoryID,
		Topic:      topic,
		Voice:      voice,
		Viewers:    make(map[string]bool),
	}
	f.channels[ch.ID] = ch
	return *ch
}

// DeleteChannel simulates an operator deleting a channel out from under us.
func (f *Fake) DeleteChannel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, id)
}

// SetTopic simulates a manual topic edit.
func (f *Fake) SetTopic(id, topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[id]; ok {
		ch.Topic = topic
	}
}

// Grant injects a pre-existing view overwrite.
func (f *Fake) Grant(channelID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[channelID]; ok {
		ch.Viewers[userID] = true
	}
}

func (f *Fake) AddMember(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members = append(f.members, Member{ID: id, Name: name})
}

func (f *Fake) AddBot(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members = append(f.members, Member{ID: id, Name: name})
	f.bots[id] = true
}

// Viewers returns the user ids with an explicit view grant on a channel.
func (f *Fake) Viewers(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return nil
	}
	var out []string
	for id := range ch.Viewers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Ops returns the mutation log since the last ResetOps.
func (f *Fake) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *Fake) ResetOps() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = f.ops[:0]
}

// Announcements returns every console message posted so far.
func (f *Fake) Announcements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.announces...)
}

func (f *Fake) Topology(ctx context.Context) (Topology, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TopologyErr != nil {
		return Topology{}, f.TopologyErr
	}
	var t Topology
	for _, c := range f.categories {
		t.Categories = append(t.Categories, c)
	}
	sort.Slice(t.Categories, func(i, j int) bool { return t.Categories[i].ID < t.Categories[j].ID })
	for _, ch := range f.channels {
		cp := *ch
		cp.Viewers = make(map[string]bool, len(ch.Viewers))
		for k, v := range ch.Viewers {
			cp.Viewers[k] = v
		}
		t.Channels = append(t.Channels, cp)
	}
	sort.Slice(t.Channels, func(i, j int) bool { return t.Channels[i].ID < t.Channels[j].ID })
	return t, nil
}

func (f *Fake) CreateCategory(ctx context.Context, name string) (Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return Category{}, f.CreateErr
	}
	c := Category{ID: f.id("cat"), Name: name}
	f.categories[c.ID] = c
	f.ops = append(f.ops, "create_category:"+name)
	return c, nil
}

func (f *Fake) CreateTextChannel(ctx context.Context, categoryID, name, topic string) (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return Channel{}, f.CreateErr
	}
	ch := &Channel{
		ID:         f.id("ch"),
		Name:       name,
		CategoryID: categoryID,
		Topic:      topic,
		Viewers:    make(map[string]bool),
	}
	f.channels[ch.ID] = ch
	f.ops = append(f.ops, "create_text:"+name)
	return *ch, nil
}

func (f *Fake) CreateVoiceChannel(ctx context.Context, categoryID, name string) (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return Channel{}, f.CreateErr
	}
	ch := &Channel{
		ID:         f.id("ch"),
		Name:       name,
		CategoryID: categoryID,
		Voice:      true,
		Viewers:    make(map[string]bool),
	}
	f.channels[ch.ID] = ch
	f.ops = append(f.ops, "create_voice:"+name)
	return *ch, nil
}

func (f *Fake) EditTopic(ctx context.Context, channelID, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return fmt.Errorf("no such channel %s", channelID)
	}
	ch.Topic = topic
	f.ops = append(f.ops, "edit_topic:"+ch.Name)
	return nil
}

func (f *Fake) SetVisibility(ctx context.Context, channelID, userID string, visible bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.VisibilityErr[userID]; err != nil {
		return err
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return fmt.Errorf("no such channel %s", channelID)
	}
	if visible {
		ch.Viewers[userID] = true
		f.ops = append(f.ops, fmt.Sprintf("grant:%s:%s", ch.Name, userID))
	} else {
		delete(ch.Viewers, userID)
		f.ops = append(f.ops, fmt.Sprintf("revoke:%s:%s", ch.Name, userID))
	}
	return nil
}

func (f *Fake) Members(ctx context.Context) ([]Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Member
	for _, m := range f.members {
		if f.bots[m.ID] {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *Fake) Announce(ctx context.Context, channelName, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announces = append(f.announces, channelName+": "+message)
	return nil
}
