// internal/chat/fake.go
package chat

import (
	"context"
	"fmt"
	"sync"
)

// FakeGateway is an in-memory Gateway for tests. It records every call and
// hands out sequential ids; per-operation error hooks simulate failures.
type FakeGateway struct {
	mu     sync.Mutex
	nextID int64

	Cards       map[int64]Card      // message id -> last card content
	CardChannel map[int64]int64     // message id -> channel id
	Threads     map[int64]string    // thread id -> name
	ThreadMsgs  map[int64][]string  // thread id -> posted messages
	Controls    map[int64]ControlState // control message id -> last state
	Locked      map[int64]bool
	Deleted     map[int64]bool

	Calls []string

	// FailOn maps an operation name (e.g. "LockAndArchive") to an error
	// returned on every call until cleared.
	FailOn map[string]error

	// AuditActor is returned by ReadAuditTrail for any target.
	AuditActor string
}

// NewFakeGateway creates an empty fake.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		nextID:      1000,
		Cards:       make(map[int64]Card),
		CardChannel: make(map[int64]int64),
		Threads:     make(map[int64]string),
		ThreadMsgs:  make(map[int64][]string),
		Controls:    make(map[int64]ControlState),
		Locked:      make(map[int64]bool),
		Deleted:     make(map[int64]bool),
		FailOn:      make(map[string]error),
	}
}

func (f *FakeGateway) record(op string, args ...interface{}) error {
	f.Calls = append(f.Calls, fmt.Sprintf("%s%v", op, args))
	if err, ok := f.FailOn[op]; ok {
		return err
	}
	return nil
}

func (f *FakeGateway) id() int64 {
	f.nextID++
	return f.nextID
}

// CallCount returns how many recorded calls start with op.
func (f *FakeGateway) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if len(c) >= len(op) && c[:len(op)] == op {
			n++
		}
	}
	return n
}

func (f *FakeGateway) PostCard(_ context.Context, channelID int64, card Card) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("PostCard", channelID); err != nil {
		return 0, err
	}
	id := f.id()
	f.Cards[id] = card
	f.CardChannel[id] = channelID
	return id, nil
}

func (f *FakeGateway) EditCard(_ context.Context, channelID, messageID int64, card Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("EditCard", channelID, messageID); err != nil {
		return err
	}
	f.Cards[messageID] = card
	return nil
}

func (f *FakeGateway) MessageExists(_ context.Context, channelID, messageID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("MessageExists", channelID, messageID); err != nil {
		return false, err
	}
	if f.Deleted[messageID] {
		return false, nil
	}
	_, ok := f.Cards[messageID]
	return ok, nil
}

func (f *FakeGateway) CreateThread(_ context.Context, channelID, messageID int64, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateThread", channelID, messageID, name); err != nil {
		return 0, err
	}
	id := f.id()
	f.Threads[id] = name
	return id, nil
}

func (f *FakeGateway) PostThreadMessage(_ context.Context, threadID int64, text string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("PostThreadMessage", threadID); err != nil {
		return 0, err
	}
	f.ThreadMsgs[threadID] = append(f.ThreadMsgs[threadID], text)
	return f.id(), nil
}

func (f *FakeGateway) LockAndArchive(_ context.Context, threadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("LockAndArchive", threadID); err != nil {
		return err
	}
	f.Locked[threadID] = true
	return nil
}

func (f *FakeGateway) DeleteThread(_ context.Context, threadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteThread", threadID); err != nil {
		return err
	}
	delete(f.Threads, threadID)
	f.Deleted[threadID] = true
	return nil
}

func (f *FakeGateway) PostControls(_ context.Context, threadID int64, state ControlState) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("PostControls", threadID); err != nil {
		return 0, err
	}
	id := f.id()
	f.Controls[id] = state
	return id, nil
}

func (f *FakeGateway) EditControls(_ context.Context, threadID, controlMessageID int64, state ControlState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("EditControls", threadID, controlMessageID); err != nil {
		return err
	}
	f.Controls[controlMessageID] = state
	return nil
}

func (f *FakeGateway) DisableControls(_ context.Context, threadID, controlMessageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DisableControls", threadID, controlMessageID); err != nil {
		return err
	}
	state := f.Controls[controlMessageID]
	state.Disabled = true
	f.Controls[controlMessageID] = state
	return nil
}

func (f *FakeGateway) ReadAuditTrail(_ context.Context, guildID, targetID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ReadAuditTrail", guildID, targetID); err != nil {
		return "", err
	}
	return f.AuditActor, nil
}
