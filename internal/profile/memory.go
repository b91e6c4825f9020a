package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"careerlens/internal/domain"
)

// MemoryStore keeps profiles in process. It is used when no database is
// configured.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]any)}
}

func (m *MemoryStore) Get(_ context.Context, uid string) (domain.UserProfile, bool, error) {
	m.mu.Lock()
	doc, ok := m.docs[uid]
	var raw []byte
	var err error
	if ok {
		raw, err = json.Marshal(doc)
	}
	m.mu.Unlock()

	if !ok {
		return domain.UserProfile{}, false, nil
	}
	if err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("encode profile: %w", err)
	}
	p := domain.DefaultProfile(time.Time{})
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("decode profile: %w", err)
	}
	return p, true, nil
}

func (m *MemoryStore) Upsert(_ context.Context, uid string, fields map[string]any, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[uid]
	if !ok {
		doc = map[string]any{"createdAt": now}
		m.docs[uid] = doc
	}
	for k, v := range fields {
		doc[k] = v
	}
	doc["updatedAt"] = now
	return nil
}
