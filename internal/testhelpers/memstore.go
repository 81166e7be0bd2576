package testhelpers

import (
	"context"
	"sort"
	"sync"
	"time"

	"pix-gateway/internal/db"
	"pix-gateway/internal/model"

	"github.com/google/uuid"
)

// MemStore is an in-memory stand-in for the Postgres repositories.
type MemStore struct {
	mu           sync.Mutex
	transactions map[string]model.Transaction
	settings     map[string]string
	tokens       []model.CachedToken
	merchants    map[uuid.UUID]model.Merchant
	nextTokenID  int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		transactions: map[string]model.Transaction{},
		settings:     map[string]string{},
		merchants:    map[uuid.UUID]model.Merchant{},
	}
}

func settingKey(key string, merchantID *uuid.UUID) string {
	if merchantID == nil {
		return key + "@global"
	}
	return key + "@" + merchantID.String()
}

func (s *MemStore) Get(_ context.Context, key string, merchantID *uuid.UUID) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.settings[settingKey(key, merchantID)]
	return value, ok, nil
}

func (s *MemStore) Set(_ context.Context, key, value string, merchantID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settingKey(key, merchantID)] = value
	return nil
}

func (s *MemStore) AddMerchant(name string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.merchants[id] = model.Merchant{ID: id, Name: name, CreatedAt: time.Now()}
	return id
}

func (s *MemStore) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.merchants[id]
	return ok, nil
}

func (s *MemStore) Latest(_ context.Context, acquirer model.Acquirer, scope string) (*model.CachedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *model.CachedToken
	for i := range s.tokens {
		token := s.tokens[i]
		if token.Acquirer != acquirer || token.Scope != scope {
			continue
		}
		if latest == nil || !token.ExpiresAt.Before(latest.ExpiresAt) {
			latest = &token
		}
	}
	return latest, nil
}

func (s *MemStore) Insert(_ context.Context, token *model.CachedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTokenID++
	token.ID = s.nextTokenID
	token.CreatedAt = time.Now()
	s.tokens = append(s.tokens, *token)
	return nil
}

func (s *MemStore) Tokens() []model.CachedToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.CachedToken(nil), s.tokens...)
}

// EventLog collects monitoring events in memory.
type EventLog struct {
	mu     sync.Mutex
	events []model.AcquirerEvent
}

func (l *EventLog) Insert(_ context.Context, event *model.AcquirerEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	event.ID = int64(len(l.events) + 1)
	event.CreatedAt = time.Now()
	l.events = append(l.events, *event)
	return nil
}

func (l *EventLog) Events() []model.AcquirerEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.AcquirerEvent(nil), l.events...)
}

func (l *EventLog) Kinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	kinds := make([]string, 0, len(l.events))
	for _, event := range l.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func (s *MemStore) conflicts(tx *model.Transaction) bool {
	if _, ok := s.transactions[tx.Txid]; ok {
		return true
	}
	return tx.ExternalRef != "" && s.referenced(tx.ExternalRef)
}

func (s *MemStore) referenced(ref string) bool {
	for _, existing := range s.transactions {
		if existing.Txid == ref || (existing.ExternalRef != "" && existing.ExternalRef == ref) {
			return true
		}
	}
	return false
}

func (s *MemStore) Create(_ context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(tx) {
		return db.ErrDuplicate
	}
	s.transactions[tx.Txid] = *tx
	return nil
}

func (s *MemStore) CreateIfAbsent(_ context.Context, tx *model.Transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(tx) {
		return false, nil
	}
	s.transactions[tx.Txid] = *tx
	return true, nil
}

func (s *MemStore) GetByTxid(_ context.Context, txid string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[txid]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &tx, nil
}

func (s *MemStore) ExistsByReference(_ context.Context, refs ...string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range refs {
		if s.referenced(ref) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) ListPending(_ context.Context, limit int) ([]*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*model.Transaction
	for _, tx := range s.transactions {
		if tx.Status == model.StatusGenerated && tx.PaidAt == nil {
			tx := tx
			pending = append(pending, &tx)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.After(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *MemStore) MarkPaid(_ context.Context, txid string, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[txid]
	if !ok {
		return false, db.ErrNotFound
	}
	if tx.Status != model.StatusGenerated {
		return false, nil
	}
	tx.Status = model.StatusPaid
	tx.PaidAt = &paidAt
	s.transactions[txid] = tx
	return true, nil
}

func (s *MemStore) MarkExpired(_ context.Context, txid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[txid]
	if !ok {
		return false, db.ErrNotFound
	}
	if tx.Status != model.StatusGenerated {
		return false, nil
	}
	tx.Status = model.StatusExpired
	s.transactions[txid] = tx
	return true, nil
}

func (s *MemStore) Transactions() []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]model.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		all = append(all, tx)
	}
	return all
}
