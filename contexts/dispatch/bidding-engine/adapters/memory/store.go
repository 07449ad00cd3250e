// Package memory provides an in-memory adapter for tests and local
// development, implementing the bidding engine's repository ports without
// a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
	domainerrors "porterdispatch/contexts/dispatch/bidding-engine/domain/errors"
	"porterdispatch/contexts/dispatch/bidding-engine/ports"
)

type idempotencyRecord struct {
	payloadHash string
	payload []byte
	expiresAt time.Time
}

type outboxRecord struct {
	rec ports.OutboxRecord
	published bool
}

type dedupRecord struct {
	payloadHash string
	expiresAt time.Time
}

// Store is a single in-memory implementation of every port the bidding
// engine's application layer needs, mirroring memory.Store
// shape (one struct, one mutex, per-concern maps).
type Store struct {
	mu sync.RWMutex

	windows map[string]entities.BiddingWindow
	bids map[string]entities.Bid
	audit []entities.BidAuditEvent
	strategies map[string]entities.BidStrategy

	idempotency map[string]idempotencyRecord
	outbox map[string]outboxRecord
	outboxSeq int
	dedup map[string]dedupRecord
}

func NewStore() *Store {
	return &Store{
		windows: make(map[string]entities.BiddingWindow),
		bids: make(map[string]entities.Bid),
		strategies: make(map[string]entities.BidStrategy),
		idempotency: make(map[string]idempotencyRecord),
		outbox: make(map[string]outboxRecord),
		dedup: make(map[string]dedupRecord),
	}
}

func (s *Store) SeedStrategy(strategy entities.BidStrategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies[strategy.StrategyID] = strategy
}

// --- ports.WindowRepository ---

func (s *Store) CreateWindow(ctx context.Context, w entities.BiddingWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[w.WindowID] = w
	return nil
}

func (s *Store) GetWindow(ctx context.Context, windowID string) (entities.BiddingWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[windowID]
	if !ok {
		return entities.BiddingWindow{}, domainerrors.ErrWindowNotFound
	}
	return w, nil
}

func (s *Store) GetWindowByOrder(ctx context.Context, orderID string) (entities.BiddingWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.windows {
		if w.Status == entities.WindowOpen && w.ContainsOrder(orderID) {
			return w, nil
		}
	}
	return entities.BiddingWindow{}, domainerrors.ErrWindowNotFound
}

func (s *Store) UpdateWindowStatus(ctx context.Context, windowID string, status entities.WindowStatus, closedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[windowID]
	if !ok {
		return domainerrors.ErrWindowNotFound
	}
	w.Status = status
	w.ClosedAt = closedAt
	s.windows[windowID] = w
	return nil
}

func (s *Store) ListExpiredOpenWindows(ctx context.Context, asOf time.Time, limit int) ([]entities.BiddingWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entities.BiddingWindow
	for _, w := range s.windows {
		if w.Status == entities.WindowOpen && !w.ExpiresAt.After(asOf) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) PlaceBid(ctx context.Context, b entities.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bids[b.BidID] = b
	return nil
}

func (s *Store) GetBid(ctx context.Context, bidID string) (entities.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bids[bidID]
	if !ok {
		return entities.Bid{}, domainerrors.ErrBidNotFound
	}
	return b, nil
}

func (s *Store) ListBidsByWindow(ctx context.Context, windowID string) ([]entities.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entities.Bid
	for _, b := range s.bids {
		if b.WindowID == windowID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out, nil
}

func (s *Store) ListBidsByPorter(ctx context.Context, porterID string, limit, offset int) ([]entities.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entities.Bid
	for _, b := range s.bids {
		if b.PorterID == porterID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.After(out[j].PlacedAt) })
	if offset > len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountPorterBidsInWindow(ctx context.Context, windowID, porterID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, b := range s.bids {
		if b.WindowID == windowID && b.PorterID == porterID &&
			(b.Status == entities.BidPlacedStatus || b.Status == entities.BidAcceptedStatus) {
			count++
		}
	}
	return count, nil
}

func (s *Store) UpdateBidStatus(ctx context.Context, bidID string, status entities.BidStatus, terminalAt time.Time, acceptedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bids[bidID]
	if !ok {
		return domainerrors.ErrBidNotFound
	}
	b.Status = status
	b.TerminalAt = &terminalAt
	if acceptedBy != "" {
		b.AcceptedBy = acceptedBy
	}
	s.bids[bidID] = b
	return nil
}

func (s *Store) ExpirePendingBidsForWindow(ctx context.Context, windowID string, terminalAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, b := range s.bids {
		if b.WindowID == windowID && b.Status == entities.BidPlacedStatus {
			b.Status = entities.BidExpiredStatus
			b.TerminalAt = &terminalAt
			s.bids[id] = b
			count++
		}
	}
	return count, nil
}

func (s *Store) AppendAudit(ctx context.Context, e entities.BidAuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s *Store) AcceptWinningBid(ctx context.Context, windowID, bidID, acceptedBy string, now time.Time) (entities.Bid, entities.BiddingWindow, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[windowID]
	if !ok {
		return entities.Bid{}, entities.BiddingWindow{}, 0, domainerrors.ErrWindowNotFound
	}
	if w.Status != entities.WindowOpen {
		return entities.Bid{}, entities.BiddingWindow{}, 0, domainerrors.ErrWindowNotOpen
	}
	b, ok := s.bids[bidID]
	if !ok {
		return entities.Bid{}, entities.BiddingWindow{}, 0, domainerrors.ErrBidNotFound
	}
	if b.WindowID != windowID {
		return entities.Bid{}, entities.BiddingWindow{}, 0, domainerrors.ErrBidWrongWindow
	}
	if b.Status != entities.BidPlacedStatus {
		return entities.Bid{}, entities.BiddingWindow{}, 0, domainerrors.ErrBidNotPlaced
	}

	b.Status = entities.BidAcceptedStatus
	b.TerminalAt = &now
	b.AcceptedBy = acceptedBy
	s.bids[bidID] = b

	w.Status = entities.WindowClosed
	w.ClosedAt = &now
	s.windows[windowID] = w

	expiredCount := 0
	for id, other := range s.bids {
		if other.WindowID == windowID && other.BidID != bidID && other.Status == entities.BidPlacedStatus {
			other.Status = entities.BidExpiredStatus
			other.TerminalAt = &now
			s.bids[id] = other
			expiredCount++
		}
	}
	return b, w, expiredCount, nil
}

func (s *Store) CloseAndExpire(ctx context.Context, windowID string, now time.Time) (entities.BiddingWindow, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[windowID]
	if !ok {
		return entities.BiddingWindow{}, 0, domainerrors.ErrWindowNotFound
	}
	w.Status = entities.WindowClosed
	w.ClosedAt = &now
	s.windows[windowID] = w

	count := 0
	for id, b := range s.bids {
		if b.WindowID == windowID && b.Status == entities.BidPlacedStatus {
			b.Status = entities.BidExpiredStatus
			b.TerminalAt = &now
			s.bids[id] = b
			count++
		}
	}
	return w, count, nil
}

// --- ports.StrategyRepository ---

func (s *Store) GetStrategy(ctx context.Context, strategyID string) (entities.BidStrategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	strat, ok := s.strategies[strategyID]
	if !ok {
		return entities.BidStrategy{}, domainerrors.ErrStrategyNotFound
	}
	return strat, nil
}

// --- ports.IdempotencyStore ---

func (s *Store) Get(ctx context.Context, key string) (string, []byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.idempotency[key]
	if !ok || rec.expiresAt.Before(time.Now()) {
		return "", nil, false, nil
	}
	return rec.payloadHash, rec.payload, true, nil
}

func (s *Store) Save(ctx context.Context, key, payloadHash string, resultPayload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idempotency[key] = idempotencyRecord{payloadHash: payloadHash, payload: resultPayload, expiresAt: time.Now().Add(ttl)}
	return nil
}

// --- ports.OutboxWriter / ports.OutboxRepository ---

func (s *Store) WriteOutbox(ctx context.Context, eventType, aggregateID, correlationID, partitionKey string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outboxSeq++
	id := aggregateID + ":" + eventType + ":" + time.Now().Format(time.RFC3339Nano)
	s.outbox[id] = outboxRecord{rec: ports.OutboxRecord{
		ID: id, EventType: eventType, AggregateID: aggregateID,
		CorrelationID: correlationID, PartitionKey: partitionKey,
		Payload: payload, CreatedAt: time.Now(),
	}}
	return nil
}

func (s *Store) ListPending(ctx context.Context, limit int) ([]ports.OutboxRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ports.OutboxRecord
	for _, r := range s.outbox {
		if !r.published {
			out = append(out, r.rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.outbox[id]
	if !ok {
		return nil
	}
	r.published = true
	s.outbox[id] = r
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id string, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.outbox[id]
	if !ok {
		return nil
	}
	r.rec.Attempts++
	s.outbox[id] = r
	return nil
}

// --- ports.EventDedupStore ---

func (s *Store) ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[eventID]; ok && rec.expiresAt.After(time.Now()) {
		return false, nil
	}
	s.dedup[eventID] = dedupRecord{payloadHash: payloadHash, expiresAt: expiresAt}
	return true, nil
}

// --- queries.StatsRepository ---

func (s *Store) CountWindowsByStatus(ctx context.Context) (map[entities.WindowStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[entities.WindowStatus]int)
	for _, w := range s.windows {
		out[w.Status]++
	}
	return out, nil
}

func (s *Store) CountBidsByStatus(ctx context.Context) (map[entities.BidStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[entities.BidStatus]int)
	for _, b := range s.bids {
		out[b.Status]++
	}
	return out, nil
}

// MeanTimeToFirstBidSeconds averages, over every window that has at least
// one bid, the gap between the window opening and its earliest bid.
func (s *Store) MeanTimeToFirstBidSeconds(ctx context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	firstBidAt := make(map[string]time.Time)
	for _, b := range s.bids {
		t, ok := firstBidAt[b.WindowID]
		if !ok || b.PlacedAt.Before(t) {
			firstBidAt[b.WindowID] = b.PlacedAt
		}
	}
	var total float64
	var count int
	for windowID, t := range firstBidAt {
		w, ok := s.windows[windowID]
		if !ok {
			continue
		}
		total += t.Sub(w.OpenAt).Seconds()
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return total / float64(count), nil
}

// MeanOpenToAcceptSeconds averages the open-to-close gap over CLOSED windows.
func (s *Store) MeanOpenToAcceptSeconds(ctx context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	var count int
	for _, w := range s.windows {
		if w.Status != entities.WindowClosed || w.ClosedAt == nil {
			continue
		}
		total += w.ClosedAt.Sub(w.OpenAt).Seconds()
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return total / float64(count), nil
}
