package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	application "porterdispatch/contexts/dispatch/bidding-engine/application"
	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
	domainerrors "porterdispatch/contexts/dispatch/bidding-engine/domain/errors"
	"porterdispatch/contexts/dispatch/bidding-engine/ports"
	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

const cacheGrace = 30 * time.Second

// OpenWindowCommand is the write-model input for opening a new auction.
type OpenWindowCommand struct {
	OrderIDs          []string
	DurationSec       int
	StrategyID        string
	MinimumBidCents   int64
	ReservePriceCents *int64
	PorterFilters     []entities.PorterFilter
	MaxBidsPerPorter  int
	CreatedBy         string
	CorrelationID     string
	IdempotencyKey    string
}

// OpenWindowResult is returned to the caller and, on idempotent replay,
// marked Replayed so transports can return 200 instead of 201.
type OpenWindowResult struct {
	Window   entities.BiddingWindow
	Replayed bool
}

// OpenWindow opens a new bidding window.
func (uc BiddingUseCase) OpenWindow(ctx context.Context, cmd OpenWindowCommand) (OpenWindowResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("bidding window open started",
		"event", "bidding_window_open_started",
		"module", "dispatch/bidding-engine",
		"layer", "application",
		"order_ids", cmd.OrderIDs,
		"strategy_id", cmd.StrategyID,
	)

	if len(cmd.OrderIDs) == 0 {
		return OpenWindowResult{}, fmt.Errorf("%w: orderIds must be non-empty", domainerrors.ErrInvalidInput)
	}
	if cmd.DurationSec < 10 || cmd.DurationSec > 3600 {
		return OpenWindowResult{}, fmt.Errorf("%w: durationSec must be in [10, 3600]", domainerrors.ErrInvalidInput)
	}
	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return OpenWindowResult{}, fmt.Errorf("%w: idempotencyKey required", domainerrors.ErrInvalidInput)
	}

	now := uc.now()
	requestHash := hashOpenWindowCommand(cmd)
	if replay, found, err := uc.checkIdempotency(ctx, cmd.IdempotencyKey, requestHash); err != nil {
		return OpenWindowResult{}, err
	} else if found {
		var w entities.BiddingWindow
		if err := json.Unmarshal(replay, &w); err != nil {
			return OpenWindowResult{}, err
		}
		logger.Info("bidding window open replayed",
			"event", "bidding_window_open_replayed",
			"module", "dispatch/bidding-engine",
			"layer", "application",
			"window_id", w.WindowID,
		)
		return OpenWindowResult{Window: w, Replayed: true}, nil
	}

	strategy, err := uc.Strategies.GetStrategy(ctx, cmd.StrategyID)
	if err != nil {
		return OpenWindowResult{}, err
	}
	if !strategy.Active {
		logger.Warn("bidding window open rejected: strategy inactive",
			"event", "bidding_window_open_strategy_inactive",
			"module", "dispatch/bidding-engine",
			"layer", "application",
			"strategy_id", cmd.StrategyID,
		)
		return OpenWindowResult{}, domainerrors.ErrStrategyInactive
	}

	maxBidsPerPorter := cmd.MaxBidsPerPorter
	if maxBidsPerPorter <= 0 {
		maxBidsPerPorter = 1
	}

	window := entities.BiddingWindow{
		WindowID:          uc.IDGen.NewID(),
		OrderIDs:          cmd.OrderIDs,
		Status:            entities.WindowOpen,
		StrategyID:        cmd.StrategyID,
		MinimumBidCents:   cmd.MinimumBidCents,
		ReservePriceCents: cmd.ReservePriceCents,
		PorterFilters:     cmd.PorterFilters,
		MaxBidsPerPorter:  maxBidsPerPorter,
		OpenAt:            now,
		ExpiresAt:         now.Add(time.Duration(cmd.DurationSec) * time.Second),
		CreatedBy:         cmd.CreatedBy,
		CorrelationID:     cmd.CorrelationID,
	}
	if err := uc.Windows.CreateWindow(ctx, window); err != nil {
		return OpenWindowResult{}, err
	}

	if uc.Cache != nil {
		if payload, err := json.Marshal(window); err == nil {
			ttl := time.Duration(cmd.DurationSec)*time.Second + cacheGrace
			if err := uc.Cache.PutWindow(cacheKey(window.WindowID), ttl, payload); err != nil {
				logger.Warn("bidding window cache put failed",
					"event", "bidding_window_cache_put_failed",
					"module", "dispatch/bidding-engine",
					"layer", "application",
					"window_id", window.WindowID,
					"error", err.Error(),
				)
			}
		}
	}

	if err := uc.emitWindowOpened(ctx, window, now); err != nil {
		return OpenWindowResult{}, err
	}
	if err := uc.saveIdempotentResult(ctx, cmd.IdempotencyKey, requestHash, window); err != nil {
		return OpenWindowResult{}, err
	}

	logger.Info("bidding window opened",
		"event", "bidding_window_opened",
		"module", "dispatch/bidding-engine",
		"layer", "application",
		"window_id", window.WindowID,
		"expires_at", window.ExpiresAt,
	)
	return OpenWindowResult{Window: window}, nil
}

// AcceptBidCommand requests the race-safe single-winner operation.
type AcceptBidCommand struct {
	WindowID      string
	BidID         string
	AcceptedBy    string
	CorrelationID string
}

// AcceptBid is the critical race-safe operation that selects a window's winning bid.
func (uc BiddingUseCase) AcceptBid(ctx context.Context, cmd AcceptBidCommand) (entities.Bid, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("accept bid started",
		"event", "bidding_accept_bid_started",
		"module", "dispatch/bidding-engine",
		"layer", "application",
		"window_id", cmd.WindowID,
		"bid_id", cmd.BidID,
	)

	var accepted entities.Bid
	lockKey := "accept:" + cmd.WindowID
	err := uc.Locker.WithLock(ctx, lockKey, uc.lockTTL(), func(ctx context.Context) error {
		now := uc.now()
		bid, window, expiredCount, err := uc.Windows.AcceptWinningBid(ctx, cmd.WindowID, cmd.BidID, cmd.AcceptedBy, now)
		if err != nil {
			return err
		}
		accepted = bid

		if err := uc.Windows.AppendAudit(ctx, entities.BidAuditEvent{
			EventID:       uc.IDGen.NewID(),
			BidID:         bid.BidID,
			Kind:          entities.AuditAccepted,
			OccurredAt:    now,
			Actor:         cmd.AcceptedBy,
			CorrelationID: cmd.CorrelationID,
		}); err != nil {
			return err
		}

		if uc.Cache != nil {
			_ = uc.Cache.DeleteWindow(cacheKey(cmd.WindowID))
		}

		if err := uc.emitBidAccepted(ctx, bid, now); err != nil {
			return err
		}
		if err := uc.emitBidWinnerSelected(ctx, window, bid, now); err != nil {
			return err
		}
		logger.Info("bid accepted; siblings expired",
			"event", "bidding_bid_accepted",
			"module", "dispatch/bidding-engine",
			"layer", "application",
			"window_id", cmd.WindowID,
			"bid_id", bid.BidID,
			"expired_siblings", expiredCount,
		)
		return nil
	})
	if err != nil {
		if errors.Is(err, ports.ErrLockHeld) {
			logger.Warn("accept bid lock contention",
				"event", "bidding_accept_bid_lock_contention",
				"module", "dispatch/bidding-engine",
				"layer", "application",
				"window_id", cmd.WindowID,
			)
			return entities.Bid{}, domainerrors.ErrConcurrentAccept
		}
		return entities.Bid{}, err
	}
	return accepted, nil
}

// CloseWindowCommand requests an administrative close with no winner.
type CloseWindowCommand struct {
	WindowID      string
	Actor         string
	CorrelationID string
}

// CloseWindow closes a window, only permitted while OPEN.
func (uc BiddingUseCase) CloseWindow(ctx context.Context, cmd CloseWindowCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	window, err := uc.Windows.GetWindow(ctx, cmd.WindowID)
	if err != nil {
		return err
	}
	if window.Status != entities.WindowOpen {
		return domainerrors.ErrWindowNotOpen
	}

	now := uc.now()
	closed, expiredCount, err := uc.Windows.CloseAndExpire(ctx, cmd.WindowID, now)
	if err != nil {
		return err
	}
	if uc.Cache != nil {
		_ = uc.Cache.DeleteWindow(cacheKey(cmd.WindowID))
	}

	outcome := eventsv1.OutcomeExpired
	if expiredCount == 0 {
		outcome = eventsv1.OutcomeNoBids
	}
	if err := uc.emitBidClosed(ctx, closed, outcome, now); err != nil {
		return err
	}
	logger.Info("bidding window closed",
		"event", "bidding_window_closed",
		"module", "dispatch/bidding-engine",
		"layer", "application",
		"window_id", cmd.WindowID,
		"actor", cmd.Actor,
		"outcome", outcome,
	)
	return nil
}

func cacheKey(windowID string) string {
	return "window:" + windowID
}

func (uc BiddingUseCase) checkIdempotency(ctx context.Context, key, requestHash string) ([]byte, bool, error) {
	storedHash, payload, found, err := uc.Idempotency.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	if storedHash != requestHash {
		return nil, false, domainerrors.ErrIdempotencyConflict
	}
	return payload, true, nil
}

func (uc BiddingUseCase) saveIdempotentResult(ctx context.Context, key, requestHash string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return uc.Idempotency.Save(ctx, key, requestHash, payload, uc.idempotencyTTL())
}

func hashOpenWindowCommand(cmd OpenWindowCommand) string {
	payload := map[string]any{
		"order_ids":   cmd.OrderIDs,
		"duration":    cmd.DurationSec,
		"strategy_id": cmd.StrategyID,
		"min_bid":     cmd.MinimumBidCents,
		"created_by":  cmd.CreatedBy,
		"op":          "open_window",
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
