// Package postgresadapter persists bidding windows, bids, and the outbox
// behind gorm, grounded on a single repository struct implementing every
// port the application layer needs, clause.OnConflict
// upserts for idempotency/dedup/outbox rows, and gorm.ErrRecordNotFound
// translated to the bounded context's own sentinel errors.
package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
	domainerrors "porterdispatch/contexts/dispatch/bidding-engine/domain/errors"
	"porterdispatch/contexts/dispatch/bidding-engine/ports"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending = "pending"
	outboxStatusPublished = "published"
	outboxStatusFailed = "failed"
)

// Repository is the bidding engine's sole gorm-backed adapter. It implements
// WindowRepository, StrategyRepository, IdempotencyStore, OutboxWriter,
// OutboxRepository, EventDedupStore, and the queries package's
// StatsRepository seam.
type Repository struct {
	db *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

func (r *Repository) logError(event string, err error, attrs...any) error {
	fields := make([]any, 0, len(attrs)+7)
	fields = append(fields,
		"event", event,
		"module", "dispatch/bidding-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("bidding repository operation failed", fields...)
	return err
}

// --- windows -----------------------------------------------------------

func (r *Repository) CreateWindow(ctx context.Context, w entities.BiddingWindow) error {
	row, err := windowModelFromEntity(w)
	if err != nil {
		return r.logError("bidding_repo_create_window_marshal_failed", err, "window_id", w.WindowID)
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "window_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("bidding_repo_create_window_failed", create.Error, "window_id", w.WindowID)
	}
	return nil
}

func (r *Repository) GetWindow(ctx context.Context, windowID string) (entities.BiddingWindow, error) {
	var row windowModel
	err := r.db.WithContext(ctx).Where("window_id = ?", strings.TrimSpace(windowID)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.BiddingWindow{}, domainerrors.ErrWindowNotFound
		}
		return entities.BiddingWindow{}, r.logError("bidding_repo_get_window_failed", err, "window_id", windowID)
	}
	w, err := row.toEntity()
	if err != nil {
		return entities.BiddingWindow{}, r.logError("bidding_repo_get_window_unmarshal_failed", err, "window_id", windowID)
	}
	return w, nil
}

// GetWindowByOrder finds the most recently opened OPEN window covering
// orderID. order_ids is a GIN-indexed jsonb
// array column, queried with the `@>` containment operator rather than a
// table scan.
func (r *Repository) GetWindowByOrder(ctx context.Context, orderID string) (entities.BiddingWindow, error) {
	var row windowModel
	err := r.db.WithContext(ctx).
		Where("order_ids @> ?::jsonb", string(mustMarshalOrderID(orderID))).
		Where("status = ?", string(entities.WindowOpen)).
		Order("open_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.BiddingWindow{}, domainerrors.ErrWindowNotFound
		}
		return entities.BiddingWindow{}, r.logError("bidding_repo_get_window_by_order_failed", err, "order_id", orderID)
	}
	w, err := row.toEntity()
	if err != nil {
		return entities.BiddingWindow{}, r.logError("bidding_repo_get_window_by_order_unmarshal_failed", err, "order_id", orderID)
	}
	return w, nil
}

func (r *Repository) UpdateWindowStatus(ctx context.Context, windowID string, status entities.WindowStatus, closedAt *time.Time) error {
	updates := map[string]any{"status": string(status)}
	if closedAt != nil {
		utc := closedAt.UTC()
		updates["closed_at"] = utc
	}
	result := r.db.WithContext(ctx).Model(&windowModel{}).
		Where("window_id = ?", strings.TrimSpace(windowID)).
		Updates(updates)
	if result.Error != nil {
		return r.logError("bidding_repo_update_window_status_failed", result.Error, "window_id", windowID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrWindowNotFound
	}
	return nil
}

func (r *Repository) ListExpiredOpenWindows(ctx context.Context, asOf time.Time, limit int) ([]entities.BiddingWindow, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []windowModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.WindowOpen)).
		Where("expires_at <= ?", asOf.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, r.logError("bidding_repo_list_expired_open_windows_failed", err, "limit", limit)
	}
	items := make([]entities.BiddingWindow, 0, len(rows))
	for _, row := range rows {
		w, err := row.toEntity()
		if err != nil {
			return nil, r.logError("bidding_repo_list_expired_open_windows_unmarshal_failed", err, "window_id", row.WindowID)
		}
		items = append(items, w)
	}
	return items, nil
}

// --- bids ----------------------------------------------------------------

func (r *Repository) PlaceBid(ctx context.Context, b entities.Bid) error {
	row, err := bidModelFromEntity(b)
	if err != nil {
		return r.logError("bidding_repo_place_bid_marshal_failed", err, "bid_id", b.BidID)
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "bid_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("bidding_repo_place_bid_failed", create.Error, "bid_id", b.BidID)
	}
	return nil
}

func (r *Repository) GetBid(ctx context.Context, bidID string) (entities.Bid, error) {
	var row bidModel
	err := r.db.WithContext(ctx).Where("bid_id = ?", strings.TrimSpace(bidID)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Bid{}, domainerrors.ErrBidNotFound
		}
		return entities.Bid{}, r.logError("bidding_repo_get_bid_failed", err, "bid_id", bidID)
	}
	b, err := row.toEntity()
	if err != nil {
		return entities.Bid{}, r.logError("bidding_repo_get_bid_unmarshal_failed", err, "bid_id", bidID)
	}
	return b, nil
}

func (r *Repository) ListBidsByWindow(ctx context.Context, windowID string) ([]entities.Bid, error) {
	var rows []bidModel
	err := r.db.WithContext(ctx).
		Where("window_id = ?", strings.TrimSpace(windowID)).
		Order("placed_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, r.logError("bidding_repo_list_bids_by_window_failed", err, "window_id", windowID)
	}
	return toBidEntities(r, rows)
}

func (r *Repository) ListBidsByPorter(ctx context.Context, porterID string, limit, offset int) ([]entities.Bid, error) {
	tx := r.db.WithContext(ctx).
		Where("porter_id = ?", strings.TrimSpace(porterID)).
		Order("placed_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit).Offset(offset)
	}
	var rows []bidModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, r.logError("bidding_repo_list_bids_by_porter_failed", err, "porter_id", porterID)
	}
	return toBidEntities(r, rows)
}

func (r *Repository) CountPorterBidsInWindow(ctx context.Context, windowID, porterID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&bidModel{}).
		Where("window_id = ?", strings.TrimSpace(windowID)).
		Where("porter_id = ?", strings.TrimSpace(porterID)).
		Where("status <> ?", string(entities.BidCancelledStatus)).
		Count(&count).Error
	if err != nil {
		return 0, r.logError("bidding_repo_count_porter_bids_failed", err, "window_id", windowID, "porter_id", porterID)
	}
	return int(count), nil
}

func (r *Repository) UpdateBidStatus(ctx context.Context, bidID string, status entities.BidStatus, terminalAt time.Time, acceptedBy string) error {
	updates := map[string]any{
		"status": string(status),
		"terminal_at": terminalAt.UTC(),
	}
	if acceptedBy != "" {
		updates["accepted_by"] = acceptedBy
	}
	result := r.db.WithContext(ctx).Model(&bidModel{}).
		Where("bid_id = ?", strings.TrimSpace(bidID)).
		Updates(updates)
	if result.Error != nil {
		return r.logError("bidding_repo_update_bid_status_failed", result.Error, "bid_id", bidID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrBidNotFound
	}
	return nil
}

func (r *Repository) ExpirePendingBidsForWindow(ctx context.Context, windowID string, terminalAt time.Time) (int, error) {
	result := r.db.WithContext(ctx).Model(&bidModel{}).
		Where("window_id = ?", strings.TrimSpace(windowID)).
		Where("status = ?", string(entities.BidPlacedStatus)).
		Updates(map[string]any{
			"status": string(entities.BidExpiredStatus),
			"terminal_at": terminalAt.UTC(),
		})
	if result.Error != nil {
		return 0, r.logError("bidding_repo_expire_pending_bids_failed", result.Error, "window_id", windowID)
	}
	return int(result.RowsAffected), nil
}

func (r *Repository) AppendAudit(ctx context.Context, e entities.BidAuditEvent) error {
	row := auditModel{
		EventID: strings.TrimSpace(e.EventID),
		BidID: strings.TrimSpace(e.BidID),
		Kind: string(e.Kind),
		Payload: e.Payload,
		OccurredAt: e.OccurredAt.UTC(),
		Actor: e.Actor,
		CorrelationID: e.CorrelationID,
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("bidding_repo_append_audit_failed", create.Error, "event_id", e.EventID, "bid_id", e.BidID)
	}
	return nil
}

// AcceptWinningBid reloads and validates the window and bid, accepts the
// winner, closes the window, and expires every sibling PLACED bid, all
// inside one gorm.Transaction, matching this layer's "within one database
// transaction" requirement.
func (r *Repository) AcceptWinningBid(ctx context.Context, windowID, bidID, acceptedBy string, now time.Time) (entities.Bid, entities.BiddingWindow, int, error) {
	var (
		acceptedBid entities.Bid
		closedWin entities.BiddingWindow
		expired int
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var winRow windowModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("window_id = ?", windowID).First(&winRow).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrWindowNotFound
			}
			return err
		}
		if winRow.Status != string(entities.WindowOpen) {
			return domainerrors.ErrWindowNotOpen
		}

		var bidRow bidModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("bid_id = ?", bidID).First(&bidRow).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrBidNotFound
			}
			return err
		}
		if bidRow.WindowID != windowID {
			return domainerrors.ErrBidWrongWindow
		}
		if bidRow.Status != string(entities.BidPlacedStatus) {
			return domainerrors.ErrBidNotPlaced
		}

		nowUTC := now.UTC()
		if err := tx.Model(&bidModel{}).Where("bid_id = ?", bidID).Updates(map[string]any{
			"status": string(entities.BidAcceptedStatus),
			"terminal_at": nowUTC,
			"accepted_by": acceptedBy,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&windowModel{}).Where("window_id = ?", windowID).Updates(map[string]any{
			"status": string(entities.WindowClosed),
			"closed_at": nowUTC,
		}).Error; err != nil {
			return err
		}
		result := tx.Model(&bidModel{}).
			Where("window_id = ?", windowID).
			Where("bid_id <> ?", bidID).
			Where("status = ?", string(entities.BidPlacedStatus)).
			Updates(map[string]any{
				"status": string(entities.BidExpiredStatus),
				"terminal_at": nowUTC,
			})
		if result.Error != nil {
			return result.Error
		}
		expired = int(result.RowsAffected)

		bidRow.Status = string(entities.BidAcceptedStatus)
		bidRow.TerminalAt = &nowUTC
		bidRow.AcceptedBy = acceptedBy
		var convErr error
		acceptedBid, convErr = bidRow.toEntity()
		if convErr != nil {
			return convErr
		}

		winRow.Status = string(entities.WindowClosed)
		winRow.ClosedAt = &nowUTC
		closedWin, convErr = winRow.toEntity()
		return convErr
	})
	if err != nil {
		if isDomainError(err) {
			return entities.Bid{}, entities.BiddingWindow{}, 0, err
		}
		return entities.Bid{}, entities.BiddingWindow{}, 0, r.logError("bidding_repo_accept_winning_bid_failed", err, "window_id", windowID, "bid_id", bidID)
	}
	return acceptedBid, closedWin, expired, nil
}

// CloseAndExpire is closeWindow/the expiry reaper's shared atomic
// transaction.
func (r *Repository) CloseAndExpire(ctx context.Context, windowID string, now time.Time) (entities.BiddingWindow, int, error) {
	var (
		closedWin entities.BiddingWindow
		expired int
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var winRow windowModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("window_id = ?", windowID).First(&winRow).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrWindowNotFound
			}
			return err
		}

		nowUTC := now.UTC()
		if err := tx.Model(&windowModel{}).Where("window_id = ?", windowID).Updates(map[string]any{
			"status": string(entities.WindowClosed),
			"closed_at": nowUTC,
		}).Error; err != nil {
			return err
		}
		result := tx.Model(&bidModel{}).
			Where("window_id = ?", windowID).
			Where("status = ?", string(entities.BidPlacedStatus)).
			Updates(map[string]any{
				"status": string(entities.BidExpiredStatus),
				"terminal_at": nowUTC,
			})
		if result.Error != nil {
			return result.Error
		}
		expired = int(result.RowsAffected)

		winRow.Status = string(entities.WindowClosed)
		winRow.ClosedAt = &nowUTC
		var convErr error
		closedWin, convErr = winRow.toEntity()
		return convErr
	})
	if err != nil {
		if isDomainError(err) {
			return entities.BiddingWindow{}, 0, err
		}
		return entities.BiddingWindow{}, 0, r.logError("bidding_repo_close_and_expire_failed", err, "window_id", windowID)
	}
	return closedWin, expired, nil
}

// --- strategy --------------------------------------------------------

func (r *Repository) GetStrategy(ctx context.Context, strategyID string) (entities.BidStrategy, error) {
	var row strategyModel
	err := r.db.WithContext(ctx).Where("strategy_id = ?", strings.TrimSpace(strategyID)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.BidStrategy{}, domainerrors.ErrStrategyNotFound
		}
		return entities.BidStrategy{}, r.logError("bidding_repo_get_strategy_failed", err, "strategy_id", strategyID)
	}
	return row.toEntity(), nil
}

// --- idempotency -------------------------------------------------------

func (r *Repository) Get(ctx context.Context, key string) (string, []byte, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).Where("key = ?", strings.TrimSpace(key)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, false, nil
		}
		return "", nil, false, r.logError("bidding_repo_idempotency_get_failed", err, "idempotency_key", key)
	}
	if !row.ExpiresAt.IsZero() && time.Now().UTC().After(row.ExpiresAt.UTC()) {
		_ = r.db.WithContext(ctx).Where("key = ?", strings.TrimSpace(key)).Delete(&idempotencyModel{}).Error
		return "", nil, false, nil
	}
	return row.PayloadHash, append([]byte(nil), row.ResultPayload...), true, nil
}

func (r *Repository) Save(ctx context.Context, key, payloadHash string, resultPayload []byte, ttl time.Duration) error {
	row := idempotencyModel{
		Key: strings.TrimSpace(key),
		PayloadHash: payloadHash,
		ResultPayload: resultPayload,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"payload_hash": row.PayloadHash,
			"result_payload": row.ResultPayload,
			"expires_at": row.ExpiresAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("bidding_repo_idempotency_save_failed", create.Error, "idempotency_key", row.Key)
	}
	return nil
}

// --- outbox --------------------------------------------------------------

func (r *Repository) WriteOutbox(ctx context.Context, eventType, aggregateID, correlationID, partitionKey string, payload []byte) error {
	row := outboxModel{
		EventType: eventType,
		AggregateID: aggregateID,
		CorrelationID: correlationID,
		PartitionKey: partitionKey,
		Payload: payload,
		Status: outboxStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("bidding_repo_write_outbox_failed", err, "event_type", eventType, "aggregate_id", aggregateID)
	}
	return nil
}

func (r *Repository) ListPending(ctx context.Context, limit int) ([]ports.OutboxRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []string{outboxStatusPending, outboxStatusFailed}).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("bidding_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxRecord{
			ID: row.ID,
			EventType: row.EventType,
			AggregateID: row.AggregateID,
			CorrelationID: row.CorrelationID,
			PartitionKey: row.PartitionKey,
			Payload: append([]byte(nil), row.Payload...),
			CreatedAt: row.CreatedAt.UTC(),
			Attempts: row.Attempts,
		})
	}
	return items, nil
}

func (r *Repository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&outboxModel{}).
		Where("id = ?", strings.TrimSpace(id)).
		Updates(map[string]any{"status": outboxStatusPublished, "published_at": publishedAt.UTC()})
	if result.Error != nil {
		return r.logError("bidding_repo_mark_outbox_published_failed", result.Error, "outbox_id", id)
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id string, lastError string) error {
	result := r.db.WithContext(ctx).Model(&outboxModel{}).
		Where("id = ?", strings.TrimSpace(id)).
		Updates(map[string]any{
			"status": outboxStatusFailed,
			"last_error": lastError,
			"attempts": gorm.Expr("attempts + 1"),
		})
	if result.Error != nil {
		return r.logError("bidding_repo_mark_outbox_failed_failed", result.Error, "outbox_id", id)
	}
	return nil
}

// --- event dedup -----------------------------------------------------

func (r *Repository) ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error) {
	row := eventDedupModel{
		EventID: strings.TrimSpace(eventID),
		PayloadHash: payloadHash,
		ExpiresAt: expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return false, r.logError("bidding_repo_reserve_event_failed", create.Error, "event_id", eventID)
	}
	return create.RowsAffected > 0, nil
}

// --- statistics (queries.StatsRepository) ---------------------------

func (r *Repository) CountWindowsByStatus(ctx context.Context) (map[entities.WindowStatus]int, error) {
	type row struct {
		Status string
		Count int
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&windowModel{}).
		Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, r.logError("bidding_repo_count_windows_by_status_failed", err)
	}
	out := make(map[entities.WindowStatus]int, len(rows))
	for _, rr := range rows {
		out[entities.WindowStatus(rr.Status)] = rr.Count
	}
	return out, nil
}

func (r *Repository) CountBidsByStatus(ctx context.Context) (map[entities.BidStatus]int, error) {
	type row struct {
		Status string
		Count int
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&bidModel{}).
		Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, r.logError("bidding_repo_count_bids_by_status_failed", err)
	}
	out := make(map[entities.BidStatus]int, len(rows))
	for _, rr := range rows {
		out[entities.BidStatus(rr.Status)] = rr.Count
	}
	return out, nil
}

func (r *Repository) MeanTimeToFirstBidSeconds(ctx context.Context) (float64, error) {
	var mean *float64
	err := r.db.WithContext(ctx).Raw(`
		SELECT AVG(EXTRACT(EPOCH FROM (first_bid.placed_at - w.open_at)))
		FROM bidding_windows w
		JOIN LATERAL (
			SELECT MIN(placed_at) AS placed_at FROM bidding_bids b WHERE b.window_id = w.window_id
		) first_bid ON first_bid.placed_at IS NOT NULL
	`).Scan(&mean).Error
	if err != nil {
		return 0, r.logError("bidding_repo_mean_ttfb_failed", err)
	}
	if mean == nil {
		return 0, nil
	}
	return *mean, nil
}

func (r *Repository) MeanOpenToAcceptSeconds(ctx context.Context) (float64, error) {
	var mean *float64
	err := r.db.WithContext(ctx).Raw(`
		SELECT AVG(EXTRACT(EPOCH FROM (w.closed_at - w.open_at)))
		FROM bidding_windows w
		WHERE w.status = ? AND w.closed_at IS NOT NULL
	`, string(entities.WindowClosed)).Scan(&mean).Error
	if err != nil {
		return 0, r.logError("bidding_repo_mean_open_to_accept_failed", err)
	}
	if mean == nil {
		return 0, nil
	}
	return *mean, nil
}

func isDomainError(err error) bool {
	switch {
	case errors.Is(err, domainerrors.ErrWindowNotFound),
		errors.Is(err, domainerrors.ErrWindowNotOpen),
		errors.Is(err, domainerrors.ErrBidNotFound),
		errors.Is(err, domainerrors.ErrBidWrongWindow),
		errors.Is(err, domainerrors.ErrBidNotPlaced):
		return true
	default:
		return false
	}
}

// --- gorm models ---------------------------------------------------------

type windowModel struct {
	WindowID string `gorm:"column:window_id;primaryKey"`
	OrderIDs []byte `gorm:"column:order_ids;type:jsonb"`
	Status string `gorm:"column:status"`
	StrategyID string `gorm:"column:strategy_id"`
	MinimumBidCents int64 `gorm:"column:minimum_bid_cents"`
	ReservePriceCents *int64 `gorm:"column:reserve_price_cents"`
	PorterFilters []byte `gorm:"column:porter_filters;type:jsonb"`
	MaxBidsPerPorter int `gorm:"column:max_bids_per_porter"`
	OpenAt time.Time `gorm:"column:open_at"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
	ClosedAt *time.Time `gorm:"column:closed_at"`
	CreatedBy string `gorm:"column:created_by"`
	CorrelationID string `gorm:"column:correlation_id"`
}

func (windowModel) TableName() string { return "bidding_windows" }

func windowModelFromEntity(w entities.BiddingWindow) (windowModel, error) {
	orderIDs, err := json.Marshal(w.OrderIDs)
	if err != nil {
		return windowModel{}, err
	}
	filters, err := json.Marshal(w.PorterFilters)
	if err != nil {
		return windowModel{}, err
	}
	return windowModel{
		WindowID: w.WindowID,
		OrderIDs: orderIDs,
		Status: string(w.Status),
		StrategyID: w.StrategyID,
		MinimumBidCents: w.MinimumBidCents,
		ReservePriceCents: w.ReservePriceCents,
		PorterFilters: filters,
		MaxBidsPerPorter: w.MaxBidsPerPorter,
		OpenAt: w.OpenAt.UTC(),
		ExpiresAt: w.ExpiresAt.UTC(),
		ClosedAt: w.ClosedAt,
		CreatedBy: w.CreatedBy,
		CorrelationID: w.CorrelationID,
	}, nil
}

func (m windowModel) toEntity() (entities.BiddingWindow, error) {
	var orderIDs []string
	if len(m.OrderIDs) > 0 {
		if err := json.Unmarshal(m.OrderIDs, &orderIDs); err != nil {
			return entities.BiddingWindow{}, err
		}
	}
	var filters []entities.PorterFilter
	if len(m.PorterFilters) > 0 {
		if err := json.Unmarshal(m.PorterFilters, &filters); err != nil {
			return entities.BiddingWindow{}, err
		}
	}
	return entities.BiddingWindow{
		WindowID: m.WindowID,
		OrderIDs: orderIDs,
		Status: entities.WindowStatus(m.Status),
		StrategyID: m.StrategyID,
		MinimumBidCents: m.MinimumBidCents,
		ReservePriceCents: m.ReservePriceCents,
		PorterFilters: filters,
		MaxBidsPerPorter: m.MaxBidsPerPorter,
		OpenAt: m.OpenAt.UTC(),
		ExpiresAt: m.ExpiresAt.UTC(),
		ClosedAt: normalizeOptionalTime(m.ClosedAt),
		CreatedBy: m.CreatedBy,
		CorrelationID: m.CorrelationID,
	}, nil
}

type bidModel struct {
	BidID string `gorm:"column:bid_id;primaryKey"`
	WindowID string `gorm:"column:window_id"`
	PorterID string `gorm:"column:porter_id"`
	AmountCents int64 `gorm:"column:amount_cents"`
	ETAMinutes int `gorm:"column:eta_minutes"`
	Status string `gorm:"column:status"`
	PlacedAt time.Time `gorm:"column:placed_at"`
	TerminalAt *time.Time `gorm:"column:terminal_at"`
	IdempotencyKey string `gorm:"column:idempotency_key"`
	CancelReason string `gorm:"column:cancel_reason"`
	AcceptedBy string `gorm:"column:accepted_by"`
	CorrelationID string `gorm:"column:correlation_id"`
	Metadata []byte `gorm:"column:metadata;type:jsonb"`
}

func (bidModel) TableName() string { return "bidding_bids" }

func bidModelFromEntity(b entities.Bid) (bidModel, error) {
	meta, err := json.Marshal(b.Metadata)
	if err != nil {
		return bidModel{}, err
	}
	return bidModel{
		BidID: b.BidID,
		WindowID: b.WindowID,
		PorterID: b.PorterID,
		AmountCents: b.AmountCents,
		ETAMinutes: b.ETAMinutes,
		Status: string(b.Status),
		PlacedAt: b.PlacedAt.UTC(),
		TerminalAt: b.TerminalAt,
		IdempotencyKey: b.IdempotencyKey,
		CancelReason: b.CancelReason,
		AcceptedBy: b.AcceptedBy,
		CorrelationID: b.CorrelationID,
		Metadata: meta,
	}, nil
}

func (m bidModel) toEntity() (entities.Bid, error) {
	var meta entities.PorterMetadata
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &meta); err != nil {
			return entities.Bid{}, err
		}
	}
	return entities.Bid{
		BidID: m.BidID,
		WindowID: m.WindowID,
		PorterID: m.PorterID,
		AmountCents: m.AmountCents,
		ETAMinutes: m.ETAMinutes,
		Status: entities.BidStatus(m.Status),
		PlacedAt: m.PlacedAt.UTC(),
		TerminalAt: normalizeOptionalTime(m.TerminalAt),
		IdempotencyKey: m.IdempotencyKey,
		CancelReason: m.CancelReason,
		AcceptedBy: m.AcceptedBy,
		CorrelationID: m.CorrelationID,
		Metadata: meta,
	}, nil
}

func toBidEntities(r *Repository, rows []bidModel) ([]entities.Bid, error) {
	items := make([]entities.Bid, 0, len(rows))
	for _, row := range rows {
		b, err := row.toEntity()
		if err != nil {
			return nil, r.logError("bidding_repo_bid_unmarshal_failed", err, "bid_id", row.BidID)
		}
		items = append(items, b)
	}
	return items, nil
}

type auditModel struct {
	EventID string `gorm:"column:event_id;primaryKey"`
	BidID string `gorm:"column:bid_id"`
	Kind string `gorm:"column:kind"`
	Payload []byte `gorm:"column:payload"`
	OccurredAt time.Time `gorm:"column:occurred_at"`
	Actor string `gorm:"column:actor"`
	CorrelationID string `gorm:"column:correlation_id"`
}

func (auditModel) TableName() string { return "bidding_audit" }

type strategyModel struct {
	StrategyID string `gorm:"column:strategy_id;primaryKey"`
	Name string `gorm:"column:name"`
	Description string `gorm:"column:description"`
	PriceWeight float64 `gorm:"column:price_weight"`
	ETAWeight float64 `gorm:"column:eta_weight"`
	RatingWeight float64 `gorm:"column:rating_weight"`
	ReliabilityWeight float64 `gorm:"column:reliability_weight"`
	DistanceWeight float64 `gorm:"column:distance_weight"`
	Active bool `gorm:"column:active"`
}

func (strategyModel) TableName() string { return "bidding_strategies" }

func (m strategyModel) toEntity() entities.BidStrategy {
	return entities.BidStrategy{
		StrategyID: m.StrategyID,
		Name: m.Name,
		Description: m.Description,
		Weights: entities.StrategyWeights{
			PriceWeight: m.PriceWeight,
			ETAWeight: m.ETAWeight,
			RatingWeight: m.RatingWeight,
			ReliabilityWeight: m.ReliabilityWeight,
			DistanceWeight: m.DistanceWeight,
		},
		Active: m.Active,
	}
}

type idempotencyModel struct {
	Key string `gorm:"column:key;primaryKey"`
	PayloadHash string `gorm:"column:payload_hash"`
	ResultPayload []byte `gorm:"column:result_payload"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string { return "bidding_idempotency" }

type outboxModel struct {
	ID string `gorm:"column:id;primaryKey"`
	EventType string `gorm:"column:event_type"`
	AggregateID string `gorm:"column:aggregate_id"`
	CorrelationID string `gorm:"column:correlation_id"`
	PartitionKey string `gorm:"column:partition_key"`
	Payload []byte `gorm:"column:payload"`
	Status string `gorm:"column:status"`
	CreatedAt time.Time `gorm:"column:created_at"`
	PublishedAt *time.Time `gorm:"column:published_at"`
	LastError string `gorm:"column:last_error"`
	Attempts int `gorm:"column:attempts"`
}

func (outboxModel) TableName() string { return "bidding_outbox" }

func (m *outboxModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = newOutboxID()
	}
	return nil
}

type eventDedupModel struct {
	EventID string `gorm:"column:event_id;primaryKey"`
	PayloadHash string `gorm:"column:payload_hash"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string { return "bidding_event_dedup" }

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	t := value.UTC()
	return &t
}

func mustMarshalOrderID(orderID string) []byte {
	raw, _ := json.Marshal([]string{orderID})
	return raw
}

func newOutboxID() string {
	return uuid.NewString()
}

var _ ports.WindowRepository = (*Repository)(nil)
var _ ports.StrategyRepository = (*Repository)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.EventDedupStore = (*Repository)(nil)
