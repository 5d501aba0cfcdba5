package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"instantin-core-api/internal/model"
	"instantin-core-api/pkg/uid"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteLedger implements Ledger on SQLite. WAL mode for concurrent reads;
// a single writer guarded by a mutex, which is what serializes the
// reserve/commit/release hot path on this backend.
type SQLiteLedger struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteLedger opens (or creates) the ledger database at dbPath.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createLedgerTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteLedger] Initialized with database: %s", dbPath)
	return &SQLiteLedger{db: db}, nil
}

func createLedgerTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		storefront_id TEXT NOT NULL,
		name TEXT NOT NULL,
		price INTEGER NOT NULL,
		stock_policy TEXT NOT NULL,
		available INTEGER NOT NULL DEFAULT 0,
		reserved INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK (reserved >= 0 AND (stock_policy = 'unlimited' OR reserved <= available))
	);
	CREATE INDEX IF NOT EXISTS idx_products_storefront ON products(storefront_id);

	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		order_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reservations_order ON reservations(order_id);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		storefront_id TEXT NOT NULL,
		buyer_email TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT 'USD',
		drop_id TEXT NOT NULL DEFAULT '',
		subtotal INTEGER NOT NULL DEFAULT 0,
		tax INTEGER NOT NULL DEFAULT 0,
		shipping INTEGER NOT NULL DEFAULT 0,
		discount INTEGER NOT NULL DEFAULT 0,
		platform_fee INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		refunded INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'draft',
		payment_ref TEXT NOT NULL DEFAULT '',
		tracking_ref TEXT NOT NULL DEFAULT '',
		cancel_reason TEXT NOT NULL DEFAULT '',
		refund_reason TEXT NOT NULL DEFAULT '',
		flagged INTEGER NOT NULL DEFAULT 0,
		risk_score REAL NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		submitted_at DATETIME,
		paid_at DATETIME,
		shipped_at DATETIME,
		delivered_at DATETIME,
		closed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_orders_storefront_status ON orders(storefront_id, status);
	CREATE INDEX IF NOT EXISTS idx_orders_drop ON orders(drop_id);
	CREATE INDEX IF NOT EXISTS idx_orders_paid_at ON orders(paid_at);

	CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		unit_price INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		line_total INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);

	CREATE TABLE IF NOT EXISTS drops (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		creator_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		policy TEXT NOT NULL,
		creator_share INTEGER NOT NULL DEFAULT 0,
		platform_fee INTEGER NOT NULL DEFAULT 0,
		minimum_share INTEGER NOT NULL DEFAULT 0,
		max_participants INTEGER NOT NULL DEFAULT 10,
		invite_only INTEGER NOT NULL DEFAULT 0,
		start_at DATETIME,
		end_at DATETIME,
		total_sales INTEGER NOT NULL DEFAULT 0,
		total_orders INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		launched_at DATETIME,
		completed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_drops_creator_status ON drops(creator_id, status);

	CREATE TABLE IF NOT EXISTS drop_participants (
		id TEXT PRIMARY KEY,
		drop_id TEXT NOT NULL REFERENCES drops(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		share INTEGER NOT NULL DEFAULT 0,
		fixed_amount INTEGER NOT NULL DEFAULT 0,
		earned INTEGER NOT NULL DEFAULT 0,
		paid_out INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_unique
		ON drop_participants(drop_id, user_id)
		WHERE status NOT IN ('removed', 'declined');

	CREATE TABLE IF NOT EXISTS drop_distributions (
		id TEXT PRIMARY KEY,
		drop_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		recipient_type TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE(order_id, recipient_type, recipient_id)
	);
	CREATE INDEX IF NOT EXISTS idx_distributions_drop ON drop_distributions(drop_id);

	CREATE TABLE IF NOT EXISTS raffles (
		id TEXT PRIMARY KEY,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'upcoming',
		prize_pool INTEGER NOT NULL DEFAULT 0,
		rollover INTEGER NOT NULL DEFAULT 0,
		winner_count INTEGER NOT NULL DEFAULT 10,
		start_at DATETIME NOT NULL,
		end_at DATETIME NOT NULL,
		draw_at DATETIME NOT NULL,
		total_tickets INTEGER NOT NULL DEFAULT 0,
		total_entries INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		completed_at DATETIME,
		UNIQUE(year, month)
	);

	CREATE TABLE IF NOT EXISTS raffle_entries (
		id TEXT PRIMARY KEY,
		raffle_id TEXT NOT NULL REFERENCES raffles(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		base_tickets INTEGER NOT NULL DEFAULT 0,
		sale_tickets INTEGER NOT NULL DEFAULT 0,
		referral_tickets INTEGER NOT NULL DEFAULT 0,
		social_tickets INTEGER NOT NULL DEFAULT 0,
		disqualified INTEGER NOT NULL DEFAULT 0,
		disqualify_reason TEXT NOT NULL DEFAULT '',
		is_winner INTEGER NOT NULL DEFAULT 0,
		prize_place INTEGER NOT NULL DEFAULT 0,
		prize_amount INTEGER NOT NULL DEFAULT 0,
		claimed INTEGER NOT NULL DEFAULT 0,
		claimed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(raffle_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS raffle_ticket_events (
		id TEXT PRIMARY KEY,
		raffle_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		event_key TEXT NOT NULL,
		source TEXT NOT NULL,
		count INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE(raffle_id, user_id, event_key, source)
	);
	`
	_, err := db.Exec(query)
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}

// ticketColumn maps a ticket source to its entry counter column. Sources
// are a closed set, so interpolating the column name is safe.
func ticketColumn(source model.TicketSource) (string, error) {
	switch source {
	case model.TicketVisit:
		return "base_tickets", nil
	case model.TicketSale:
		return "sale_tickets", nil
	case model.TicketReferral:
		return "referral_tickets", nil
	case model.TicketSocial:
		return "social_tickets", nil
	}
	return "", fmt.Errorf("unknown ticket source %q", source)
}

// --- products & reservations ---

func (l *SQLiteLedger) CreateProduct(ctx context.Context, p *model.Product) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		p.Status = model.ProductActive
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO products (id, storefront_id, name, price, stock_policy, available, reserved, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		p.ID, p.StorefrontID, p.Name, int64(p.Price), string(p.StockPolicy), p.Available, string(p.Status), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, storefront_id, name, price, stock_policy, available, reserved, status, created_at, updated_at
		FROM products WHERE id = ?`, id)

	var p model.Product
	var price int64
	err := row.Scan(&p.ID, &p.StorefrontID, &p.Name, &price, &p.StockPolicy,
		&p.Available, &p.Reserved, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p.Price = model.Cents(price)
	return &p, nil
}

func (l *SQLiteLedger) RetireProduct(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx,
		`UPDATE products SET status = 'retired', updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to retire product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (l *SQLiteLedger) Reserve(ctx context.Context, productID, orderID string, qty int) (*model.Reservation, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("reserve: quantity must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// Column references on the right-hand side see pre-update values, so
	// the guard and the sold-out flip both read the same snapshot.
	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET reserved = CASE WHEN stock_policy = 'counted' THEN reserved + ? ELSE reserved END,
		    status = CASE WHEN stock_policy = 'counted' AND available - (reserved + ?) <= 0 THEN 'sold_out' ELSE status END,
		    updated_at = ?
		WHERE id = ? AND status != 'retired'
		  AND (stock_policy = 'unlimited' OR available - reserved >= ?)`,
		qty, qty, now, productID, qty)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM products WHERE id = ?)`, productID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, model.ErrNotFound
		}
		return nil, model.ErrInsufficientStock
	}

	r := &model.Reservation{
		ID:        uid.New(),
		ProductID: productID,
		OrderID:   orderID,
		Quantity:  qty,
		Status:    model.ReservationActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (id, product_id, order_id, quantity, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProductID, r.OrderID, r.Quantity, string(r.Status), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return r, nil
}

func (l *SQLiteLedger) CommitReservation(ctx context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var productID string
	var qty int
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT product_id, quantity, status FROM reservations WHERE id = ?`, reservationID).
		Scan(&productID, &qty, &status)
	if err == sql.ErrNoRows {
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load reservation: %w", err)
	}

	switch model.ReservationStatus(status) {
	case model.ReservationCommitted:
		return nil // already committed, no-op
	case model.ReservationReleased:
		return model.ErrInvalidTransition
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = 'committed', updated_at = ? WHERE id = ?`,
		now, reservationID); err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}

	// available -= qty; reserved -= qty. Unreserved stock is unchanged, so
	// the sold-out flag does not move on commit.
	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET available = available - ?, reserved = reserved - ?, updated_at = ?
		WHERE id = ? AND stock_policy = 'counted'`,
		qty, qty, now, productID); err != nil {
		return fmt.Errorf("failed to deduct stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) ReleaseReservation(ctx context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var productID string
	var qty int
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT product_id, quantity, status FROM reservations WHERE id = ?`, reservationID).
		Scan(&productID, &qty, &status)
	if err == sql.ErrNoRows {
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load reservation: %w", err)
	}

	if model.ReservationStatus(status) != model.ReservationActive {
		return nil // committed or already released, no-op
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = 'released', updated_at = ? WHERE id = ?`,
		now, reservationID); err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products
		SET reserved = reserved - ?,
		    status = CASE WHEN status = 'sold_out' AND available - (reserved - ?) > 0 THEN 'active' ELSE status END,
		    updated_at = ?
		WHERE id = ? AND stock_policy = 'counted'`,
		qty, qty, now, productID); err != nil {
		return fmt.Errorf("failed to return stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) GetReservation(ctx context.Context, reservationID string) (*model.Reservation, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, product_id, order_id, quantity, status, created_at, updated_at
		FROM reservations WHERE id = ?`, reservationID)
	return scanReservation(row)
}

func (l *SQLiteLedger) ReservationsForOrder(ctx context.Context, orderID string) ([]model.Reservation, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, product_id, order_id, quantity, status, created_at, updated_at
		FROM reservations WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var r model.Reservation
	err := row.Scan(&r.ID, &r.ProductID, &r.OrderID, &r.Quantity, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reservation: %w", err)
	}
	return &r, nil
}

// --- orders ---

func (l *SQLiteLedger) CreateOrder(ctx context.Context, o *model.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	if o.Status == "" {
		o.Status = model.OrderDraft
	}
	o.Version = 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, storefront_id, buyer_email, currency, drop_id,
			subtotal, tax, shipping, discount, platform_fee, total, refunded,
			status, payment_ref, tracking_ref, cancel_reason, refund_reason,
			flagged, risk_score, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.StorefrontID, o.BuyerEmail, o.Currency, o.DropID,
		int64(o.Subtotal), int64(o.Tax), int64(o.Shipping), int64(o.Discount),
		int64(o.PlatformFee), int64(o.Total), int64(o.Refunded),
		string(o.Status), o.PaymentRef, o.TrackingRef, o.CancelReason, o.RefundReason,
		o.Flagged, o.RiskScore, o.Version, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == "" {
			it.ID = uid.New()
		}
		it.OrderID = o.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, unit_price, quantity, line_total)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			it.ID, it.OrderID, it.ProductID, it.ProductName, int64(it.UnitPrice), it.Quantity, int64(it.LineTotal))
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, storefront_id, buyer_email, currency, drop_id,
			subtotal, tax, shipping, discount, platform_fee, total, refunded,
			status, payment_ref, tracking_ref, cancel_reason, refund_reason,
			flagged, risk_score, version, created_at, updated_at,
			submitted_at, paid_at, shipped_at, delivered_at, closed_at
		FROM orders WHERE id = ?`, id)

	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, unit_price, quantity, line_total
		FROM order_items WHERE order_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it model.OrderItem
		var unit, line int64
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &unit, &it.Quantity, &line); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		it.UnitPrice, it.LineTotal = model.Cents(unit), model.Cents(line)
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var o model.Order
	var sub, tax, ship, disc, fee, total, refunded int64
	var submitted, paid, shipped, delivered, closed sql.NullTime
	err := row.Scan(&o.ID, &o.StorefrontID, &o.BuyerEmail, &o.Currency, &o.DropID,
		&sub, &tax, &ship, &disc, &fee, &total, &refunded,
		&o.Status, &o.PaymentRef, &o.TrackingRef, &o.CancelReason, &o.RefundReason,
		&o.Flagged, &o.RiskScore, &o.Version, &o.CreatedAt, &o.UpdatedAt,
		&submitted, &paid, &shipped, &delivered, &closed)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	o.Subtotal, o.Tax, o.Shipping, o.Discount = model.Cents(sub), model.Cents(tax), model.Cents(ship), model.Cents(disc)
	o.PlatformFee, o.Total, o.Refunded = model.Cents(fee), model.Cents(total), model.Cents(refunded)
	o.SubmittedAt = nullableTime(submitted)
	o.PaidAt = nullableTime(paid)
	o.ShippedAt = nullableTime(shipped)
	o.DeliveredAt = nullableTime(delivered)
	o.ClosedAt = nullableTime(closed)
	return &o, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (l *SQLiteLedger) UpdateOrder(ctx context.Context, o *model.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	res, err := l.db.ExecContext(ctx, `
		UPDATE orders SET
			subtotal = ?, tax = ?, shipping = ?, discount = ?, platform_fee = ?, total = ?, refunded = ?,
			status = ?, payment_ref = ?, tracking_ref = ?, cancel_reason = ?, refund_reason = ?,
			flagged = ?, risk_score = ?,
			submitted_at = ?, paid_at = ?, shipped_at = ?, delivered_at = ?, closed_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		int64(o.Subtotal), int64(o.Tax), int64(o.Shipping), int64(o.Discount),
		int64(o.PlatformFee), int64(o.Total), int64(o.Refunded),
		string(o.Status), o.PaymentRef, o.TrackingRef, o.CancelReason, o.RefundReason,
		o.Flagged, o.RiskScore,
		o.SubmittedAt, o.PaidAt, o.ShippedAt, o.DeliveredAt, o.ClosedAt,
		now, o.ID, o.Version)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOptimisticLock
	}
	o.Version++
	o.UpdatedAt = now
	return nil
}

func (l *SQLiteLedger) PlatformFeesBetween(ctx context.Context, from, to time.Time) (model.Cents, error) {
	var fees int64
	err := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(platform_fee), 0) FROM orders
		WHERE paid_at IS NOT NULL AND paid_at >= ? AND paid_at < ?
		  AND status NOT IN ('cancelled', 'failed')`,
		from, to).Scan(&fees)
	if err != nil {
		return 0, fmt.Errorf("failed to sum platform fees: %w", err)
	}
	return model.Cents(fees), nil
}

// --- drops ---

func (l *SQLiteLedger) CreateDrop(ctx context.Context, d *model.Drop) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Status == "" {
		d.Status = model.DropDraft
	}
	d.Version = 1

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO drops (id, name, creator_id, status, policy, creator_share, platform_fee,
			minimum_share, max_participants, invite_only, start_at, end_at,
			total_sales, total_orders, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 1, ?, ?)`,
		d.ID, d.Name, d.CreatorID, string(d.Status), string(d.Policy),
		int64(d.CreatorShare), int64(d.PlatformFee), int64(d.MinimumShare),
		d.MaxParticipants, d.InviteOnly, d.StartAt, d.EndAt, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert drop: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) GetDrop(ctx context.Context, id string) (*model.Drop, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, name, creator_id, status, policy, creator_share, platform_fee,
			minimum_share, max_participants, invite_only, start_at, end_at,
			total_sales, total_orders, version, created_at, updated_at, launched_at, completed_at
		FROM drops WHERE id = ?`, id)

	var d model.Drop
	var creatorShare, platformFee, minShare, totalSales int64
	var startAt, endAt, launchedAt, completedAt sql.NullTime
	err := row.Scan(&d.ID, &d.Name, &d.CreatorID, &d.Status, &d.Policy,
		&creatorShare, &platformFee, &minShare, &d.MaxParticipants, &d.InviteOnly,
		&startAt, &endAt, &totalSales, &d.TotalOrders, &d.Version,
		&d.CreatedAt, &d.UpdatedAt, &launchedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan drop: %w", err)
	}
	d.CreatorShare = model.BasisPoints(creatorShare)
	d.PlatformFee = model.BasisPoints(platformFee)
	d.MinimumShare = model.BasisPoints(minShare)
	d.TotalSales = model.Cents(totalSales)
	d.StartAt = nullableTime(startAt)
	d.EndAt = nullableTime(endAt)
	d.LaunchedAt = nullableTime(launchedAt)
	d.CompletedAt = nullableTime(completedAt)
	return &d, nil
}

func (l *SQLiteLedger) UpdateDrop(ctx context.Context, d *model.Drop) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	res, err := l.db.ExecContext(ctx, `
		UPDATE drops SET
			name = ?, status = ?, policy = ?, creator_share = ?, platform_fee = ?,
			minimum_share = ?, max_participants = ?, invite_only = ?,
			start_at = ?, end_at = ?, launched_at = ?, completed_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		d.Name, string(d.Status), string(d.Policy), int64(d.CreatorShare), int64(d.PlatformFee),
		int64(d.MinimumShare), d.MaxParticipants, d.InviteOnly,
		d.StartAt, d.EndAt, d.LaunchedAt, d.CompletedAt, now, d.ID, d.Version)
	if err != nil {
		return fmt.Errorf("failed to update drop: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOptimisticLock
	}
	d.Version++
	d.UpdatedAt = now
	return nil
}

func (l *SQLiteLedger) AddParticipant(ctx context.Context, p *model.DropParticipant) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO drop_participants (id, drop_id, user_id, status, share, fixed_amount, earned, paid_out, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		p.ID, p.DropID, p.UserID, string(p.Status), int64(p.Share), int64(p.FixedAmount), p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return model.ErrDuplicateParticipant
	}
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Participants(ctx context.Context, dropID string) ([]model.DropParticipant, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, drop_id, user_id, status, share, fixed_amount, earned, paid_out, created_at, updated_at
		FROM drop_participants WHERE drop_id = ? ORDER BY created_at`, dropID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []model.DropParticipant
	for rows.Next() {
		var p model.DropParticipant
		var share, fixed, earned, paid int64
		if err := rows.Scan(&p.ID, &p.DropID, &p.UserID, &p.Status, &share, &fixed, &earned, &paid, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.Share = model.BasisPoints(share)
		p.FixedAmount, p.Earned, p.PaidOut = model.Cents(fixed), model.Cents(earned), model.Cents(paid)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) UpdateParticipant(ctx context.Context, p *model.DropParticipant) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	res, err := l.db.ExecContext(ctx, `
		UPDATE drop_participants SET status = ?, share = ?, fixed_amount = ?, paid_out = ?, updated_at = ?
		WHERE id = ?`,
		string(p.Status), int64(p.Share), int64(p.FixedAmount), int64(p.PaidOut), now, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	p.UpdatedAt = now
	return nil
}

func (l *SQLiteLedger) RecordDistribution(ctx context.Context, dropID, orderID string, total model.Cents, rows []DistributionRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i, r := range rows {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO drop_distributions (id, drop_id, order_id, recipient_type, recipient_id, user_id, amount, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uid.New(), dropID, orderID, r.RecipientType, r.RecipientID, r.UserID, int64(r.Amount), now)
		if err != nil {
			return fmt.Errorf("failed to insert distribution row: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 && i == 0 {
			// First row already present: this order was distributed before.
			return nil
		}
		if r.RecipientType == "participant" {
			if _, err := tx.ExecContext(ctx, `
				UPDATE drop_participants SET earned = earned + ?, updated_at = ? WHERE id = ?`,
				int64(r.Amount), now, r.RecipientID); err != nil {
				return fmt.Errorf("failed to credit participant: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE drops SET total_sales = total_sales + ?, total_orders = total_orders + 1, updated_at = ?
		WHERE id = ?`,
		int64(total), now, dropID); err != nil {
		return fmt.Errorf("failed to bump drop counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// --- raffles ---

func (l *SQLiteLedger) CreateRaffle(ctx context.Context, r *model.Raffle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	r.CreatedAt = now
	if r.Status == "" {
		r.Status = model.RaffleUpcoming
	}
	r.Version = 1

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO raffles (id, month, year, status, prize_pool, rollover, winner_count,
			start_at, end_at, draw_at, total_tickets, total_entries, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 1, ?)`,
		r.ID, r.Month, r.Year, string(r.Status), int64(r.PrizePool), int64(r.Rollover),
		r.WinnerCount, r.StartAt, r.EndAt, r.DrawAt, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert raffle: %w", err)
	}
	return nil
}

const raffleColumns = `id, month, year, status, prize_pool, rollover, winner_count,
	start_at, end_at, draw_at, total_tickets, total_entries, version, created_at, completed_at`

func scanRaffle(row rowScanner) (*model.Raffle, error) {
	var r model.Raffle
	var pool, rollover int64
	var completed sql.NullTime
	err := row.Scan(&r.ID, &r.Month, &r.Year, &r.Status, &pool, &rollover, &r.WinnerCount,
		&r.StartAt, &r.EndAt, &r.DrawAt, &r.TotalTickets, &r.TotalEntries, &r.Version,
		&r.CreatedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan raffle: %w", err)
	}
	r.PrizePool, r.Rollover = model.Cents(pool), model.Cents(rollover)
	r.CompletedAt = nullableTime(completed)
	return &r, nil
}

func (l *SQLiteLedger) GetRaffle(ctx context.Context, id string) (*model.Raffle, error) {
	return scanRaffle(l.db.QueryRowContext(ctx,
		`SELECT `+raffleColumns+` FROM raffles WHERE id = ?`, id))
}

func (l *SQLiteLedger) GetRaffleByPeriod(ctx context.Context, year, month int) (*model.Raffle, error) {
	return scanRaffle(l.db.QueryRowContext(ctx,
		`SELECT `+raffleColumns+` FROM raffles WHERE year = ? AND month = ?`, year, month))
}

func (l *SQLiteLedger) CurrentRaffle(ctx context.Context) (*model.Raffle, error) {
	return scanRaffle(l.db.QueryRowContext(ctx,
		`SELECT `+raffleColumns+` FROM raffles WHERE status = 'active' ORDER BY year DESC, month DESC LIMIT 1`))
}

func (l *SQLiteLedger) TransitionRaffle(ctx context.Context, id string, from, to model.RaffleStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx,
		`UPDATE raffles SET status = ?, version = version + 1 WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition raffle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := l.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM raffles WHERE id = ?)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return model.ErrNotFound
		}
		return model.ErrInvalidTransition
	}
	return nil
}

func (l *SQLiteLedger) AddTickets(ctx context.Context, raffleID, userID, eventKey string, source model.TicketSource, count int) (bool, error) {
	if count <= 0 {
		return false, fmt.Errorf("ticket count must be positive")
	}
	column, err := ticketColumn(source)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The status check rides inside the transaction: issuance against a
	// raffle mid-draw (or paused, or completed) is rejected, never lost.
	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM raffles WHERE id = ?`, raffleID).Scan(&status)
	if err == sql.ErrNoRows {
		return false, model.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to load raffle: %w", err)
	}
	if model.RaffleStatus(status) != model.RaffleActive {
		return false, model.ErrInvalidTransition
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO raffle_ticket_events (id, raffle_id, user_id, event_key, source, count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uid.New(), raffleID, userID, eventKey, string(source), count, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert ticket event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil // duplicate event, nothing issued
	}

	res, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE raffle_entries SET %s = %s + ?, updated_at = ? WHERE raffle_id = ? AND user_id = ?`,
		column, column), count, now, raffleID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to update entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO raffle_entries (id, raffle_id, user_id, %s, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`, column),
			uid.New(), raffleID, userID, count, now, now)
		if err != nil {
			return false, fmt.Errorf("failed to insert entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE raffles SET total_entries = total_entries + 1 WHERE id = ?`, raffleID); err != nil {
			return false, fmt.Errorf("failed to bump entry count: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE raffles SET total_tickets = total_tickets + ? WHERE id = ?`, count, raffleID); err != nil {
		return false, fmt.Errorf("failed to bump ticket count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

const entryColumns = `id, raffle_id, user_id, base_tickets, sale_tickets, referral_tickets,
	social_tickets, disqualified, disqualify_reason, is_winner, prize_place, prize_amount,
	claimed, claimed_at, created_at, updated_at`

func scanEntry(row rowScanner) (*model.RaffleEntry, error) {
	var e model.RaffleEntry
	var prize int64
	var claimedAt sql.NullTime
	err := row.Scan(&e.ID, &e.RaffleID, &e.UserID, &e.BaseTickets, &e.SaleTickets,
		&e.ReferralTickets, &e.SocialTickets, &e.Disqualified, &e.DisqualifyReason,
		&e.IsWinner, &e.PrizePlace, &prize, &e.Claimed, &claimedAt, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}
	e.PrizeAmount = model.Cents(prize)
	e.ClaimedAt = nullableTime(claimedAt)
	return &e, nil
}

func (l *SQLiteLedger) Entries(ctx context.Context, raffleID string) ([]model.RaffleEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM raffle_entries WHERE raffle_id = ? ORDER BY created_at`, raffleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var out []model.RaffleEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) DisqualifyEntry(ctx context.Context, entryID, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx, `
		UPDATE raffle_entries SET disqualified = 1, disqualify_reason = ?, updated_at = ?
		WHERE id = ?`, reason, time.Now().UTC(), entryID)
	if err != nil {
		return fmt.Errorf("failed to disqualify entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (l *SQLiteLedger) MarkWinners(ctx context.Context, raffleID string, winners []model.Winner) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE raffles SET status = 'completed', completed_at = ?, version = version + 1
		WHERE id = ? AND status = 'drawing'`, now, raffleID)
	if err != nil {
		return fmt.Errorf("failed to complete raffle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrInvalidTransition
	}

	for _, w := range winners {
		if _, err := tx.ExecContext(ctx, `
			UPDATE raffle_entries SET is_winner = 1, prize_place = ?, prize_amount = ?, updated_at = ?
			WHERE id = ?`,
			w.Place, int64(w.PrizeAmount), now, w.EntryID); err != nil {
			return fmt.Errorf("failed to mark winner: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) AddToPool(ctx context.Context, raffleID string, amount model.Cents) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx, `
		UPDATE raffles SET prize_pool = prize_pool + ?, rollover = rollover + ? WHERE id = ?`,
		int64(amount), int64(amount), raffleID)
	if err != nil {
		return fmt.Errorf("failed to add to pool: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (l *SQLiteLedger) ClaimPrize(ctx context.Context, entryID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx, `
		UPDATE raffle_entries SET claimed = 1, claimed_at = ?, updated_at = ?
		WHERE id = ? AND is_winner = 1`,
		time.Now().UTC(), time.Now().UTC(), entryID)
	if err != nil {
		return fmt.Errorf("failed to claim prize: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Stats returns operational counters for the admin endpoint.
func (l *SQLiteLedger) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	counts := map[string]string{
		"products":       "SELECT COUNT(*) FROM products",
		"orders":         "SELECT COUNT(*) FROM orders",
		"drops":          "SELECT COUNT(*) FROM drops",
		"raffle_entries": "SELECT COUNT(*) FROM raffle_entries",
	}
	for name, q := range counts {
		var n int64
		if err := l.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, err
		}
		stats[name] = n
	}

	var pageCount, pageSize int64
	l.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	l.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats["db_size_bytes"] = pageCount * pageSize

	return stats, nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// Ensure SQLiteLedger implements Ledger
var _ Ledger = (*SQLiteLedger)(nil)
