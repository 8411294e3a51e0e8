package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	changeChannel  = "order_changes"
	reconnectDelay = time.Second
)

// Postgres keeps orders as JSONB documents and streams changes through
// LISTEN/NOTIFY.
type Postgres struct {
	pool *pgxpool.Pool

	feedMu    sync.Mutex
	listeners map[*listener]struct{}
	stopFeed  context.CancelFunc
	feedDone  chan struct{}
}

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool:      pool,
		listeners: make(map[*listener]struct{}),
	}
}

func (p *Postgres) InsertOrder(ctx context.Context, o order.Order) (order.Order, error) {
	o = Clone(o)
	o.ID = uuid.NewString()
	o.GuestToken = ""
	o.Version = 1

	doc, err := json.Marshal(o)
	if err != nil {
		return order.Order{}, fmt.Errorf("encode order: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, version, created_at, updated_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, nullText(o.UserID), string(o.Status), o.Version, o.CreatedAt, o.UpdatedAt, doc,
	)
	if err != nil {
		return order.Order{}, storeErr("insert order", err)
	}
	return o, nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (order.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return order.Order{}, order.ErrNotFound
	}
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM orders WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		return order.Order{}, storeErr("get order", err)
	}
	return decodeOrder(doc)
}

func (p *Postgres) ListOrders(ctx context.Context, f Filter) ([]order.Order, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if f.UserID != "" {
		// No composite (user_id, created_at) index; callers sort.
		rows, err = p.pool.Query(ctx, `SELECT doc FROM orders WHERE user_id = $1`, f.UserID)
	} else {
		rows, err = p.pool.Query(ctx, `SELECT doc FROM orders ORDER BY created_at DESC, id DESC`)
	}
	if err != nil {
		return nil, storeErr("list orders", err)
	}

	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, storeErr("list orders", err)
	}
	out := make([]order.Order, 0, len(docs))
	for _, doc := range docs {
		o, err := decodeOrder(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (p *Postgres) UpdateOrder(ctx context.Context, id string, u order.Update) (order.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return order.Order{}, order.ErrNotFound
	}

	patch := map[string]any{"updated_at": u.UpdatedAt}
	status := pgtype.Text{}
	if u.Status != nil {
		patch["status"] = *u.Status
		status = pgtype.Text{String: string(*u.Status), Valid: true}
	}
	if u.PaymentConfirmed != nil {
		patch["payment_confirmed"] = *u.PaymentConfirmed
	}
	if u.EstimatedDeliveryTime != nil {
		patch["estimated_delivery_time"] = *u.EstimatedDeliveryTime
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return order.Order{}, fmt.Errorf("encode order patch: %w", err)
	}

	var doc []byte
	err = p.pool.QueryRow(ctx, `
		UPDATE orders
		SET status     = COALESCE($2, status),
		    version    = version + 1,
		    updated_at = $3,
		    doc        = doc || $4::jsonb || jsonb_build_object('version', version + 1)
		WHERE id = $1
		RETURNING doc`,
		id, status, u.UpdatedAt, patchJSON,
	).Scan(&doc)
	if err != nil {
		return order.Order{}, storeErr("update order", err)
	}
	return decodeOrder(doc)
}

// Listen registers a change listener on the shared order feed. Every
// listener of this Postgres is served by one LISTEN connection, which is
// opened by the first call and kept until Close. A dropped connection is
// re-established and every order is re-emitted so nothing committed
// meanwhile is lost; consumers discard versions they have already seen.
func (p *Postgres) Listen(ctx context.Context) (<-chan order.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.feedMu.Lock()
	if p.stopFeed == nil {
		conn, err := p.listenConn(ctx)
		if err != nil {
			p.feedMu.Unlock()
			return nil, err
		}
		feedCtx, cancel := context.WithCancel(context.Background())
		p.stopFeed = cancel
		p.feedDone = make(chan struct{})
		go p.runFeed(feedCtx, conn, p.feedDone)
	}
	l := newListener()
	p.listeners[l] = struct{}{}
	p.feedMu.Unlock()

	go func() {
		<-ctx.Done()
		p.feedMu.Lock()
		delete(p.listeners, l)
		p.feedMu.Unlock()
		l.close()
	}()
	go l.pump()
	return l.out, nil
}

// Close stops the shared change feed and releases its connection. Open
// listener channels are closed. The pool itself is left to the caller.
func (p *Postgres) Close() {
	p.feedMu.Lock()
	stop, done := p.stopFeed, p.feedDone
	p.stopFeed, p.feedDone = nil, nil
	listeners := p.listeners
	p.listeners = make(map[*listener]struct{})
	p.feedMu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	for l := range listeners {
		l.close()
	}
}

func (p *Postgres) runFeed(ctx context.Context, conn *pgxpool.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		err := p.forward(ctx, conn)
		conn.Release()
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("store: order change feed interrupted, reconnecting")

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			conn, err = p.listenConn(ctx)
			if err == nil {
				break
			}
			log.Warn().Err(err).Msg("store: order change feed reconnect failed")
		}
		if err := p.resync(ctx); err != nil {
			log.Warn().Err(err).Msg("store: order change feed resync failed")
		}
	}
}

func (p *Postgres) listenConn(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, storeErr("acquire listen conn", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		conn.Release()
		return nil, storeErr("listen", err)
	}
	return conn, nil
}

// forward fetches each changed document once and fans it out.
func (p *Postgres) forward(ctx context.Context, conn *pgxpool.Conn) error {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if p.listenerCount() == 0 {
			continue
		}
		o, err := p.GetOrder(ctx, n.Payload)
		if err != nil {
			log.Warn().Err(err).Str("order_id", n.Payload).Msg("store: fetch changed order")
			continue
		}
		p.publish(o)
	}
}

func (p *Postgres) resync(ctx context.Context) error {
	orders, err := p.ListOrders(ctx, Filter{})
	if err != nil {
		return err
	}
	// Oldest first so consumers see creations in commit order.
	for i := len(orders) - 1; i >= 0; i-- {
		p.publish(orders[i])
	}
	return nil
}

func (p *Postgres) publish(o order.Order) {
	p.feedMu.Lock()
	defer p.feedMu.Unlock()
	for l := range p.listeners {
		l.push(Clone(o))
	}
}

func (p *Postgres) listenerCount() int {
	p.feedMu.Lock()
	defer p.feedMu.Unlock()
	return len(p.listeners)
}

func (p *Postgres) ListFoods(ctx context.Context) ([]order.Food, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, description, price, category, available
		FROM foods ORDER BY category, name`)
	if err != nil {
		return nil, storeErr("list foods", err)
	}
	defer rows.Close()

	var out []order.Food
	for rows.Next() {
		f, err := scanFood(rows)
		if err != nil {
			return nil, storeErr("scan food", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list foods", err)
	}
	return out, nil
}

func (p *Postgres) GetFood(ctx context.Context, id string) (order.Food, error) {
	if _, err := uuid.Parse(id); err != nil {
		return order.Food{}, order.ErrNotFound
	}
	row := p.pool.QueryRow(ctx, `
		SELECT id, name, description, price, category, available
		FROM foods WHERE id = $1`, id)
	f, err := scanFood(row)
	if err != nil {
		return order.Food{}, storeErr("get food", err)
	}
	return f, nil
}

func (p *Postgres) CreateFood(ctx context.Context, f order.Food) (order.Food, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO foods (name, description, price, category, available)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, description, price, category, available`,
		f.Name, f.Description, decimalToNumeric(f.Price), f.Category, f.Available,
	)
	created, err := scanFood(row)
	if err != nil {
		return order.Food{}, storeErr("create food", err)
	}
	return created, nil
}

func scanFood(row pgx.Row) (order.Food, error) {
	var (
		f     order.Food
		id    uuid.UUID
		price pgtype.Numeric
	)
	if err := row.Scan(&id, &f.Name, &f.Description, &price, &f.Category, &f.Available); err != nil {
		return order.Food{}, err
	}
	f.ID = id.String()
	f.Price = numericToDecimal(price)
	return f, nil
}

func decodeOrder(doc []byte) (order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(doc, &o); err != nil {
		return order.Order{}, fmt.Errorf("decode order: %w", err)
	}
	return o, nil
}

// storeErr maps pgx errors onto the order error kinds. Anything that did
// not come back from the server as a PgError is treated as unavailability.
func storeErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return order.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, order.ErrStoreUnavailable, err)
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
