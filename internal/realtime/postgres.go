package realtime

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource listens for change events published with pg_notify.
type PostgresSource struct {
	pool    *pgxpool.Pool
	channel string
}

var _ Source = (*PostgresSource)(nil)

func NewPostgresSource(pool *pgxpool.Pool, channel string) *PostgresSource {
	return &PostgresSource{pool: pool, channel: channel}
}

// Connect takes a dedicated connection out of the pool and issues LISTEN on it.
func (s *PostgresSource) Connect(ctx context.Context) (Stream, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen on %s: %w", s.channel, err)
	}
	return &postgresStream{conn: conn}, nil
}

type postgresStream struct {
	conn *pgxpool.Conn
}

func (st *postgresStream) Next(ctx context.Context) (ChangeEvent, error) {
	n, err := st.conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("wait for notification: %w", err)
	}
	return DecodeChangeEvent([]byte(n.Payload))
}

// Close returns the connection to the pool, or discards it when UNLISTEN
// cannot be confirmed.
func (st *postgresStream) Close(ctx context.Context) error {
	if _, err := st.conn.Exec(ctx, "UNLISTEN *"); err != nil {
		raw := st.conn.Hijack()
		return raw.Close(ctx)
	}
	st.conn.Release()
	return nil
}
