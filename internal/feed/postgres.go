package feed

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGListener holds one pooled connection in LISTEN mode per Listen call.
type PGListener struct {
	pool *pgxpool.Pool
}

func NewPGListener(pool *pgxpool.Pool) *PGListener {
	return &PGListener{pool: pool}
}

func (l *PGListener) Listen(ctx context.Context, channel string, ready func(), handle func(payload string)) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "UNLISTEN *"); err != nil {
			log.Printf("unlisten error: %v", err)
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return err
	}
	if ready != nil {
		ready()
	}
	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		handle(notification.Payload)
	}
}
