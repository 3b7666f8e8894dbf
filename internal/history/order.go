// Package history records placed eSIM orders: a Postgres table for the
// profile screen and an optional Kafka stream for downstream consumers.
package history

import (
	"context"
	"embed"
	"log/slog"
	"time"

	"github.com/m3rciful/esimbot/core/database"
	"github.com/m3rciful/esimbot/core/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations returns the schema owned by this package.
func Migrations() database.Migrations {
	return database.Migrations{FS: migrationFS, Dir: "migrations"}
}

// Order is one successfully placed order.
type Order struct {
	UserID      int64     `db:"user_id" json:"user_id"`
	OrderNo     string    `db:"order_no" json:"order_no"`
	CountryName string    `db:"country_name" json:"country_name"`
	CountryCode string    `db:"country_code" json:"country_code"`
	PackageName string    `db:"package_name" json:"package_name"`
	PackageCode string    `db:"package_code" json:"package_code"`
	Price       int64     `db:"price" json:"price"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Sink persists or forwards an order.
type Sink interface {
	Save(ctx context.Context, o Order) error
}

// Fanout hands every order to all sinks. Sink failures are logged and
// never reach the caller.
type Fanout struct {
	sinks []namedSink
}

type namedSink struct {
	name string
	sink Sink
}

// NewFanout returns an empty Fanout; attach sinks with Add.
func NewFanout() *Fanout { return &Fanout{} }

// Add registers a sink under a name used in logs. Nil sinks are ignored.
func (f *Fanout) Add(name string, s Sink) *Fanout {
	if s != nil {
		f.sinks = append(f.sinks, namedSink{name: name, sink: s})
	}
	return f
}

// Len reports the number of attached sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Record saves o to every sink in registration order.
func (f *Fanout) Record(ctx context.Context, o Order) {
	for _, s := range f.sinks {
		start := time.Now()
		err := s.sink.Save(ctx, o)
		if err != nil {
			logger.LogEvent(ctx, logger.History, slog.LevelWarn, "history.save",
				slog.String("status", "fail"),
				slog.String("sink", s.name),
				slog.String("order_no", o.OrderNo),
				slog.Duration("duration", logger.Took(start)),
				slog.String("err", logger.ErrAttr(err)),
			)
			continue
		}
		logger.LogEvent(ctx, logger.History, slog.LevelDebug, "history.save",
			slog.String("status", "ok"),
			slog.String("sink", s.name),
			slog.String("order_no", o.OrderNo),
			slog.Duration("duration", logger.Took(start)),
		)
	}
}
