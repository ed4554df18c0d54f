package app

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"waketimer/internal/eventbus"
	"waketimer/internal/power"
	"waketimer/internal/storage"
	"waketimer/internal/timer"
	logx "waketimer/pkg/logx"
)

const journalWriteTimeout = 2 * time.Second

// journal copies round and power events from the bus into the store.
type journal struct {
	log   logx.Logger
	store storage.Store
	warn  rate.Sometimes
}

func newJournal(store storage.Store, log logx.Logger) *journal {
	return &journal{
		log:   log,
		store: store,
		warn:  rate.Sometimes{First: 3, Interval: time.Minute},
	}
}

// run consumes events until ctx is done, then drains what is already
// buffered so the last rounds before shutdown are not lost.
func (j *journal) run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-events:
					if !ok {
						return nil
					}
					j.write(context.Background(), e)
				default:
					return nil
				}
			}
		case e, ok := <-events:
			if !ok {
				return nil
			}
			j.write(ctx, e)
		}
	}
}

func (j *journal) write(ctx context.Context, e eventbus.Event) {
	wctx, cancel := context.WithTimeout(ctx, journalWriteTimeout)
	defer cancel()

	var err error
	switch data := e.Data.(type) {
	case timer.RoundEvent:
		err = j.store.AppendRound(wctx, roundRecord(data))
	case power.ModeEvent:
		err = j.store.AppendPower(wctx, storage.PowerRecord{At: data.At, Mode: data.Mode, Source: data.Source})
	default:
		return
	}
	if err != nil {
		j.warn.Do(func() {
			j.log.Warn("journal write failed", logx.String("type", e.Type), logx.Err(err))
		})
	}
}

func roundRecord(ev timer.RoundEvent) storage.RoundRecord {
	return storage.RoundRecord{
		ID:          ev.ID,
		Timer:       ev.Timer,
		Started:     ev.Started,
		Duration:    ev.Duration,
		Subscribers: ev.Subscribers,
		Invoked:     ev.Invoked,
		Failures:    ev.Failures,
		NextWait:    ev.NextWait,
		Error:       ev.Error,
	}
}
