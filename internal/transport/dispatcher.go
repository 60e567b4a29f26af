package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/handoff-router/internal/domain"
	"github.com/ashureev/handoff-router/internal/router"
)

// OrderPublisher announces recorded orders to external consumers.
type OrderPublisher interface {
	PublishOrder(ctx context.Context, order *domain.Order) error
}

// Sink observes every effect the dispatcher executed, successful or not.
type Sink interface {
	Publish(effect router.Effect, err error)
}

// Dispatcher executes router effects after the reply has been sent.
type Dispatcher struct {
	sender    Sender
	publisher OrderPublisher // optional
	sink      Sink           // optional
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. publisher and sink may be nil.
func NewDispatcher(sender Sender, publisher OrderPublisher, sink Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sender:    sender,
		publisher: publisher,
		sink:      sink,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Dispatch executes effects in order. A failed effect does not stop the
// rest; all failures are returned joined.
func (d *Dispatcher) Dispatch(ctx context.Context, effects []router.Effect) error {
	var errs []error
	for _, e := range effects {
		err := d.execute(ctx, e)
		if err != nil {
			d.logger.Error("effect failed", "kind", e.Kind, "to", e.To, "buyer", e.Buyer, "error", err)
			errs = append(errs, fmt.Errorf("%s to %s: %w", e.Kind, e.To, err))
		} else {
			d.logger.Debug("effect delivered", "kind", e.Kind, "to", e.To, "buyer", e.Buyer)
		}
		if d.sink != nil {
			d.sink.Publish(e, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) execute(ctx context.Context, e router.Effect) error {
	if e.Kind == router.EffectOrderPlaced {
		if d.publisher == nil || e.Order == nil {
			return nil
		}
		return d.publisher.PublishOrder(ctx, e.Order)
	}
	if e.To == "" {
		return fmt.Errorf("effect %s has no recipient", e.Kind)
	}
	if d.sender == nil {
		return fmt.Errorf("no sender configured")
	}
	return d.sender.Send(ctx, e.To, e.Body)
}
