package outbox

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/sirupsen/logrus"
)

// Consumer handles the messages of one topic. A returned error nacks the message after retries.
type Consumer struct {
	Name   string
	Topic  string
	Handle func(msg *message.Message) error
}

// NewRouter wires consumers to the subscriber. Run the returned router with Run(ctx).
func NewRouter(subscriber message.Subscriber, logger watermill.LoggerAdapter, consumers ...Consumer) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, logger)
	if err != nil {
		return nil, err
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			Multiplier:      2,
			Logger:          logger,
		}.Middleware,
	)
	for _, c := range consumers {
		router.AddNoPublisherHandler(c.Name, c.Topic, subscriber, c.Handle)
	}
	return router, nil
}

// RunRouter starts the router in background and returns once its handlers are subscribed.
func RunRouter(ctx context.Context, router *message.Router) error {
	errs := make(chan error, 1)
	go func() {
		err := router.Run(ctx)
		if err != nil {
			logrus.WithError(err).Error("outbox router stopped")
		}
		errs <- err
	}()
	select {
	case <-router.Running():
		return nil
	case err := <-errs:
		return err
	}
}
