package broadcast

import (
	"context"
	"errors"
)

// Publisher delivers one event to every current subscriber of a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, event string, payload interface{}) error
}

// MultiPublisher publishes to each of its publishers in order and reports
// all failures together.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, topic, event string, payload interface{}) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
