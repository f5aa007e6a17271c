package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrPermanent marks a message that can never be handled. It is
	// committed without retrying.
	ErrPermanent = errors.New("message cannot be handled")
	// ErrMustDeliver marks a message that is retried until it succeeds.
	ErrMustDeliver = errors.New("message must be delivered")
)

type ConsumerHandler interface {
	HandleMessage(message string) error
}

type ProducerHandler interface {
	PublishMessage(ctx context.Context, key, value []byte) error
}
