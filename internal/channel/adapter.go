package channel

import (
	"context"
	"errors"
	"sync/atomic"
)

var ErrStopNotSupported = errors.New("channel connection stop not supported")

// InboundHandler processes one inbound message and returns the replies to
// deliver, in order. Handler errors are logged by the adapter, not surfaced
// to the platform.
type InboundHandler func(ctx context.Context, msg InboundMessage) ([]OutboundMessage, error)

type Adapter interface {
	Type() ChannelType
}

type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

type Receiver interface {
	Connect(ctx context.Context, handler InboundHandler) (Connection, error)
}

type Connection interface {
	ChannelType() ChannelType
	Stop(ctx context.Context) error
	Running() bool
}

type BaseConnection struct {
	channelType ChannelType
	stop        func(ctx context.Context) error
	running     atomic.Bool
}

func NewConnection(channelType ChannelType, stop func(ctx context.Context) error) *BaseConnection {
	conn := &BaseConnection{
		channelType: channelType,
		stop:        stop,
	}
	conn.running.Store(true)
	return conn
}

func (c *BaseConnection) ChannelType() ChannelType {
	return c.channelType
}

func (c *BaseConnection) Stop(ctx context.Context) error {
	if c.stop == nil {
		return ErrStopNotSupported
	}
	err := c.stop(ctx)
	if err == nil {
		c.running.Store(false)
	}
	return err
}

func (c *BaseConnection) Running() bool {
	return c.running.Load()
}
