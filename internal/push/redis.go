package push

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisSource receives push payloads from a Redis pub/sub channel.
type RedisSource struct {
	client     *redis.Client
	channel    string
	dispatcher *Dispatcher
	log        log.FieldLogger
}

// NewRedisSource subscribes d to channel on client.
func NewRedisSource(client *redis.Client, channel string, d *Dispatcher, logger log.FieldLogger) *RedisSource {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisSource{
		client:     client,
		channel:    channel,
		dispatcher: d,
		log:        logger.WithFields(log.Fields{"ingress": "redis", "channel": channel}),
	}
}

// Run consumes the channel until ctx ends. Each message is dispatched on
// its own goroutine; Run returns after those dispatches finished.
func (s *RedisSource) Run(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.log.Info("subscribed")

	var wg sync.WaitGroup
	defer wg.Wait()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func(data string) {
				defer wg.Done()
				s.handle(context.WithoutCancel(ctx), data)
			}(msg.Payload)
		}
	}
}

func (s *RedisSource) handle(ctx context.Context, data string) {
	n, err := DecodePayload([]byte(data))
	if err != nil {
		s.log.WithError(err).Warn("dropping malformed payload")
		return
	}

	ev := NewEvent(n)
	if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
		s.log.WithError(err).WithField("event", ev.ID).Warn("dispatch failed")
	}
}

// Publish sends a notification to channel. It is the sending half used by
// tooling and tests.
func Publish(ctx context.Context, client *redis.Client, channel string, n *Notification) error {
	data, err := EncodePayload(n)
	if err != nil {
		return err
	}
	if err := client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}
