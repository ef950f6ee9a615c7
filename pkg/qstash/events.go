package qstash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tanpawarit/bingwa/domain/order"
)

type publisher interface {
	Publish(ctx context.Context, req PublishRequest) (PublishResponse, error)
}

// OrderEventPublisher forwards order domain events to a QStash destination.
type OrderEventPublisher struct {
	client      publisher
	destination string
}

var _ order.EventPublisher = (*OrderEventPublisher)(nil)

func NewOrderEventPublisher(client *Client, destination string) (*OrderEventPublisher, error) {
	if client == nil {
		return nil, errors.New("qstash client is required")
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, errors.New("event destination is required")
	}
	return &OrderEventPublisher{client: client, destination: destination}, nil
}

func (p *OrderEventPublisher) PublishOrderEvent(ctx context.Context, evt order.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("qstash: marshal %s event: %w", evt.Type, err)
	}

	_, err = p.client.Publish(ctx, PublishRequest{
		Destination:     p.destination,
		Body:            body,
		DeduplicationID: dedupID(evt),
	})
	return err
}

func dedupID(evt order.Event) string {
	return evt.OrderID + "-" + strings.ReplaceAll(evt.Type, ".", "-") + "-" + strconv.FormatInt(evt.OccurredAt.UnixNano(), 10)
}
