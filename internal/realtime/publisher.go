package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"tribunalsync/client/internal/store"
)

// Publisher fans row changes out to every connected client. It implements
// store.ChangePublisher and never fails the write that triggered it: a lost
// notification means peers converge on their next bulk load, a failed write
// would lose data.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) EventChanged(ctx context.Context, kind string, event store.Event) {
	p.publish(ctx, channelEvents, Change{Table: store.TableEvents, Kind: kind, Row: marshalRow(eventToRow(event))})
}

func (p *Publisher) UnitChanged(ctx context.Context, kind string, unit store.Unit) {
	p.publish(ctx, channelUnits, Change{Table: store.TableUnits, Kind: kind, Row: marshalRow(unitToRow(unit))})
}

func (p *Publisher) publish(ctx context.Context, channel string, c Change) {
	payload, err := json.Marshal(c)
	if err != nil {
		log.Printf("realtime: marshal change for %s: %v", channel, err)
		return
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		log.Printf("realtime: publish to %s: %v", channel, err)
	}
}

func marshalRow(row any) json.RawMessage {
	payload, err := json.Marshal(row)
	if err != nil {
		return json.RawMessage("{}")
	}
	return payload
}
