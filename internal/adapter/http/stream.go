package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// Stream event payloads. Each type maps to one SSE event name.
type (
	SnapshotEvent     domain.Notification
	CreatedEvent      domain.Notification
	UpdatedEvent      domain.Notification
	LockedEvent       domain.Notification
	UnlockedEvent     domain.Notification
	ConvertedEvent    domain.Notification
	DeletedEvent      domain.Notification
	AutoUnlockedEvent domain.Notification
)

// PingEvent keeps idle connections open through proxies.
type PingEvent struct {
	At time.Time `json:"at"`
}

// StreamErrorEvent ends a stream whose caller could not be admitted.
type StreamErrorEvent struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

var streamEvents = map[string]any{
	string(domain.NotifySnapshot):     SnapshotEvent{},
	string(domain.NotifyCreated):      CreatedEvent{},
	string(domain.NotifyUpdated):      UpdatedEvent{},
	string(domain.NotifyLocked):       LockedEvent{},
	string(domain.NotifyUnlocked):     UnlockedEvent{},
	string(domain.NotifyConverted):    ConvertedEvent{},
	string(domain.NotifyDeleted):      DeletedEvent{},
	string(domain.NotifyAutoUnlocked): AutoUnlockedEvent{},
	"ping":                            PingEvent{},
	"error":                           StreamErrorEvent{},
}

func streamEvent(n domain.Notification) any {
	switch n.Type {
	case domain.NotifySnapshot:
		return SnapshotEvent(n)
	case domain.NotifyCreated:
		return CreatedEvent(n)
	case domain.NotifyUpdated:
		return UpdatedEvent(n)
	case domain.NotifyLocked:
		return LockedEvent(n)
	case domain.NotifyUnlocked:
		return UnlockedEvent(n)
	case domain.NotifyConverted:
		return ConvertedEvent(n)
	case domain.NotifyDeleted:
		return DeletedEvent(n)
	case domain.NotifyAutoUnlocked:
		return AutoUnlockedEvent(n)
	}
	return nil
}

type StreamInput struct {
	CallerHeaders
}

func registerStream(api huma.API, svc Services) {
	sse.Register(api, huma.Operation{
		OperationID: "stream-drafts",
		Method:      http.MethodGet,
		Path:        "/api/v1/drafts/stream",
		Summary:     "Stream draft notifications for the caller's company",
		Description: "The first event is a snapshot of the open drafts. Lifecycle events follow in publish order.",
		Tags:        []string{"Drafts"},
	}, streamEvents, func(ctx context.Context, input *StreamInput, send sse.Sender) {
		sub, err := svc.Drafts.Subscribe(ctx, input.caller())
		if err != nil {
			herr := toHumaError(err)
			status := http.StatusInternalServerError
			if se, ok := herr.(huma.StatusError); ok {
				status = se.GetStatus()
			}
			_ = send.Data(StreamErrorEvent{Status: status, Message: herr.Error()})
			return
		}
		defer sub.Close()

		ping := time.NewTicker(svc.PingInterval)
		defer ping.Stop()

		seq := 0
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-sub.Events():
				if !ok {
					return
				}
				data := streamEvent(n)
				if data == nil {
					continue
				}
				seq++
				if err := send(sse.Message{ID: seq, Data: data}); err != nil {
					return
				}
			case now := <-ping.C:
				if err := send.Data(PingEvent{At: now.UTC()}); err != nil {
					return
				}
			}
		}
	})
}
