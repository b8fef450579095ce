// Package dispatch maps validated domain events to their realtime
// effects: room broadcasts, background jobs, and recommendation cache
// invalidation.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teemates/realtime/bus"
	"github.com/teemates/realtime/domain"
	"github.com/teemates/realtime/event"
	"github.com/teemates/realtime/jobs"
	"github.com/teemates/realtime/logger"
	"github.com/teemates/realtime/notify"
	"github.com/teemates/realtime/ws"
)

// Broadcaster fans frames out to rooms and users
type Broadcaster interface {
	BroadcastToRoom(room string, frame ws.ServerFrame)
	BroadcastToUser(userID string, frame ws.ServerFrame)
}

// Enqueuer adds jobs to the durable queue
type Enqueuer interface {
	Enqueue(job *jobs.Job) (*jobs.Job, error)
}

// Invalidator drops recommendation cache entries touching an ID
type Invalidator interface {
	Invalidate(id string)
}

// Dispatcher holds the effect targets shared by all event handlers
type Dispatcher struct {
	repo  domain.Repository
	hub   Broadcaster
	queue Enqueuer
	cache Invalidator
	log   *zap.SugaredLogger
}

// NewDispatcher creates the event dispatcher
func NewDispatcher(repo domain.Repository, hub Broadcaster, queue Enqueuer, cache Invalidator) *Dispatcher {
	return &Dispatcher{
		repo:  repo,
		hub:   hub,
		queue: queue,
		cache: cache,
		log:   logger.Logger.Named("dispatch"),
	}
}

// RegisterAll wires one handler per event variant onto the subscriber
func (d *Dispatcher) RegisterAll(sub *bus.Subscriber) {
	sub.Register(event.TypeOpportunityCreated, d.onOpportunityCreated)
	sub.Register(event.TypeOpportunityUpdated, d.onOpportunityUpdated)
	sub.Register(event.TypeOpportunityCancelled, d.onOpportunityCancelled)
	sub.Register(event.TypeSlotJoined, d.onSlotJoined)
	sub.Register(event.TypeSlotLeft, d.onSlotLeft)
	sub.Register(event.TypeMessageSent, d.onMessageSent)
}

// newTeeTime is the payload of new_tee_time frames
type newTeeTime struct {
	OpportunityID string    `json:"opportunityId"`
	HostID        string    `json:"hostId"`
	CourseName    string    `json:"courseName,omitempty"`
	StartTime     time.Time `json:"startTime"`
	OpenSlots     int       `json:"openSlots"`
	Style         string    `json:"style,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// teeTimeUpdate is the payload of tee_time_update frames. Change is
// one of joined, left, updated, cancelled.
type teeTimeUpdate struct {
	OpportunityID  string `json:"opportunityId"`
	Change         string `json:"change"`
	UserID         string `json:"userId,omitempty"`
	RemainingSlots *int   `json:"remainingSlots,omitempty"`
	CorrelationID  string `json:"correlationId,omitempty"`
}

type slotFilled struct {
	OpportunityID string `json:"opportunityId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

type messageNotice struct {
	MessageID     string `json:"messageId"`
	SenderID      string `json:"senderId"`
	Preview       string `json:"preview,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func (d *Dispatcher) onOpportunityCreated(ctx context.Context, evt *event.Event) error {
	p := evt.Payload.(*event.OpportunityCreated)

	frame := ws.NewFrame(ws.FrameNewTeeTime, newTeeTime{
		OpportunityID: p.OpportunityID,
		HostID:        p.HostID,
		CourseName:    p.CourseName,
		StartTime:     p.StartTime,
		OpenSlots:     p.OpenSlots,
		Style:         p.Style,
		CorrelationID: evt.CorrelationID,
	})
	d.hub.BroadcastToRoom(ws.RoomFeed, frame)
	if p.Style != "" {
		d.hub.BroadcastToRoom(ws.StyleRoom(p.Style), frame)
	}

	job := jobs.NewJob(jobs.QueueMatching, jobs.TaskMatchingOpportunity,
		jobs.MarshalPayload(jobs.MatchingPayload{OpportunityID: p.OpportunityID}),
		jobs.WithKey("match:"+p.OpportunityID),
		jobs.WithCorrelationID(evt.CorrelationID),
	)
	if _, err := d.queue.Enqueue(job); err != nil {
		return err
	}

	// The host's own recommendations now include a round they run.
	d.cache.Invalidate(p.HostID)
	return nil
}

func (d *Dispatcher) onOpportunityUpdated(ctx context.Context, evt *event.Event) error {
	p := evt.Payload.(*event.OpportunityUpdated)

	d.hub.BroadcastToRoom(ws.TeeTimeRoom(p.OpportunityID), ws.NewFrame(ws.FrameTeeTimeUpdate, teeTimeUpdate{
		OpportunityID: p.OpportunityID,
		Change:        "updated",
		CorrelationID: evt.CorrelationID,
	}))
	d.cache.Invalidate(p.OpportunityID)
	return nil
}

func (d *Dispatcher) onSlotJoined(ctx context.Context, evt *event.Event) error {
	p := evt.Payload.(*event.SlotJoined)

	remaining := p.RemainingSlots
	d.hub.BroadcastToRoom(ws.TeeTimeRoom(p.OpportunityID), ws.NewFrame(ws.FrameTeeTimeUpdate, teeTimeUpdate{
		OpportunityID:  p.OpportunityID,
		Change:         "joined",
		UserID:         p.UserID,
		RemainingSlots: &remaining,
		CorrelationID:  evt.CorrelationID,
	}))

	if p.RemainingSlots == 0 {
		d.hub.BroadcastToRoom(ws.TeeTimeRoom(p.OpportunityID), ws.NewFrame(ws.FrameSlotFilled, slotFilled{
			OpportunityID: p.OpportunityID,
			CorrelationID: evt.CorrelationID,
		}))
		if err := d.enqueueSlotFilled(ctx, evt, p.OpportunityID); err != nil {
			return err
		}
	}

	d.cache.Invalidate(p.OpportunityID)
	d.cache.Invalidate(p.UserID)
	return nil
}

// enqueueSlotFilled tells the host their round is complete. Keyed per
// opportunity so replays and racing joins produce one job.
func (d *Dispatcher) enqueueSlotFilled(ctx context.Context, evt *event.Event, opportunityID string) error {
	opp, err := d.repo.GetOpportunity(ctx, opportunityID)
	if err != nil {
		d.log.Warnw("cannot load opportunity for slot-filled notification",
			"opportunity_id", opportunityID, "error", err)
		return nil
	}

	content := notify.ComposeSlotFilled(opp)
	job := jobs.NewJob(jobs.QueueNotifications, jobs.TaskNotificationDeliver,
		jobs.MarshalPayload(jobs.DeliverPayload{
			UserID: opp.HostID,
			Kind:   content.Kind,
			Title:  content.Title,
			Body:   content.Body,
			Data:   content.Data,
		}),
		jobs.WithKey("slot-filled:"+opportunityID),
		jobs.WithCorrelationID(evt.CorrelationID),
	)
	_, err = d.queue.Enqueue(job)
	return err
}

func (d *Dispatcher) onSlotLeft(ctx context.Context, evt *event.Event) error {
	p := evt.Payload.(*event.SlotLeft)

	remaining := p.RemainingSlots
	d.hub.BroadcastToRoom(ws.TeeTimeRoom(p.OpportunityID), ws.NewFrame(ws.FrameTeeTimeUpdate, teeTimeUpdate{
		OpportunityID:  p.OpportunityID,
		Change:         "left",
		UserID:         p.UserID,
		RemainingSlots: &remaining,
		CorrelationID:  evt.CorrelationID,
	}))

	d.cache.Invalidate(p.OpportunityID)
	d.cache.Invalidate(p.UserID)
	return nil
}

func (d *Dispatcher) onOpportunityCancelled(ctx context.Context, evt *event.Event) error {
	p := evt.Payload.(*event.OpportunityCancelled)

	frame := ws.NewFrame(ws.FrameTeeTimeUpdate, teeTimeUpdate{
		OpportunityID: p.OpportunityID,
		Change:        "cancelled",
		CorrelationID: evt.CorrelationID,
	})
	d.hub.BroadcastToRoom(ws.TeeTimeRoom(p.OpportunityID), frame)
	d.hub.BroadcastToRoom(ws.RoomFeed, frame)

	if err := d.enqueueCancellations(ctx, evt, p); err != nil {
		return err
	}

	d.cache.Invalidate(p.OpportunityID)
	d.cache.Invalidate(p.HostID)
	return nil
}

// enqueueCancellations queues one notification per joined player.
// Keys are per participant so a replayed event cannot double-notify
// anyone, while new joiners since the first delivery still get theirs.
func (d *Dispatcher) enqueueCancellations(ctx context.Context, evt *event.Event, p *event.OpportunityCancelled) error {
	slots, err := d.repo.ListSlots(ctx, p.OpportunityID)
	if err != nil {
		d.log.Warnw("cannot list participants for cancellation",
			"opportunity_id", p.OpportunityID, "error", err)
		return nil
	}

	content := notify.Content{
		Kind:  notify.KindCancelled,
		Title: "Tee time cancelled",
		Body:  "A round you joined was cancelled by the host.",
	}
	if opp, err := d.repo.GetOpportunity(ctx, p.OpportunityID); err == nil {
		content = notify.ComposeCancelled(opp)
	}

	for _, slot := range slots {
		if slot.UserID == p.HostID {
			continue
		}
		job := jobs.NewJob(jobs.QueueNotifications, jobs.TaskNotificationDeliver,
			jobs.MarshalPayload(jobs.DeliverPayload{
				UserID: slot.UserID,
				Kind:   content.Kind,
				Title:  content.Title,
				Body:   content.Body,
				Data:   content.Data,
			}),
			jobs.WithKey(fmt.Sprintf("cancel:%s:%s", p.OpportunityID, slot.UserID)),
			jobs.WithCorrelationID(evt.CorrelationID),
		)
		if _, err := d.queue.Enqueue(job); err != nil {
			return err
		}
		d.cache.Invalidate(slot.UserID)
	}
	return nil
}

func (d *Dispatcher) onMessageSent(ctx context.Context, evt *event.Event) error {
	p := evt.Payload.(*event.MessageSent)

	d.hub.BroadcastToUser(p.RecipientID, ws.NewFrame(ws.FrameNotification, messageNotice{
		MessageID:     p.MessageID,
		SenderID:      p.SenderID,
		Preview:       p.Preview,
		CorrelationID: evt.CorrelationID,
	}))

	content := d.messageContent(ctx, p)
	job := jobs.NewJob(jobs.QueueNotifications, jobs.TaskNotificationDeliver,
		jobs.MarshalPayload(jobs.DeliverPayload{
			UserID: p.RecipientID,
			Kind:   content.Kind,
			Title:  content.Title,
			Body:   content.Body,
			Data:   content.Data,
		}),
		jobs.WithKey("msg:"+p.MessageID),
		jobs.WithCorrelationID(evt.CorrelationID),
	)
	_, err := d.queue.Enqueue(job)
	return err
}

// messageContent composes the offline notification for a message,
// falling back to the event preview when the stores are unavailable.
func (d *Dispatcher) messageContent(ctx context.Context, p *event.MessageSent) notify.Content {
	msg, err := d.repo.GetMessage(ctx, p.MessageID)
	if err != nil {
		return notify.Content{Kind: notify.KindMessage, Title: "New message", Body: p.Preview}
	}
	sender, err := d.repo.GetUser(ctx, p.SenderID)
	if err != nil {
		return notify.Content{Kind: notify.KindMessage, Title: "New message", Body: p.Preview}
	}
	return notify.ComposeMessage(sender, msg)
}
