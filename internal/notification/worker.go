package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"exam-reservation-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Notice is the JSON payload delivered to the browser.
type Notice struct {
	Title         string `json:"title"`
	Body          string `json:"body"`
	ReservationID int64  `json:"reservation_id"`
	Kind          string `json:"kind"`
}

// WorkerPool manages a pool of workers that tell reservation owners about
// confirmations and cancellations.
type WorkerPool struct {
	size    int
	jobs    chan model.ReservationEvent
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	loc     *time.Location
}

// NewWorkerPool creates a new worker pool. Start times in notices are
// rendered in loc.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, loc *time.Location) *WorkerPool {
	if loc == nil {
		loc = time.UTC
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.ReservationEvent, size*16),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		loc:     loc,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case ev := <-wp.jobs:
			log.Printf("Worker %d processing %s event for reservation %d", id, ev.Kind, ev.ReservationID)
			wp.sendNotificationsForEvent(ctx, ev)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an event without blocking. When the queue is full the
// event is dropped; notices are advisory and never hold up a reservation.
func (wp *WorkerPool) Dispatch(ev model.ReservationEvent) {
	select {
	case wp.jobs <- ev:
	default:
		log.Printf("Notification queue full; dropping %s event for reservation %d", ev.Kind, ev.ReservationID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan model.ReservationEvent {
	return wp.jobs
}

func (wp *WorkerPool) notice(ev model.ReservationEvent) Notice {
	when := ev.StartAt.In(wp.loc).Format("2006-01-02 15:04")
	n := Notice{ReservationID: ev.ReservationID, Kind: string(ev.Kind)}
	switch ev.Kind {
	case model.EventConfirmed:
		n.Title = "Reservation confirmed"
		n.Body = fmt.Sprintf("Your exam reservation #%d for %s has been confirmed.", ev.ReservationID, when)
	case model.EventCancelled:
		n.Title = "Reservation cancelled"
		n.Body = fmt.Sprintf("Your exam reservation #%d for %s has been cancelled.", ev.ReservationID, when)
	default:
		n.Title = "Reservation updated"
		n.Body = fmt.Sprintf("Your exam reservation #%d for %s has changed.", ev.ReservationID, when)
	}
	return n
}

// sendNotificationsForEvent fetches the owner's subscriptions and notifies each.
func (wp *WorkerPool) sendNotificationsForEvent(ctx context.Context, ev model.ReservationEvent) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).
		Where("user_id = ?", ev.OwnerID).
		Find(&subscriptions).Error; err != nil {
		log.Printf("Error fetching subscriptions for user %d: %v", ev.OwnerID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(wp.notice(ev))
	if err != nil {
		log.Printf("Error encoding notice for reservation %d: %v", ev.ReservationID, err)
		return
	}

	log.Printf("Sending %d notifications for reservation %d", len(subscriptions), ev.ReservationID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
