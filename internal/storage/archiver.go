package storage

import (
	"context"

	"github.com/golang/glog"

	"im-sync/internal/models"
	"im-sync/internal/state"
)

// Archiver writes LocalState changes to the archive. Changes are queued by
// the state subscriber and written by Run, so the read path never waits on
// the database.
type Archiver struct {
	messages      MessageRepository
	notifications NotificationRepository
	state         *state.LocalState

	queue chan state.Change
	done  chan struct{}
}

// NewArchiver creates an Archiver reading from st.
func NewArchiver(messages MessageRepository, notifications NotificationRepository, st *state.LocalState) *Archiver {
	return &Archiver{
		messages:      messages,
		notifications: notifications,
		state:         st,
		queue:         make(chan state.Change, 1024),
		done:          make(chan struct{}),
	}
}

// Attach subscribes the archiver to its state until detach is called.
func (a *Archiver) Attach() (detach func()) {
	return a.state.Subscribe(a.enqueue)
}

func (a *Archiver) enqueue(c state.Change) {
	switch c.Kind {
	case state.MessageAppended, state.ConversationReplaced,
		state.NotificationAdded, state.NotificationRead, state.NotificationsReplaced:
	default:
		return
	}
	select {
	case a.queue <- c:
	default:
		glog.Warningf("storage: archive queue full, dropping %s change", c.Kind)
	}
}

// Run writes queued changes until ctx is done. Changes still queued at that
// point are written before Run returns.
func (a *Archiver) Run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case c := <-a.queue:
			a.apply(context.Background(), c)
		case <-ctx.Done():
			for {
				select {
				case c := <-a.queue:
					a.apply(context.Background(), c)
				default:
					return
				}
			}
		}
	}
}

// Done is closed when Run has returned.
func (a *Archiver) Done() <-chan struct{} { return a.done }

func (a *Archiver) apply(ctx context.Context, c state.Change) {
	var err error
	switch c.Kind {
	case state.MessageAppended:
		if c.Message != nil {
			err = a.messages.Save(ctx, models.NewArchivedMessage(c.ConversationID, *c.Message))
		}
	case state.ConversationReplaced:
		for _, m := range a.state.Messages(c.ConversationID) {
			if err = a.messages.Save(ctx, models.NewArchivedMessage(c.ConversationID, m)); err != nil {
				break
			}
		}
	case state.NotificationAdded:
		if c.Notification != nil {
			err = a.notifications.Save(ctx, models.NewArchivedNotification(*c.Notification))
		}
	case state.NotificationRead:
		if c.Notification != nil {
			err = a.notifications.MarkRead(ctx, c.Notification.ID.String())
		}
	case state.NotificationsReplaced:
		for _, n := range a.state.Notifications() {
			if err = a.notifications.Save(ctx, models.NewArchivedNotification(n)); err != nil {
				break
			}
		}
	}
	if err != nil {
		glog.Errorf("storage: archive %s change: %v", c.Kind, err)
	}
}
