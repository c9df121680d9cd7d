// Package queue moves downloads into named queues and keeps the queue registry.
package queue

import (
	"github.com/JaymoCodes/xdm/internal/models"

	log "github.com/sirupsen/logrus"
)

// ConfirmMoveMessage is shown when moving to a queue needs confirmation.
const ConfirmMoveMessage = "Add to queue?"

// Peer is the part of the UI adapter the move-to-queue flow needs.
type Peer interface {
	Confirm(message string) bool
	// ShowQueueSelection presents queues and the pending ids. The adapter calls
	// onSelected with the chosen queue, or onManage when the user asks to manage
	// queues instead. Either callback must run on the owning loop.
	ShowQueueSelection(queues []models.Queue, ids []string, onSelected func(queueID string), onManage func())
	// ShowQueueManager opens queue management and calls onClosed when it closes.
	ShowQueueManager(onClosed func())
}

// Registry is the queue store the coordinator assigns membership in.
type Registry interface {
	Queues() []models.Queue
	AssignDownloads(queueID string, ids []string) error
}

// Coordinator runs the move-to-queue flow.
type Coordinator struct {
	peer     Peer
	registry Registry
	// assigned is called after a successful assignment.
	assigned func(queueID string, ids []string)
}

// NewCoordinator wires the flow. assigned may be nil.
func NewCoordinator(peer Peer, registry Registry, assigned func(queueID string, ids []string)) *Coordinator {
	return &Coordinator{peer: peer, registry: registry, assigned: assigned}
}

// MoveToQueue asks the user for a queue and assigns ids to it. A declined
// confirmation ends the flow without changes.
func (c *Coordinator) MoveToQueue(ids []string, requireConfirmation bool) {
	if len(ids) == 0 {
		return
	}
	if requireConfirmation && !c.peer.Confirm(ConfirmMoveMessage) {
		log.Debug("Move to queue declined")
		return
	}
	c.present(append([]string(nil), ids...))
}

// present shows the selection dialog; managing queues comes back here with
// the same pending ids.
func (c *Coordinator) present(ids []string) {
	c.peer.ShowQueueSelection(c.registry.Queues(), ids,
		func(queueID string) {
			if err := c.registry.AssignDownloads(queueID, ids); err != nil {
				log.WithError(err).WithField("queue", queueID).Warn("Could not move downloads to queue")
				return
			}
			log.WithField("queue", queueID).Infof("Moved %d download(s) to queue", len(ids))
			if c.assigned != nil {
				c.assigned(queueID, ids)
			}
		},
		func() {
			c.peer.ShowQueueManager(func() { c.present(ids) })
		},
	)
}
