package server

import (
	"sync"

	"github.com/dothash/huddle/internal/protocol"
)

// DeliveryTracker records routed private messages and their delivery
// status. Ids are 1-based, monotonically increasing, and never reused.
type DeliveryTracker struct {
	mu sync.Mutex

	nextID  int64
	records map[int64]*deliveryRecord
}

type deliveryRecord struct {
	senderHandle    string
	recipientHandle string
	status          string
}

// Receipt pairs a seen message with the sender to notify.
type Receipt struct {
	SenderHandle string
	MessageID    int64
}

// NewDeliveryTracker creates an empty tracker.
func NewDeliveryTracker() *DeliveryTracker {
	return &DeliveryTracker{records: make(map[int64]*deliveryRecord)}
}

// Track allocates the next message id for a successfully routed private
// message.
func (t *DeliveryTracker) Track(senderHandle, recipientHandle string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	t.records[t.nextID] = &deliveryRecord{
		senderHandle:    senderHandle,
		recipientHandle: recipientHandle,
		status:          protocol.StatusSent,
	}
	return t.nextID
}

// AcknowledgeRead marks the given messages seen, provided the caller is
// their recipient and they are not seen already, and returns one receipt
// per state change. Re-acknowledging a seen message yields nothing: seen
// is terminal.
func (t *DeliveryTracker) AcknowledgeRead(recipientHandle string, ids []int64) []Receipt {
	t.mu.Lock()
	defer t.mu.Unlock()

	var receipts []Receipt
	for _, id := range ids {
		rec, ok := t.records[id]
		if !ok {
			continue
		}
		if rec.recipientHandle != recipientHandle {
			continue
		}
		if rec.status == protocol.StatusSeen {
			continue
		}
		rec.status = protocol.StatusSeen
		receipts = append(receipts, Receipt{SenderHandle: rec.senderHandle, MessageID: id})
	}
	return receipts
}

// Status reports the stored status of a message id.
func (t *DeliveryTracker) Status(id int64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		return "", false
	}
	return rec.status, true
}
