package chat

import (
	"time"

	"github.com/and161185/social-client/internal/model"
)

// EditWindow is how long after sending a message can be edited or recalled.
const EditWindow = 24 * time.Hour

var rank = map[model.MessageStatus]int{
	model.StatusSending:   0,
	model.StatusSent:      1,
	model.StatusDelivered: 2,
	model.StatusRead:      3,
}

// MergeStatus returns the status a message shows after observing next while
// at cur. Ranked states never regress; failed is only reachable from sending;
// recalled is terminal. A server confirmation supersedes failed.
func MergeStatus(cur, next model.MessageStatus) model.MessageStatus {
	switch {
	case cur == model.StatusRecalled, next == model.StatusRecalled:
		return model.StatusRecalled
	case next == model.StatusFailed:
		if cur == model.StatusSending || cur == model.StatusFailed {
			return model.StatusFailed
		}
		return cur
	}
	nr, ok := rank[next]
	if !ok {
		return cur
	}
	if cur == model.StatusFailed {
		if next == model.StatusSending {
			return cur
		}
		return next
	}
	cr, ok := rank[cur]
	if !ok || nr > cr {
		return next
	}
	return cur
}

// CanEdit reports whether self may edit m at now.
func CanEdit(m model.Message, self string, now time.Time) bool {
	return CanRecall(m, self, now) && m.Type == model.MessageText
}

// CanRecall reports whether self may recall m at now.
func CanRecall(m model.Message, self string, now time.Time) bool {
	return self != "" &&
		m.Sender.ID == self &&
		!m.IsDeleted &&
		m.Status != model.StatusRecalled &&
		now.Sub(m.CreatedAt) < EditWindow
}
