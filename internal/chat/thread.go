package chat

import (
	"slices"
	"strings"
	"time"

	"github.com/and161185/social-client/internal/model"
)

// TempPrefix starts every locally generated message id.
const TempPrefix = "temp-"

// Thread is the cached message list of one conversation, oldest first.
type Thread struct {
	Messages []model.Message
	Pages    []int
	HasOlder bool
}

func (t Thread) clone() Thread {
	return Thread{Messages: slices.Clone(t.Messages), Pages: slices.Clone(t.Pages), HasOlder: t.HasOlder}
}

// Index returns the position of the message with id, or -1.
func (t Thread) Index(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(t.Messages, func(m model.Message) bool { return m.ID == id })
}

// Find returns the message with id.
func (t Thread) Find(id string) (model.Message, bool) {
	if i := t.Index(id); i >= 0 {
		return t.Messages[i], true
	}
	return model.Message{}, false
}

// IsPending reports whether m is a local entry the server has not confirmed.
func IsPending(m model.Message) bool {
	return strings.HasPrefix(m.ID, TempPrefix) && m.ID == m.TempID
}

// mergeMessage folds a server copy into the cached one. Content comes from
// the server; status stays monotonic.
func mergeMessage(cur, in model.Message) model.Message {
	out := in
	out.Status = MergeStatus(cur.Status, in.Status)
	out.IsDeleted = cur.IsDeleted || in.IsDeleted
	out.Edited = cur.Edited || in.Edited
	if in.Reactions == nil {
		out.Reactions = cur.Reactions
	}
	if in.EditHistory == nil {
		out.EditHistory = cur.EditHistory
	}
	if out.TempID == "" {
		out.TempID = cur.TempID
	}
	out.Slow = false
	return out
}

// Confirm replaces the pending entry tempID by the server's message in place.
// The status becomes at least delivered. If the server message is already in
// the list (socket echo won the race) the pending entry is dropped instead.
func Confirm(t Thread, tempID string, srv model.Message) Thread {
	next := t.clone()
	srv.Status = MergeStatus(model.StatusDelivered, srv.Status)
	srv.Slow = false
	if srv.TempID == "" {
		srv.TempID = tempID
	}
	ti := next.Index(tempID)
	if ei := next.Index(srv.ID); ei >= 0 && ei != ti {
		next.Messages[ei] = mergeMessage(next.Messages[ei], srv)
		if ti >= 0 {
			next.Messages = slices.Delete(next.Messages, ti, ti+1)
		}
		return next
	}
	if ti >= 0 {
		next.Messages[ti] = srv
		return next
	}
	next.Messages = append(next.Messages, srv)
	return next
}

// Upsert merges a message received from the server into the list.
func Upsert(t Thread, m model.Message) Thread {
	if m.TempID != "" && t.Index(m.TempID) >= 0 {
		return Confirm(t, m.TempID, m)
	}
	next := t.clone()
	if i := next.Index(m.ID); i >= 0 {
		next.Messages[i] = mergeMessage(next.Messages[i], m)
		return next
	}
	next.Messages = append(next.Messages, m)
	return next
}

// Reconcile merges a refetched newest page into the cached list. Statuses
// never regress. A confirmed cached message missing from the page is dropped
// only when it falls inside the page's time span; older ones belong to
// older pages and newer ones arrived after the server answered. With an
// empty page, messages created at or after issued are kept. Unconfirmed
// local entries always survive.
func Reconcile(local Thread, fresh []model.Message, issued time.Time) Thread {
	out := Thread{Pages: slices.Clone(local.Pages), HasOlder: local.HasOlder}
	inFresh := make(map[string]bool, len(fresh))
	confirmed := make(map[string]bool)
	var oldest, newest time.Time
	for i, f := range fresh {
		inFresh[f.ID] = true
		if f.TempID != "" {
			confirmed[f.TempID] = true
		}
		if i == 0 || f.CreatedAt.Before(oldest) {
			oldest = f.CreatedAt
		}
		if i == 0 || f.CreatedAt.After(newest) {
			newest = f.CreatedAt
		}
	}
	var newer []model.Message
	for _, m := range local.Messages {
		if IsPending(m) || inFresh[m.ID] {
			continue
		}
		switch {
		case len(fresh) == 0:
			if !m.CreatedAt.Before(issued) {
				newer = append(newer, m)
			}
		case m.CreatedAt.Before(oldest):
			out.Messages = append(out.Messages, m)
		case m.CreatedAt.After(newest):
			newer = append(newer, m)
		}
	}
	for _, f := range fresh {
		if i := local.Index(f.ID); i >= 0 {
			f = mergeMessage(local.Messages[i], f)
		}
		out.Messages = append(out.Messages, f)
	}
	out.Messages = append(out.Messages, newer...)
	for _, m := range local.Messages {
		if IsPending(m) && !confirmed[m.TempID] {
			out.Messages = append(out.Messages, m)
		}
	}
	return out
}

// PrependOlder adds an older page in front of the list.
func PrependOlder(t Thread, older []model.Message, page, limit int) Thread {
	next := t.clone()
	var add []model.Message
	for _, m := range older {
		if next.Index(m.ID) < 0 {
			add = append(add, m)
		}
	}
	next.Messages = append(add, next.Messages...)
	if !slices.Contains(next.Pages, page) {
		next.Pages = append(next.Pages, page)
	}
	next.HasOlder = len(older) >= limit
	return next
}

// mapMessage applies fn to a copy of the message with id.
func mapMessage(t Thread, id string, fn func(*model.Message)) (Thread, bool) {
	i := t.Index(id)
	if i < 0 {
		return t, false
	}
	next := t.clone()
	fn(&next.Messages[i])
	return next, true
}
