package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/and161185/social-client/internal/model"
)

func TestMergeStatus(t *testing.T) {
	cases := []struct {
		cur, next, want model.MessageStatus
	}{
		{model.StatusSending, model.StatusDelivered, model.StatusDelivered},
		{model.StatusDelivered, model.StatusSending, model.StatusDelivered},
		{model.StatusDelivered, model.StatusSent, model.StatusDelivered},
		{model.StatusSent, model.StatusRead, model.StatusRead},
		{model.StatusSending, model.StatusFailed, model.StatusFailed},
		{model.StatusDelivered, model.StatusFailed, model.StatusDelivered},
		{model.StatusFailed, model.StatusSending, model.StatusFailed},
		{model.StatusFailed, model.StatusSent, model.StatusSent},
		{model.StatusRead, model.StatusRecalled, model.StatusRecalled},
		{model.StatusRecalled, model.StatusRead, model.StatusRecalled},
		{model.StatusSent, "bogus", model.StatusSent},
		{"", model.StatusSent, model.StatusSent},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MergeStatus(c.cur, c.next), "%s + %s", c.cur, c.next)
	}
}

func TestMergeStatus_ReadIsMonotonic(t *testing.T) {
	all := []model.MessageStatus{
		model.StatusSending, model.StatusSent, model.StatusDelivered,
		model.StatusRead, model.StatusFailed,
	}
	for _, next := range all {
		assert.Equal(t, model.StatusRead, MergeStatus(model.StatusRead, next), "read + %s", next)
	}
}

func TestEligibility(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	base := model.Message{
		Sender:    model.User{ID: "me"},
		Type:      model.MessageText,
		Status:    model.StatusDelivered,
		CreatedAt: now.Add(-time.Hour),
	}
	with := func(fn func(*model.Message)) model.Message {
		m := base
		fn(&m)
		return m
	}

	cases := []struct {
		name         string
		m            model.Message
		edit, recall bool
	}{
		{"own recent text", base, true, true},
		{"other's message", with(func(m *model.Message) { m.Sender.ID = "you" }), false, false},
		{"image", with(func(m *model.Message) { m.Type = model.MessageImage }), false, true},
		{"deleted", with(func(m *model.Message) { m.IsDeleted = true }), false, false},
		{"recalled", with(func(m *model.Message) { m.Status = model.StatusRecalled }), false, false},
		{"just under 24h", with(func(m *model.Message) { m.CreatedAt = now.Add(-EditWindow + time.Second) }), true, true},
		{"exactly 24h", with(func(m *model.Message) { m.CreatedAt = now.Add(-EditWindow) }), false, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.edit, CanEdit(c.m, "me", now))
			assert.Equal(t, c.recall, CanRecall(c.m, "me", now))
		})
	}
	assert.False(t, CanEdit(base, "", now))
}
