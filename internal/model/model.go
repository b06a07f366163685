// Package model defines domain entities shared by services, the api client and repositories.
package model

import "time"

// Session is the persisted login state. A single instance exists per process.
type Session struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	Profile   Profile   `json:"profile"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return s.Token == "" || !now.Before(s.ExpiresAt)
}

// User is the identity part of an account.
type User struct {
	ID          string `json:"_id"`
	HashID      string `json:"hashId,omitempty"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	IsFollowing bool   `json:"isFollowing,omitempty"`
}

// Profile is the editable public part of an account.
type Profile struct {
	UserID         string `json:"userId,omitempty"`
	HashID         string `json:"hashId,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	Bio            string `json:"bio,omitempty"`
	Avatar         string `json:"avatar,omitempty"`
	Cover          string `json:"coverImage,omitempty"`
	FollowersCount int    `json:"followersCount"`
	FollowingCount int    `json:"followingCount"`
	PostsCount     int    `json:"postsCount"`
}

// MediaType enumerates attachment kinds.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// Media is an attachment reference.
type Media struct {
	URL    string    `json:"url"`
	Type   MediaType `json:"type"`
	Width  int       `json:"width,omitempty"`
	Height int       `json:"height,omitempty"`
}

// Post is a feed entry.
type Post struct {
	ID            string    `json:"_id"`
	Author        User      `json:"author"`
	Content       string    `json:"content"`
	Media         []Media   `json:"media,omitempty"`
	LikesCount    int       `json:"likesCount"`
	CommentsCount int       `json:"commentsCount"`
	Liked         bool      `json:"isLiked"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Conversation is a chat thread between two or more participants.
type Conversation struct {
	ID           string    `json:"_id"`
	Participants []User    `json:"participants"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
	UnreadCount  int       `json:"unreadCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// MessageType is the content kind of a chat message.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
	MessageAudio MessageType = "audio"
)

// MessageStatus is the client-observed delivery state of a message.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
	StatusRecalled  MessageStatus = "recalled"
)

// Edit is one prior version of an edited message.
type Edit struct {
	Content  string    `json:"content"`
	EditedAt time.Time `json:"editedAt"`
}

// Reaction is an emoji attached to a message by a user.
type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Message is a chat message. TempID is set on optimistic entries until the
// server answers; Slow is a local hint that the send is taking long.
type Message struct {
	ID             string        `json:"_id"`
	TempID         string        `json:"tempId,omitempty"`
	ConversationID string        `json:"conversationId"`
	Sender         User          `json:"sender"`
	Type           MessageType   `json:"type"`
	Content        string        `json:"content"`
	MediaURL       string        `json:"mediaUrl,omitempty"`
	Status         MessageStatus `json:"status"`
	Edited         bool          `json:"isEdited,omitempty"`
	EditHistory    []Edit        `json:"editHistory,omitempty"`
	IsDeleted      bool          `json:"isDeleted,omitempty"`
	Reactions      []Reaction    `json:"reactions,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	Slow           bool          `json:"-"`
}

// ArchiveType tells how a story reached the archive.
type ArchiveType string

const (
	ArchiveNone    ArchiveType = ""
	ArchiveManual  ArchiveType = "manual"
	ArchiveExpired ArchiveType = "expired"
)

// Position is a point on the story canvas in relative units (0..1).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StoryView records one viewer.
type StoryView struct {
	UserID     string    `json:"userId"`
	DurationMS int64     `json:"duration"`
	ViewedAt   time.Time `json:"viewedAt"`
}

// StoryReaction is a reaction placed on the story canvas.
type StoryReaction struct {
	ID       string   `json:"_id"`
	UserID   string   `json:"userId"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
}

// StoryReply is a direct reply to a story.
type StoryReply struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Story is an ephemeral (about 24h) post.
type Story struct {
	ID          string          `json:"_id"`
	Author      User            `json:"author"`
	Media       Media           `json:"media"`
	Effects     map[string]any  `json:"effects,omitempty"`
	Visibility  string          `json:"visibility"`
	Views       []StoryView     `json:"views,omitempty"`
	Reactions   []StoryReaction `json:"reactions,omitempty"`
	Replies     []StoryReply    `json:"replies,omitempty"`
	Archived    bool            `json:"isArchived"`
	ArchiveType ArchiveType     `json:"archiveType,omitempty"`
	ArchivedAt  *time.Time      `json:"archivedAt,omitempty"`
	Highlight   string          `json:"highlight,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	ExpiresAt   time.Time       `json:"expiresAt"`
}

// Notification is server owned; the client only toggles IsRead or deletes.
type Notification struct {
	ID        string    `json:"_id"`
	Type      string    `json:"type"`
	Sender    User      `json:"sender"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// SearchResults is the combined users+posts answer.
type SearchResults struct {
	Users []User `json:"users"`
	Posts []Post `json:"posts"`
}

// SearchHistoryEntry is one persisted query.
type SearchHistoryEntry struct {
	ID        string    `json:"_id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"createdAt"`
}

// TrendingTag is a hashtag with its usage count.
type TrendingTag struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}
