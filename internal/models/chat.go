package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"fixitnow/chatdesk/internal/utils"
)

const MaxMessageLength = 1000

type ParticipantRole string

const (
	RoleCustomer   ParticipantRole = "customer"
	RoleTechnician ParticipantRole = "technician"
	RoleAdmin      ParticipantRole = "admin"
)

func (r ParticipantRole) Valid() bool {
	switch r {
	case RoleCustomer, RoleTechnician, RoleAdmin:
		return true
	}
	return false
}

type ChatKind string

const (
	ChatKindBooking ChatKind = "booking"
	ChatKindGeneral ChatKind = "general"
	ChatKindSupport ChatKind = "support"
	ChatKindDispute ChatKind = "dispute"
)

func (k ChatKind) Valid() bool {
	switch k {
	case ChatKindBooking, ChatKindGeneral, ChatKindSupport, ChatKindDispute:
		return true
	}
	return false
}

// DefaultSubject is the subject given to a new conversation of this kind.
func (k ChatKind) DefaultSubject() string {
	switch k {
	case ChatKindBooking:
		return "Booking Discussion"
	case ChatKindSupport:
		return "Support Request"
	case ChatKindDispute:
		return "Dispute Discussion"
	default:
		return "General Chat"
	}
}

type ChatStatus string

const (
	ChatActive   ChatStatus = "active"
	ChatClosed   ChatStatus = "closed"
	ChatArchived ChatStatus = "archived"
)

func (s ChatStatus) Valid() bool {
	switch s {
	case ChatActive, ChatClosed, ChatArchived:
		return true
	}
	return false
}

type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageImage    MessageKind = "image"
	MessageFile     MessageKind = "file"
	MessageLocation MessageKind = "location"
	MessageSystem   MessageKind = "system"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageText, MessageImage, MessageFile, MessageLocation, MessageSystem:
		return true
	}
	return false
}

type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentDocument AttachmentKind = "document"
	AttachmentOther    AttachmentKind = "other"
)

func (k AttachmentKind) Valid() bool {
	switch k {
	case AttachmentImage, AttachmentDocument, AttachmentOther:
		return true
	}
	return false
}

type Participant struct {
	UserID   utils.SixID     `bson:"user_id" json:"userId"`
	Role     ParticipantRole `bson:"role" json:"role"`
	JoinedAt time.Time       `bson:"joined_at" json:"joinedAt"`
}

type Attachment struct {
	Kind         AttachmentKind `bson:"kind" json:"kind"`
	URL          string         `bson:"url" json:"url"`
	Key          string         `bson:"key,omitempty" json:"key,omitempty"` // S3 key
	Name         string         `bson:"name" json:"name"`
	Size         int64          `bson:"size" json:"size"`
	ThumbnailURL string         `bson:"thumbnail_url,omitempty" json:"thumbnailUrl,omitempty"`
}

type Location struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
	Address   string  `bson:"address,omitempty" json:"address,omitempty"`
}

type ReadReceipt struct {
	UserID utils.SixID `bson:"user_id" json:"userId"`
	ReadAt time.Time   `bson:"read_at" json:"readAt"`
}

type Message struct {
	ID              utils.SixID     `bson:"id" json:"id"`
	SenderID        utils.SixID     `bson:"sender_id" json:"senderId"`
	SenderRole      ParticipantRole `bson:"sender_role" json:"senderRole"`
	Content         string          `bson:"content" json:"content"`
	Kind            MessageKind     `bson:"kind" json:"kind"`
	Attachments     []Attachment    `bson:"attachments" json:"attachments"`
	Location        *Location       `bson:"location,omitempty" json:"location,omitempty"`
	IsRead          bool            `bson:"is_read" json:"isRead"`
	ReadBy          []ReadReceipt   `bson:"read_by" json:"readBy"`
	IsEdited        bool            `bson:"is_edited" json:"isEdited"`
	EditedAt        *time.Time      `bson:"edited_at,omitempty" json:"editedAt,omitempty"`
	OriginalContent string          `bson:"original_content,omitempty" json:"originalContent,omitempty"`
	IsDeleted       bool            `bson:"is_deleted" json:"isDeleted"`
	DeletedAt       *time.Time      `bson:"deleted_at,omitempty" json:"deletedAt,omitempty"`
	DeletedBy       *utils.SixID    `bson:"deleted_by,omitempty" json:"deletedBy,omitempty"`
	Timestamp       time.Time       `bson:"timestamp" json:"timestamp"`
}

// ReadByUser reports whether userID has a read receipt on the message.
func (m *Message) ReadByUser(userID utils.SixID) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

type UnreadCount struct {
	UserID utils.SixID `bson:"user_id" json:"userId"`
	Count  int         `bson:"count" json:"count"`
}

type LastMessage struct {
	SenderID  utils.SixID `bson:"sender_id" json:"senderId"`
	Content   string      `bson:"content" json:"content"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
}

type ChatSettings struct {
	IsMuted          bool  `bson:"is_muted" json:"isMuted"`
	AllowFileUploads bool  `bson:"allow_file_uploads" json:"allowFileUploads"`
	MaxFileSize      int64 `bson:"max_file_size" json:"maxFileSize"`
}

// ChatSettingsPatch holds the optional fields of a settings update.
type ChatSettingsPatch struct {
	IsMuted          *bool  `json:"isMuted"`
	AllowFileUploads *bool  `json:"allowFileUploads"`
	MaxFileSize      *int64 `json:"maxFileSize" binding:"omitempty,gt=0"`
}

type Moderation struct {
	IsModerated bool         `bson:"is_moderated" json:"isModerated"`
	ModeratedBy *utils.SixID `bson:"moderated_by,omitempty" json:"moderatedBy,omitempty"`
	ModeratedAt *time.Time   `bson:"moderated_at,omitempty" json:"moderatedAt,omitempty"`
	Reason      string       `bson:"reason,omitempty" json:"reason,omitempty"`
}

type ChatStats struct {
	TotalMessages     int       `bson:"total_messages" json:"totalMessages"`
	TotalParticipants int       `bson:"total_participants" json:"totalParticipants"`
	LastActivity      time.Time `bson:"last_activity" json:"lastActivity"`
}

// ChatDefaults are the settings a new conversation starts with.
type ChatDefaults struct {
	AllowFileUploads   bool
	MaxFileSize        int64
	AutoCloseAfterDays int
}

func DefaultChatDefaults() ChatDefaults {
	return ChatDefaults{AllowFileUploads: true, MaxFileSize: 5242880, AutoCloseAfterDays: 30}
}

// Conversation is the chat aggregate: an ordered message log between two or more participants.
type Conversation struct {
	Base               `bson:",inline"`
	Participants       []Participant `bson:"participants" json:"participants"`
	BookingID          *utils.SixID  `bson:"booking_id,omitempty" json:"bookingId,omitempty"`
	Kind               ChatKind      `bson:"kind" json:"kind"`
	Subject            string        `bson:"subject" json:"subject"`
	Status             ChatStatus    `bson:"status" json:"status"`
	Messages           []Message     `bson:"messages" json:"messages"`
	LastMessage        *LastMessage  `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	UnreadCounts       []UnreadCount `bson:"unread_counts" json:"unreadCounts"`
	Settings           ChatSettings  `bson:"settings" json:"settings"`
	Moderation         Moderation    `bson:"moderation" json:"moderation"`
	PinnedMessages     []utils.SixID `bson:"pinned_messages" json:"pinnedMessages"`
	Stats              ChatStats     `bson:"stats" json:"stats"`
	AutoCloseAfterDays int           `bson:"auto_close_after_days" json:"autoCloseAfterDays"`
	ScheduledCloseDate *time.Time    `bson:"scheduled_close_date,omitempty" json:"scheduledCloseDate,omitempty"`
	// ThreadKey is unique among active and closed conversations; cleared on archive.
	ThreadKey *string `bson:"thread_key,omitempty" json:"-"`
}

// ThreadKey identifies a logical thread by its participant set and booking.
func ThreadKey(userIDs []utils.SixID, bookingID *utils.SixID) string {
	sorted := utils.SortSixIDs(userIDs)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = id.String()
	}
	key := strings.Join(parts, ",") + "|"
	if bookingID != nil {
		key += bookingID.String()
	}
	return key
}

// NewConversation builds an active conversation. Participant ids must be distinct and at least two.
func NewConversation(participants []Participant, bookingID *utils.SixID, kind ChatKind, defaults ChatDefaults, now time.Time) (*Conversation, error) {
	if kind == "" {
		kind = ChatKindGeneral
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown chat kind %q", ErrValidation, kind)
	}
	if len(participants) < 2 {
		return nil, fmt.Errorf("%w: a conversation needs at least two participants", ErrValidation)
	}

	seen := make(map[utils.SixID]bool, len(participants))
	ids := make([]utils.SixID, 0, len(participants))
	ps := make([]Participant, 0, len(participants))
	for _, p := range participants {
		if p.UserID.IsZero() {
			return nil, fmt.Errorf("%w: participant id is required", ErrValidation)
		}
		if !p.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown participant role %q", ErrValidation, p.Role)
		}
		if seen[p.UserID] {
			return nil, fmt.Errorf("%w: duplicate participant %s", ErrValidation, p.UserID)
		}
		seen[p.UserID] = true
		ids = append(ids, p.UserID)
		p.JoinedAt = now
		ps = append(ps, p)
	}

	key := ThreadKey(ids, bookingID)
	c := &Conversation{
		Base:         NewBase(now),
		Participants: ps,
		BookingID:    bookingID,
		Kind:         kind,
		Subject:      kind.DefaultSubject(),
		Status:       ChatActive,
		Messages:     []Message{},
		UnreadCounts: []UnreadCount{},
		Settings: ChatSettings{
			AllowFileUploads: defaults.AllowFileUploads,
			MaxFileSize:      defaults.MaxFileSize,
		},
		PinnedMessages:     []utils.SixID{},
		AutoCloseAfterDays: defaults.AutoCloseAfterDays,
		ThreadKey:          &key,
	}
	c.scheduleClose(now)
	c.RefreshDerived(now)
	return c, nil
}

// MessageOptions are the optional parts of a new message.
type MessageOptions struct {
	Role        ParticipantRole
	Kind        MessageKind
	Attachments []Attachment
	Location    *Location

	// SenderIsAdmin comes from the caller's credentials, never from the stored participant role.
	SenderIsAdmin bool
}

func (c *Conversation) participant(userID utils.SixID) (Participant, bool) {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

func (c *Conversation) HasParticipant(userID utils.SixID) bool {
	_, ok := c.participant(userID)
	return ok
}

func (c *Conversation) ParticipantCount() int {
	return len(c.Participants)
}

// ParticipantIDs returns the participant user ids in stored order.
func (c *Conversation) ParticipantIDs() []utils.SixID {
	ids := make([]utils.SixID, len(c.Participants))
	for i, p := range c.Participants {
		ids[i] = p.UserID
	}
	return ids
}

// UnreadCountFor returns userID's unread counter; an absent entry counts as zero.
func (c *Conversation) UnreadCountFor(userID utils.SixID) int {
	for _, u := range c.UnreadCounts {
		if u.UserID == userID {
			return u.Count
		}
	}
	return 0
}

func (c *Conversation) adjustUnread(userID utils.SixID, delta int) {
	for i := range c.UnreadCounts {
		if c.UnreadCounts[i].UserID == userID {
			c.UnreadCounts[i].Count += delta
			if c.UnreadCounts[i].Count < 0 {
				c.UnreadCounts[i].Count = 0
			}
			return
		}
	}
	if delta > 0 {
		c.UnreadCounts = append(c.UnreadCounts, UnreadCount{UserID: userID, Count: delta})
	}
}

func (c *Conversation) findMessage(messageID utils.SixID) (*Message, error) {
	for i := range c.Messages {
		if c.Messages[i].ID == messageID {
			return &c.Messages[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
}

func (c *Conversation) scheduleClose(now time.Time) {
	if c.AutoCloseAfterDays <= 0 {
		c.ScheduledCloseDate = nil
		return
	}
	at := now.AddDate(0, 0, c.AutoCloseAfterDays)
	c.ScheduledCloseDate = &at
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: message content is required", ErrValidation)
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return "", fmt.Errorf("%w: message content exceeds %d characters", ErrValidation, MaxMessageLength)
	}
	return content, nil
}

// AddMessage appends a message and bumps the unread counter of every other participant.
// A closed conversation is reactivated; an archived one rejects the message.
func (c *Conversation) AddMessage(senderID utils.SixID, content string, opts MessageOptions, now time.Time) (*Message, error) {
	sender, ok := c.participant(senderID)
	if !ok {
		return nil, ErrNotParticipant
	}
	if c.Status == ChatArchived {
		return nil, fmt.Errorf("%w: conversation is archived", ErrInvalidTransition)
	}
	if c.Moderation.IsModerated && !opts.SenderIsAdmin {
		return nil, fmt.Errorf("%w: conversation is under moderation", ErrForbidden)
	}
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}

	kind := opts.Kind
	if kind == "" {
		kind = MessageText
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown message kind %q", ErrValidation, kind)
	}
	if kind == MessageLocation && opts.Location == nil {
		return nil, fmt.Errorf("%w: location message requires a location", ErrValidation)
	}
	if len(opts.Attachments) > 0 {
		if !c.Settings.AllowFileUploads {
			return nil, fmt.Errorf("%w: file uploads are disabled for this conversation", ErrValidation)
		}
		for _, a := range opts.Attachments {
			if a.URL == "" {
				return nil, fmt.Errorf("%w: attachment url is required", ErrValidation)
			}
			if !a.Kind.Valid() {
				return nil, fmt.Errorf("%w: invalid attachment kind %q", ErrValidation, a.Kind)
			}
			if c.Settings.MaxFileSize > 0 && a.Size > c.Settings.MaxFileSize {
				return nil, fmt.Errorf("%w: attachment %q exceeds %d bytes", ErrValidation, a.Name, c.Settings.MaxFileSize)
			}
		}
	}

	role := opts.Role
	if role == "" {
		role = sender.Role
	}
	attachments := opts.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}

	c.Messages = append(c.Messages, Message{
		ID:          utils.NewSixID(),
		SenderID:    senderID,
		SenderRole:  role,
		Content:     content,
		Kind:        kind,
		Attachments: attachments,
		Location:    opts.Location,
		ReadBy:      []ReadReceipt{},
		Timestamp:   now,
	})
	for _, p := range c.Participants {
		if p.UserID != senderID {
			c.adjustUnread(p.UserID, 1)
		}
	}
	if c.Status == ChatClosed {
		c.Status = ChatActive
	}
	c.scheduleClose(now)
	return &c.Messages[len(c.Messages)-1], nil
}

// MarkAsRead zeroes userID's counter and adds a read receipt to every message from someone else.
func (c *Conversation) MarkAsRead(userID utils.SixID, now time.Time) error {
	if !c.HasParticipant(userID) {
		return ErrNotParticipant
	}
	for i := range c.UnreadCounts {
		if c.UnreadCounts[i].UserID == userID {
			c.UnreadCounts[i].Count = 0
		}
	}
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.SenderID == userID || m.IsDeleted || m.ReadByUser(userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, ReadReceipt{UserID: userID, ReadAt: now})
		m.IsRead = true
	}
	return nil
}

// RefreshDerived recomputes lastMessage and stats from the message log.
func (c *Conversation) RefreshDerived(now time.Time) {
	c.LastMessage = nil
	total := 0
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.IsDeleted {
			continue
		}
		total++
		c.LastMessage = &LastMessage{SenderID: m.SenderID, Content: m.Content, Timestamp: m.Timestamp}
	}
	c.Stats.TotalMessages = total
	c.Stats.TotalParticipants = len(c.Participants)
	c.Stats.LastActivity = now
}

// EditMessage replaces a message's content. Only the sender may edit; the first
// edit preserves the original content.
func (c *Conversation) EditMessage(messageID, editorID utils.SixID, content string, now time.Time) (*Message, error) {
	if c.Status == ChatArchived {
		return nil, fmt.Errorf("%w: conversation is archived", ErrInvalidTransition)
	}
	m, err := c.findMessage(messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != editorID {
		return nil, fmt.Errorf("%w: only the sender can edit a message", ErrForbidden)
	}
	if m.IsDeleted {
		return nil, fmt.Errorf("%w: message is deleted", ErrInvalidTransition)
	}
	content, err = validateContent(content)
	if err != nil {
		return nil, err
	}
	if !m.IsEdited {
		m.OriginalContent = m.Content
	}
	m.Content = content
	m.IsEdited = true
	m.EditedAt = &now
	return m, nil
}

// DeleteMessage soft-deletes a message on behalf of its sender or an admin. The message
// no longer counts as unread for participants who had not read it. Deleting twice is a no-op.
func (c *Conversation) DeleteMessage(messageID, userID utils.SixID, isAdmin bool, now time.Time) error {
	m, err := c.findMessage(messageID)
	if err != nil {
		return err
	}
	if m.SenderID != userID && !isAdmin {
		return fmt.Errorf("%w: only the sender or an admin can delete a message", ErrForbidden)
	}
	if m.IsDeleted {
		return nil
	}
	m.IsDeleted = true
	m.DeletedAt = &now
	by := userID
	m.DeletedBy = &by
	for _, p := range c.Participants {
		if p.UserID != m.SenderID && !m.ReadByUser(p.UserID) {
			c.adjustUnread(p.UserID, -1)
		}
	}
	c.unpin(messageID)
	return nil
}

// PinMessage pins a live message; pinning twice is a no-op.
func (c *Conversation) PinMessage(messageID utils.SixID) error {
	m, err := c.findMessage(messageID)
	if err != nil {
		return err
	}
	if m.IsDeleted {
		return fmt.Errorf("%w: cannot pin a deleted message", ErrInvalidTransition)
	}
	for _, id := range c.PinnedMessages {
		if id == messageID {
			return nil
		}
	}
	c.PinnedMessages = append(c.PinnedMessages, messageID)
	return nil
}

func (c *Conversation) UnpinMessage(messageID utils.SixID) error {
	if _, err := c.findMessage(messageID); err != nil {
		return err
	}
	c.unpin(messageID)
	return nil
}

func (c *Conversation) unpin(messageID utils.SixID) {
	kept := c.PinnedMessages[:0]
	for _, id := range c.PinnedMessages {
		if id != messageID {
			kept = append(kept, id)
		}
	}
	c.PinnedMessages = kept
}

// ApplySettings merges a settings patch.
func (c *Conversation) ApplySettings(patch ChatSettingsPatch) error {
	if patch.MaxFileSize != nil {
		if *patch.MaxFileSize <= 0 {
			return fmt.Errorf("%w: maxFileSize must be positive", ErrValidation)
		}
		c.Settings.MaxFileSize = *patch.MaxFileSize
	}
	if patch.IsMuted != nil {
		c.Settings.IsMuted = *patch.IsMuted
	}
	if patch.AllowFileUploads != nil {
		c.Settings.AllowFileUploads = *patch.AllowFileUploads
	}
	return nil
}

// Moderate locks or unlocks the conversation for non-admin senders.
func (c *Conversation) Moderate(adminID utils.SixID, moderated bool, reason string, now time.Time) {
	if !moderated {
		c.Moderation = Moderation{}
		return
	}
	by := adminID
	c.Moderation = Moderation{IsModerated: true, ModeratedBy: &by, ModeratedAt: &now, Reason: reason}
}

// Close moves an active conversation to closed. Closing a closed conversation is a no-op.
func (c *Conversation) Close() error {
	switch c.Status {
	case ChatArchived:
		return fmt.Errorf("%w: conversation is archived", ErrInvalidTransition)
	case ChatActive:
		c.Status = ChatClosed
		c.ScheduledCloseDate = nil
	}
	return nil
}

// Reopen moves a closed conversation back to active.
func (c *Conversation) Reopen(now time.Time) error {
	switch c.Status {
	case ChatArchived:
		return fmt.Errorf("%w: conversation is archived", ErrInvalidTransition)
	case ChatClosed:
		c.Status = ChatActive
		c.scheduleClose(now)
	}
	return nil
}

// Archive is final. The thread key is released so a new thread can be started.
func (c *Conversation) Archive() {
	c.Status = ChatArchived
	c.ThreadKey = nil
	c.ScheduledCloseDate = nil
}

// SetAttachmentThumbnail records the thumbnail URL for the attachment stored under key.
func (c *Conversation) SetAttachmentThumbnail(messageID utils.SixID, key, thumbnailURL string) error {
	m, err := c.findMessage(messageID)
	if err != nil {
		return err
	}
	for i := range m.Attachments {
		if m.Attachments[i].Key == key {
			m.Attachments[i].ThumbnailURL = thumbnailURL
			return nil
		}
	}
	return fmt.Errorf("%w: attachment %q", ErrMessageNotFound, key)
}
