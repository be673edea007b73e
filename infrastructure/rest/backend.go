// Package rest implements the request/response half of the backend contract
// over JSON HTTP. The event half lives in ws; the two share nothing but the
// base URL and the bearer token.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chat-sync/domain"
	"chat-sync/errors"
)

const defaultTimeout = 10 * time.Second

type Backend struct {
	log     *slog.Logger
	client  *http.Client
	baseURL string
	token   string
}

func NewBackend(log *slog.Logger, baseURL, token string) *Backend {
	return &Backend{
		log:     log,
		client:  &http.Client{Timeout: defaultTimeout},
		baseURL: baseURL,
		token:   token,
	}
}

type roomDTO struct {
	ID           string      `json:"id"`
	Kind         string      `json:"kind"`
	DisplayName  string      `json:"display_name"`
	DisplayPhoto string      `json:"display_photo,omitempty"`
	MemberCount  int         `json:"member_count"`
	LastMessage  *previewDTO `json:"last_message,omitempty"`
	UnreadCount  int         `json:"unread_count"`
}

type previewDTO struct {
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

type messageDTO struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name,omitempty"`
	SenderPhoto string    `json:"sender_photo,omitempty"`
	Kind        string    `json:"kind"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sent_at"`
}

type memberDTO struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Photo  string `json:"photo,omitempty"`
}

type friendRequestDTO struct {
	ID         string    `json:"id"`
	FromUserID string    `json:"from_user_id"`
	FromName   string    `json:"from_name,omitempty"`
	FromPhoto  string    `json:"from_photo,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (b *Backend) ListRooms(ctx context.Context, userID string) ([]domain.Room, error) {
	var rooms []roomDTO
	path := fmt.Sprintf("/users/%s/rooms", url.PathEscape(userID))
	if err := b.doJSON(ctx, http.MethodGet, path, nil, &rooms); err != nil {
		return nil, err
	}

	out := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		room := domain.Room{
			ID:           r.ID,
			Kind:         domain.RoomKind(r.Kind),
			DisplayName:  r.DisplayName,
			DisplayPhoto: r.DisplayPhoto,
			MemberCount:  r.MemberCount,
			UnreadCount:  r.UnreadCount,
		}
		if r.LastMessage != nil {
			room.LastMessage = &domain.Preview{Text: r.LastMessage.Text, SentAt: r.LastMessage.SentAt}
		}
		out = append(out, room)
	}
	return out, nil
}

func (b *Backend) ListRoomMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	var messages []messageDTO
	path := fmt.Sprintf("/rooms/%s/messages?limit=%s", url.PathEscape(roomID), strconv.Itoa(limit))
	if err := b.doJSON(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (b *Backend) SendMessage(ctx context.Context, roomID, senderID, text string) (domain.Message, error) {
	body := map[string]string{"sender_id": senderID, "text": text}
	var created messageDTO
	path := fmt.Sprintf("/rooms/%s/messages", url.PathEscape(roomID))
	if err := b.doJSON(ctx, http.MethodPost, path, body, &created); err != nil {
		return domain.Message{}, err
	}
	return created.toDomain(), nil
}

func (b *Backend) EditMessage(ctx context.Context, messageID, senderID, text string) (domain.Message, error) {
	body := map[string]string{"sender_id": senderID, "text": text}
	var updated messageDTO
	path := fmt.Sprintf("/messages/%s", url.PathEscape(messageID))
	if err := b.doJSON(ctx, http.MethodPatch, path, body, &updated); err != nil {
		return domain.Message{}, err
	}
	return updated.toDomain(), nil
}

func (b *Backend) DeleteMessage(ctx context.Context, messageID, senderID string) error {
	path := fmt.Sprintf("/messages/%s?sender_id=%s", url.PathEscape(messageID), url.QueryEscape(senderID))
	return b.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (b *Backend) MarkRead(ctx context.Context, roomID, userID string) error {
	body := map[string]string{"user_id": userID}
	path := fmt.Sprintf("/rooms/%s/read", url.PathEscape(roomID))
	return b.doJSON(ctx, http.MethodPost, path, body, nil)
}

func (b *Backend) CreateOrFindDirectRoom(ctx context.Context, userID, partnerID string) (string, bool, error) {
	body := map[string]string{"user_id": userID, "partner_id": partnerID}
	var result struct {
		RoomID  string `json:"room_id"`
		Created bool   `json:"created"`
	}
	if err := b.doJSON(ctx, http.MethodPost, "/rooms/direct", body, &result); err != nil {
		return "", false, err
	}
	return result.RoomID, result.Created, nil
}

func (b *Backend) LeaveRoom(ctx context.Context, roomID, userID string) error {
	path := fmt.Sprintf("/rooms/%s/members/%s", url.PathEscape(roomID), url.PathEscape(userID))
	return b.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (b *Backend) ListMembers(ctx context.Context, roomID string) ([]domain.Member, error) {
	var members []memberDTO
	path := fmt.Sprintf("/rooms/%s/members", url.PathEscape(roomID))
	if err := b.doJSON(ctx, http.MethodGet, path, nil, &members); err != nil {
		return nil, err
	}

	out := make([]domain.Member, 0, len(members))
	for _, m := range members {
		out = append(out, domain.Member{ID: m.UserID, Name: m.Name, Photo: m.Photo})
	}
	return out, nil
}

func (b *Backend) ListFriendRequests(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	var requests []friendRequestDTO
	path := fmt.Sprintf("/users/%s/friend-requests", url.PathEscape(userID))
	if err := b.doJSON(ctx, http.MethodGet, path, nil, &requests); err != nil {
		return nil, err
	}

	out := make([]domain.FriendRequest, 0, len(requests))
	for _, r := range requests {
		out = append(out, domain.FriendRequest{
			ID:         r.ID,
			FromUserID: r.FromUserID,
			FromName:   r.FromName,
			FromPhoto:  r.FromPhoto,
			CreatedAt:  r.CreatedAt,
		})
	}
	return out, nil
}

// doJSON performs one request with the bearer token, decoding the response
// into out when out is non-nil. 404 maps to ErrRoomNotFound; every other
// non-2xx status becomes an error carrying the status code.
func (b *Backend) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.ErrRoomNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m messageDTO) toDomain() domain.Message {
	return domain.Message{
		ID:          domain.ServerID(m.ID),
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		SenderPhoto: m.SenderPhoto,
		Kind:        domain.MessageKind(m.Kind),
		Text:        m.Text,
		SentAt:      m.SentAt,
		Status:      domain.StatusConfirmed,
	}
}
