package search

import (
	"context"
	"time"

	"github.com/blugelabs/bluge"

	"chat-sync/domain"
)

// MessageIndex maintains a full-text index over confirmed messages.
// It implements contract.MessageSink, so the session can fan inbound
// messages into it alongside the disk cache. The writer is owned by the
// caller and closed with the process.
type MessageIndex struct {
	writer *bluge.Writer
}

func NewMessageIndex(writer *bluge.Writer) *MessageIndex {
	return &MessageIndex{writer: writer}
}

// Hit is one search result, newest ranked by relevance.
type Hit struct {
	MessageID string
	RoomID    string
	SenderID  string
	Text      string
	SentAt    time.Time
}

// Store indexes a confirmed message; updates with the same id replace the
// previous document, so re-delivery is harmless.
func (x *MessageIndex) Store(msg domain.Message) error {
	if msg.Status != domain.StatusConfirmed || msg.ID.IsLocal() {
		return nil
	}
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewTextField("text", msg.Text).StoreValue()).
		AddField(bluge.NewKeywordField("room", msg.RoomID).StoreValue()).
		AddField(bluge.NewKeywordField("sender", msg.SenderID).StoreValue()).
		AddField(bluge.NewDateTimeField("sent_at", msg.SentAt.UTC()).StoreValue())

	return x.writer.Update(doc.ID(), doc)
}

// Delete removes a message from the index after a remote delete event.
func (x *MessageIndex) Delete(id domain.MessageID) error {
	if id.IsLocal() {
		return nil
	}
	doc := bluge.NewDocument(id.String())
	return x.writer.Delete(doc.ID())
}

// Search runs a parsed query against the index and returns matching hits.
func (x *MessageIndex) Search(ctx context.Context, q *Query) ([]Hit, error) {
	reader, err := x.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	boolean := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(q.Terms).SetField("text"))
	if q.RoomID != "" {
		boolean.AddMust(bluge.NewTermQuery(q.RoomID).SetField("room"))
	}
	if q.SenderID != "" {
		boolean.AddMust(bluge.NewTermQuery(q.SenderID).SetField("sender"))
	}

	request := bluge.NewTopNSearch(q.Limit, boolean).
		WithStandardAggregations()

	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}

		var hit Hit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "text":
				hit.Text = string(value)
			case "room":
				hit.RoomID = string(value)
			case "sender":
				hit.SenderID = string(value)
			case "sent_at":
				if ts, err := bluge.DecodeDateTime(value); err == nil {
					hit.SentAt = ts
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
