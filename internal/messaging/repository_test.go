package messaging

import (
	"context"
	"testing"
	"time"

	"Fly8Backend/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

const messagesNS = "fly8.messages"

// newMockRepository builds a MessageRepository on the mock deployment and discards the index build.
func newMockRepository(mt *mtest.T) *MessageRepository {
	mt.AddMockResponses(mtest.CreateSuccessResponse())
	repo, err := NewMessageRepository(mt.DB)
	require.NoError(mt, err)
	mt.ClearEvents()
	return repo
}

func stages(mt *mtest.T, cmd bson.Raw) []bson.Raw {
	values, err := cmd.Lookup("pipeline").Array().Values()
	require.NoError(mt, err)
	out := make([]bson.Raw, len(values))
	for i, v := range values {
		out[i] = v.Document()
	}
	return out
}

func stringValues(mt *mtest.T, arr bson.Raw) []string {
	values, err := arr.Values()
	require.NoError(mt, err)
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.StringValue()
	}
	return out
}

func TestMessageRepositoryConversations(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("groups by conversation newest first", func(mt *mtest.T) {
		repo := newMockRepository(mt)
		created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, messagesNS, mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: "a1-s1"},
				{Key: "lastMessage", Value: bson.D{
					{Key: "_id", Value: primitive.NewObjectID()},
					{Key: "conversation_id", Value: "a1-s1"},
					{Key: "sender", Value: bson.D{{Key: "id", Value: "s1"}, {Key: "role", Value: "student"}}},
					{Key: "recipient", Value: bson.D{{Key: "id", Value: "a1"}, {Key: "role", Value: "admin"}}},
					{Key: "content", Value: "Hello"},
					{Key: "status", Value: "sent"},
					{Key: "is_deleted", Value: false},
					{Key: "created_at", Value: created},
				}},
				{Key: "unreadCount", Value: int64(2)},
			},
		))

		conversations, err := repo.Conversations(context.Background(), "a1")
		require.NoError(mt, err)
		require.Len(mt, conversations, 1)
		assert.Equal(mt, "a1-s1", conversations[0].ConversationID)
		assert.Equal(mt, auth.Principal{ID: "s1", Role: auth.RoleStudent}, conversations[0].Counterparty)
		assert.Equal(mt, "Hello", conversations[0].LastMessage.Content)
		assert.EqualValues(mt, 2, conversations[0].UnreadCount)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "aggregate", started.CommandName)
		pipeline := stages(mt, started.Command)
		require.Len(mt, pipeline, 4)

		match := pipeline[0].Lookup("$match")
		assert.False(mt, match.Document().Lookup("is_deleted").Boolean())
		participants, err := match.Document().Lookup("$or").Array().Values()
		require.NoError(mt, err)
		assert.Len(mt, participants, 2)

		sortKeys, err := pipeline[1].Lookup("$sort").Document().Elements()
		require.NoError(mt, err)
		assert.Equal(mt, "created_at", sortKeys[0].Key())
		assert.EqualValues(mt, -1, sortKeys[0].Value().AsInt64())

		group := pipeline[2].Lookup("$group").Document()
		assert.Equal(mt, "$conversation_id", group.Lookup("_id").StringValue())
		assert.Equal(mt, "$$ROOT", group.Lookup("lastMessage", "$first").StringValue())

		final, err := pipeline[3].Lookup("$sort").Document().Elements()
		require.NoError(mt, err)
		assert.Equal(mt, "lastMessage.created_at", final[0].Key())
	})

	mt.Run("driver failures are wrapped", func(mt *mtest.T) {
		repo := newMockRepository(mt)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 11600, Message: "interrupted"}))

		_, err := repo.Conversations(context.Background(), "a1")
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "aggregate conversations")
	})
}

func TestMessageRepositoryAdvanceStatus(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		status   Status
		modified int32
		guard    []string
		readAt   bool
	}{
		{"read from sent or delivered", StatusRead, 1, []string{"sent", "delivered"}, true},
		{"delivered only from sent", StatusDelivered, 1, []string{"sent"}, false},
		{"lost race reports unchanged", StatusRead, 0, []string{"sent", "delivered"}, true},
	}
	for _, tt := range tests {
		mt.Run(tt.name, func(mt *mtest.T) {
			repo := newMockRepository(mt)
			mt.AddMockResponses(mtest.CreateSuccessResponse(
				bson.E{Key: "n", Value: tt.modified},
				bson.E{Key: "nModified", Value: tt.modified},
			))

			changed, err := repo.AdvanceStatus(context.Background(), primitive.NewObjectID(), "a1", tt.status, at)
			require.NoError(mt, err)
			assert.Equal(mt, tt.modified == 1, changed)

			started := mt.GetStartedEvent()
			require.NotNil(mt, started)
			assert.Equal(mt, "update", started.CommandName)
			updates, err := started.Command.Lookup("updates").Array().Values()
			require.NoError(mt, err)
			require.Len(mt, updates, 1)
			update := updates[0].Document()

			assert.Equal(mt, "a1", update.Lookup("q", "recipient.id").StringValue())
			assert.Equal(mt, tt.guard, stringValues(mt, update.Lookup("q", "status", "$in").Array()))
			assert.Equal(mt, string(tt.status), update.Lookup("u", "$set", "status").StringValue())
			_, err = update.LookupErr("u", "$set", "read_at")
			assert.Equal(mt, tt.readAt, err == nil)
		})
	}
}

func TestMessageRepositoryListConversation(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("skips deleted and pages newest first", func(mt *mtest.T) {
		repo := newMockRepository(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, messagesNS, mtest.FirstBatch))

		messages, err := repo.ListConversation(context.Background(), "a1-s1", 20, 10)
		require.NoError(mt, err)
		assert.Empty(mt, messages)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "find", started.CommandName)
		cmd := started.Command
		assert.Equal(mt, "a1-s1", cmd.Lookup("filter", "conversation_id").StringValue())
		assert.False(mt, cmd.Lookup("filter", "is_deleted").Boolean())
		assert.EqualValues(mt, 20, cmd.Lookup("skip").AsInt64())
		assert.EqualValues(mt, 10, cmd.Lookup("limit").AsInt64())
		assert.EqualValues(mt, -1, cmd.Lookup("sort", "created_at").AsInt64())
	})

	mt.Run("missing message is nil", func(mt *mtest.T) {
		repo := newMockRepository(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, messagesNS, mtest.FirstBatch))

		msg, err := repo.FindByID(context.Background(), primitive.NewObjectID())
		require.NoError(mt, err)
		assert.Nil(mt, msg)
	})

	mt.Run("search escapes the query", func(mt *mtest.T) {
		repo := newMockRepository(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, messagesNS, mtest.FirstBatch))

		_, err := repo.Search(context.Background(), "s1", "a+b", "", 50)
		require.NoError(mt, err)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		pattern, options := started.Command.Lookup("filter", "content").Regex()
		assert.Equal(mt, `a\+b`, pattern)
		assert.Equal(mt, "i", options)
	})
}
