package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/dealcoach/dealcoach/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func int32Ptr(v int32) *int32 { return &v }
func strPtr(v string) *string { return &v }

func TestConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	created, err := db.CreateConversation(ctx, &store.Conversation{
		UID:            "aaaa1111",
		CreatorID:      7,
		OrganizationID: "acme",
	})
	require.NoError(t, err)
	require.Positive(t, created.ID)
	require.Positive(t, created.CreatedTs)
	require.Nil(t, created.Score)

	uid := "aaaa1111"
	list, err := db.ListConversations(ctx, &store.FindConversation{UID: &uid})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "acme", list[0].OrganizationID)
}

func TestUpdateConversationUnknownUID(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.UpdateConversation(ctx, &store.UpdateConversation{
		UID:        "missing",
		Transcript: strPtr("hello"),
	})
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestDeleteConversationCascadesLogs(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	created, err := db.CreateConversation(ctx, &store.Conversation{UID: "bbbb2222", CreatorID: 1})
	require.NoError(t, err)
	_, err = db.CreateConversationLog(ctx, &store.ConversationLog{
		ConversationID: created.ID,
		Role:           "system",
		Type:           store.LogTypeError,
		Content:        "negotiation failed",
	})
	require.NoError(t, err)

	require.NoError(t, db.DeleteConversation(ctx, "bbbb2222"))

	logs, err := db.ListConversationLogs(ctx, &store.FindConversationLog{ConversationID: created.ID})
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestSummarizeConversations(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	for i, uid := range []string{"cccc0001", "cccc0002", "cccc0003"} {
		created, err := db.CreateConversation(ctx, &store.Conversation{
			UID:            uid,
			CreatorID:      1,
			OrganizationID: "acme",
		})
		require.NoError(t, err)
		if i < 2 {
			_, err = db.UpdateConversation(ctx, &store.UpdateConversation{
				UID:              created.UID,
				Score:            int32Ptr(int32(60 + 20*i)),
				Feedback:         strPtr("feedback"),
				PromptTokens:     int32Ptr(100),
				CompletionTokens: int32Ptr(25),
			})
			require.NoError(t, err)
		}
	}

	creatorID := int32(1)
	summary, err := db.SummarizeConversations(ctx, &store.FindConversation{CreatorID: &creatorID})
	require.NoError(t, err)
	require.EqualValues(t, 3, summary.ConversationCount)
	require.EqualValues(t, 2, summary.ScoredCount)
	require.InDelta(t, 70.0, summary.AverageScore, 0.001)
	require.EqualValues(t, 200, summary.PromptTokens)
	require.EqualValues(t, 50, summary.CompletionTokens)
}

func TestListConversationsScoredFilter(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.CreateConversation(ctx, &store.Conversation{UID: "dddd0001", CreatorID: 1})
	require.NoError(t, err)
	created, err := db.CreateConversation(ctx, &store.Conversation{UID: "dddd0002", CreatorID: 1})
	require.NoError(t, err)
	_, err = db.UpdateConversation(ctx, &store.UpdateConversation{
		UID:      created.UID,
		Score:    int32Ptr(88),
		Feedback: strPtr("good"),
	})
	require.NoError(t, err)

	scored := true
	list, err := db.ListConversations(ctx, &store.FindConversation{Scored: &scored})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "dddd0002", list[0].UID)

	scored = false
	list, err = db.ListConversations(ctx, &store.FindConversation{Scored: &scored})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "dddd0001", list[0].UID)
}

func TestPromptTemplateDefaultFlag(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.CreatePromptTemplate(ctx, &store.PromptTemplate{
		UID:      "tpl-1",
		Name:     "Discovery call",
		Template: "Coach for {{.persona}}.",
	})
	require.NoError(t, err)
	created, err := db.CreatePromptTemplate(ctx, &store.PromptTemplate{
		UID:       "tpl-2",
		Name:      "Default rubric",
		Template:  "Score the call.",
		IsDefault: true,
	})
	require.NoError(t, err)

	isDefault := true
	list, err := db.ListPromptTemplates(ctx, &store.FindPromptTemplate{IsDefault: &isDefault})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, created.UID, list[0].UID)

	name := "Renamed rubric"
	updated, err := db.UpdatePromptTemplate(ctx, &store.UpdatePromptTemplate{UID: "tpl-2", Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Renamed rubric", updated.Name)

	require.NoError(t, db.DeletePromptTemplate(ctx, "tpl-2"))
	list, err = db.ListPromptTemplates(ctx, &store.FindPromptTemplate{})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestRunInTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.RunInTransaction(ctx, func(d store.Driver) error {
		if _, err := d.CreateConversation(ctx, &store.Conversation{UID: "eeee0001", CreatorID: 1}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	list, err := db.ListConversations(ctx, &store.FindConversation{})
	require.NoError(t, err)
	require.Empty(t, list)
}
