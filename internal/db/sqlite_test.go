package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RichardoC/mintchat/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestCreateAndGetSession(t *testing.T) {
	ctx := context.Background()
	database := newTestDatabase(t)

	sess, err := database.CreateSession(ctx, "", "")
	require.NoError(t, err)
	_, err = uuid.Parse(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultLocale, sess.Locale)
	assert.False(t, sess.HasWallet())

	got, err := database.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, models.DefaultLocale, got.Locale)

	other, err := database.CreateSession(ctx, models.LocaleChinese, "wallet-1")
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, other.ID)

	got, err = database.GetSession(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LocaleChinese, got.Locale)
	assert.Equal(t, "wallet-1", got.WalletAddress)
}

func TestGetSessionUnknownIsNotAnError(t *testing.T) {
	database := newTestDatabase(t)

	got, err := database.GetSession(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAttachWallet(t *testing.T) {
	ctx := context.Background()
	database := newTestDatabase(t)

	sess, err := database.CreateSession(ctx, models.LocaleEnglish, "")
	require.NoError(t, err)

	require.NoError(t, database.AttachWallet(ctx, sess.ID, "wallet-a"))
	require.NoError(t, database.AttachWallet(ctx, sess.ID, "wallet-a"))
	got, err := database.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "wallet-a", got.WalletAddress)

	require.NoError(t, database.AttachWallet(ctx, sess.ID, "wallet-b"))
	got, err = database.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "wallet-b", got.WalletAddress)
}

func TestUpdateLocale(t *testing.T) {
	ctx := context.Background()
	database := newTestDatabase(t)

	sess, err := database.CreateSession(ctx, models.LocaleEnglish, "")
	require.NoError(t, err)
	require.NoError(t, database.UpdateLocale(ctx, sess.ID, models.LocaleChinese))

	got, err := database.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LocaleChinese, got.Locale)
}

func TestMessagesOrderingAndCounts(t *testing.T) {
	ctx := context.Background()
	database := newTestDatabase(t)

	sess, err := database.CreateSession(ctx, models.LocaleEnglish, "")
	require.NoError(t, err)

	prev := 0
	for i := 0; i < 6; i++ {
		_, err := database.AppendMessage(ctx, sess.ID, models.RoleUser, "question")
		require.NoError(t, err)
		_, err = database.AppendMessage(ctx, sess.ID, models.RoleAssistant, "answer")
		require.NoError(t, err)

		n, err := database.UserMessageCount(ctx, sess.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, prev)
		assert.Equal(t, i+1, n)
		prev = n
	}

	all, err := database.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, all, 12)
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i].ID, all[i-1].ID)
		assert.False(t, all[i].CreatedAt.Before(all[i-1].CreatedAt))
	}

	recent, err := database.RecentMessages(ctx, sess.ID, 8)
	require.NoError(t, err)
	require.Len(t, recent, 8)
	assert.Equal(t, all[len(all)-8:], recent)

	recent, err = database.RecentMessages(ctx, sess.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, all, recent)

	recent, err = database.RecentMessages(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestAppendExchangeWritesPair(t *testing.T) {
	ctx := context.Background()
	database := newTestDatabase(t)

	sess, err := database.CreateSession(ctx, models.LocaleEnglish, "")
	require.NoError(t, err)

	msgs, err := database.AppendExchange(ctx, sess.ID, "analyze token X", "looks concentrated")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)

	all, err := database.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "analyze token X", all[0].Content)
	assert.Equal(t, "looks concentrated", all[1].Content)
}

func TestAppendMessageRequiresSession(t *testing.T) {
	database := newTestDatabase(t)

	_, err := database.AppendMessage(context.Background(), uuid.NewString(), models.RoleUser, "orphan")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestStorageFailuresAreDistinct(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	database := NewWithDB(sqlDB)
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	mock.ExpectQuery("SELECT id, wallet_address, locale, created_at").WillReturnError(boom)
	sess, err := database.GetSession(ctx, "s1")
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, boom)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(boom)
	_, err = database.UserMessageCount(ctx, "s1")
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO messages").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO messages").WillReturnError(boom)
	mock.ExpectRollback()
	_, err = database.AppendExchange(ctx, "s1", "u", "a")
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	require.NoError(t, mock.ExpectationsWereMet())
}
