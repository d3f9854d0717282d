package store

import (
	"path/filepath"
	"testing"

	"netlens/internal/logger"
	"netlens/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite3"), "netlens_", logger.NewNop())
	require.NoError(t, err)
	return s
}

func jsonExchange(session, url, body string) *model.Exchange {
	return &model.Exchange{
		SessionID:    session,
		URL:          url,
		Method:       "GET",
		ResponseBody: body,
		ContentType:  model.ContentTypeOf("application/json; charset=utf-8"),
		Timestamp:    1700000000000,
	}
}

func TestPutPersistsOnlyJSON(t *testing.T) {
	s := openTemp(t)

	id, err := s.Put(jsonExchange("s1", "https://api.test/a", `{"a":1}`))
	require.NoError(t, err)
	assert.NotZero(t, id)

	// text/html 不入库，也不报错
	html := jsonExchange("s1", "https://api.test/page", "<html>")
	html.ContentType = model.ContentTypeOf("text/html")
	id, err = s.Put(html)
	require.NoError(t, err)
	assert.Zero(t, id)

	// 缺失 Content-Type 同样被过滤
	none := jsonExchange("s1", "https://api.test/raw", "xx")
	none.ContentType = nil
	id, err = s.Put(none)
	require.NoError(t, err)
	assert.Zero(t, id)

	n, err := s.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPutRejectsMissingSession(t *testing.T) {
	s := openTemp(t)
	ex := jsonExchange("", "https://api.test/a", `{}`)
	_, err := s.Put(ex)
	require.Error(t, err)
	assert.True(t, IsStorageFault(err))
}

func TestPutAssignsIncreasingIDs(t *testing.T) {
	s := openTemp(t)
	var last uint
	for i := 0; i < 5; i++ {
		id, err := s.Put(jsonExchange("s1", "https://api.test/a", `{"n":1}`))
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}

func TestRoundTrip(t *testing.T) {
	s := openTemp(t)
	in := jsonExchange("s1", "https://api.test/users", `{"a":1}`)
	in.Method = "POST"
	id, err := s.Put(in)
	require.NoError(t, err)

	out, err := s.QueryBySession("s1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	got := out[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "https://api.test/users", got.URL)
	assert.Equal(t, "POST", got.Method)
	assert.Equal(t, `{"a":1}`, got.ResponseBody)
	require.NotNil(t, got.ContentType)
	assert.Equal(t, "application/json; charset=utf-8", *got.ContentType)
	assert.EqualValues(t, 1700000000000, got.Timestamp)
}

func TestQueryUnknownSessionIsEmpty(t *testing.T) {
	s := openTemp(t)
	out, err := s.QueryBySession("nope")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := openTemp(t)
	id, err := s.Put(jsonExchange("s1", "https://api.test/a", `{}`))
	require.NoError(t, err)

	require.NoError(t, s.DeleteByID(id))
	require.NoError(t, s.DeleteByID(id)) // 第二次删除同样成功
	require.NoError(t, s.DeleteByID(9999))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClearAllRemovesEverySession(t *testing.T) {
	s := openTemp(t)
	_, err := s.Put(jsonExchange("s1", "https://api.test/a", `{}`))
	require.NoError(t, err)
	_, err = s.Put(jsonExchange("s1", "https://api.test/b", `{}`))
	require.NoError(t, err)

	require.NoError(t, s.ClearAll())

	out, err := s.QueryBySession("s1")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReopenKeepsRecords(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.sqlite3")
	s, err := Open(dsn, "netlens_", logger.NewNop())
	require.NoError(t, err)
	_, err = s.Put(jsonExchange("s1", "https://api.test/a", `{"a":1}`))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// 重新打开会再次执行迁移，旧记录必须原样保留
	s2, err := Open(dsn, "netlens_", logger.NewNop())
	require.NoError(t, err)
	out, err := s2.QueryBySession("s1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, `{"a":1}`, out[0].ResponseBody)
}
