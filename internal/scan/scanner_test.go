package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexmos/session-repair/internal/storage"
)

const signatureErr = "messages.1.content.0: Invalid `signature` in `thinking` block"

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	return storage.New(t.TempDir(), t.TempDir())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeMessage(t *testing.T, store *storage.Store, sessionID, msgID, role string, created int64, errText string) {
	t.Helper()
	doc := fmt.Sprintf(`{"id":%q,"role":%q,"time":{"created":%d},"modelID":"claude-sonnet","providerID":"anthropic"`, msgID, role, created)
	if errText != "" {
		doc += fmt.Sprintf(`,"error":{"data":{"message":%q}}`, errText)
	}
	doc += "}"
	writeFile(t, filepath.Join(store.MessageDir(sessionID), msgID+".json"), doc)
}

func TestScanFindsSignatureErrors(t *testing.T) {
	store := newTestStore(t)
	writeMessage(t, store, "ses_1", "msg_ok", "assistant", 100, "")
	writeMessage(t, store, "ses_1", "msg_bad", "assistant", 200, signatureErr)
	writeFile(t, filepath.Join(store.SessionRoot(), "proj", "ses_1.json"), `{"title":"Broken Session"}`)

	records, err := NewScanner(store).Scan()
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "msg_bad", rec.MessageID)
	assert.Equal(t, "ses_1", rec.SessionID)
	assert.Equal(t, "Broken Session", rec.SessionTitle)
	assert.Equal(t, signatureErr, rec.ErrorText)
	assert.Equal(t, "anthropic", rec.ProviderID)
	assert.Equal(t, "claude-sonnet", rec.ModelID)
	require.NotNil(t, rec.Position)
	assert.Equal(t, 1, rec.Position.MessageIndex)
	assert.Equal(t, 0, rec.Position.ContentIndex)
}

func TestScanExcludesPartialMarkerMatches(t *testing.T) {
	store := newTestStore(t)
	writeMessage(t, store, "ses_1", "msg_a", "assistant", 100, "Invalid signature on auth token")
	writeMessage(t, store, "ses_1", "msg_b", "assistant", 200, "thinking block signature drift")
	writeMessage(t, store, "ses_1", "msg_c", "assistant", 300, "Invalid thinking budget")

	records, err := NewScanner(store).Scan()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestScanOrdersNewestFirst(t *testing.T) {
	store := newTestStore(t)
	writeMessage(t, store, "ses_1", "msg_old", "assistant", 100, signatureErr)
	writeMessage(t, store, "ses_2", "msg_new", "assistant", 300, signatureErr)
	writeMessage(t, store, "ses_1", "msg_mid", "assistant", 200, signatureErr)

	records, err := NewScanner(store).Scan()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "msg_new", records[0].MessageID)
	assert.Equal(t, "msg_mid", records[1].MessageID)
	assert.Equal(t, "msg_old", records[2].MessageID)
}

func TestScanSkipsUnreadableFiles(t *testing.T) {
	store := newTestStore(t)
	writeMessage(t, store, "ses_1", "msg_bad", "assistant", 200, signatureErr)
	writeFile(t, filepath.Join(store.MessageDir("ses_1"), "msg_junk.json"), "}{ not json")

	records, err := NewScanner(store).Scan()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "msg_bad", records[0].MessageID)
}

func TestScanNilPositionWhenErrorTextHasNone(t *testing.T) {
	store := newTestStore(t)
	writeMessage(t, store, "ses_1", "msg_bad", "assistant", 200,
		"Invalid `signature` in `thinking` block (no position reported)")

	records, err := NewScanner(store).Scan()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Position)
}

func TestScanUnknownTitleWhenMetadataMissing(t *testing.T) {
	store := newTestStore(t)
	writeMessage(t, store, "ses_1", "msg_bad", "assistant", 200, signatureErr)

	records, err := NewScanner(store).Scan()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, storage.TitleUnknown, records[0].SessionTitle)
}

func TestScanMissingMessageRoot(t *testing.T) {
	store := storage.New(filepath.Join(t.TempDir(), "does-not-exist"), t.TempDir())
	_, err := NewScanner(store).Scan()
	assert.Error(t, err)
}
