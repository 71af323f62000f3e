package roster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/outlook-sweeper/internal/accounts"
)

func TestParseTargets(t *testing.T) {
	in := "\ufeffemail,Other\na@x.com,1\n,2\n  b@x.com ,3\nc@x.com\n"

	got, err := ParseTargets(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, got)
}

func TestParseTargetsMissingColumn(t *testing.T) {
	_, err := ParseTargets(strings.NewReader("Mail\na@x.com\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = ParseTargets(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestParseNewAccounts(t *testing.T) {
	got, err := ParseNewAccounts(strings.NewReader("Email,Pass\na@x.com,secret\n"))
	require.NoError(t, err)
	assert.Equal(t, []accounts.Credentials{{Email: "a@x.com", Password: "secret"}}, got)
}

func TestParseProfiles(t *testing.T) {
	in := "Email,Pass,Profile_id\na@x.com,pa,P1\nb@x.com,pb,\n"

	got, err := ParseProfiles(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "P1", got[0].ProfileID)
	assert.False(t, got[1].HasProfile())
}

func TestLedgerAppendWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emails", "profiles.csv")
	l := NewLedger(path)

	require.NoError(t, l.Append(accounts.Account{Email: "a@x.com", Password: "p,a", ProfileID: "P1"}))
	require.NoError(t, l.Append(accounts.Account{Email: "b@x.com", Password: "pb", ProfileID: "P2"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Email,Pass,Profile_id\na@x.com,\"p,a\",P1\nb@x.com,pb,P2\n", string(data))

	loaded, err := l.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "p,a", loaded[0].Password)
}

func TestLedgerLoadMissingFile(t *testing.T) {
	got, err := NewLedger(filepath.Join(t.TempDir(), "none.csv")).Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadTargetsMissingFile(t *testing.T) {
	_, err := ReadTargets(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestSenderReport(t *testing.T) {
	dir := t.TempDir()
	r := NewSenderReport(dir)
	r.now = func() time.Time { return time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC) }

	path, err := r.WriteSenders("a@x.com", []string{"news@franco.com", "x@franco.org"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "unspammed_a@x.com_2025-06-07_08-09-10.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "account,sender\na@x.com,news@franco.com\na@x.com,x@franco.org\n", string(data))
}
