package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

// runCLI executes the root command against srv and returns stdout.
func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()

	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"get-token", "use-token"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	assert.Equal(t, "text", root.PersistentFlags().Lookup("format").DefValue)
}

func TestGetToken_SendsRequest(t *testing.T) {
	var got CreateTokenRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Result{
			Status: 0, Outcome: "ok", Message: "Created token",
			Token: &Token{UserID: got.UserID, TokenID: "tok-1", RemainingUsages: int64(got.UsageCount), ExpiryDate: got.ExpiryDate},
		})
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "--token", "secret", "get-token", "42", "--usages", "3", "--ttl", "1h")
	require.NoError(t, err)

	assert.Equal(t, int64(42), got.UserID)
	assert.Equal(t, 3, got.UsageCount)
	assert.Regexp(t, `^TXN\d+$`, got.TxnKey)
	assert.WithinDuration(t, time.Now().Add(time.Hour), got.ExpiryDate, time.Minute)
	assert.Equal(t, "Bearer secret", auth)
	assert.Contains(t, out, "Created token")
	assert.Contains(t, out, "tok-1")
	assert.Contains(t, out, "3 remaining")
}

func TestUseToken_RejectionIsPrinted(t *testing.T) {
	var got UseTokenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/use", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusGone)
		_ = json.NewEncoder(w).Encode(Result{Status: -5, Outcome: "token_used", Message: "Token tok-1 used"})
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "use-token", "42", "tok-1", "--txn-key", "TXN7")
	require.NoError(t, err)

	assert.Equal(t, UseTokenRequest{UserID: 42, TokenID: "tok-1", TxnKey: "TXN7"}, got)
	assert.Contains(t, out, "status:  -5 (token_used)")
	assert.Contains(t, out, "Token tok-1 used")
}

func TestUseToken_JSONOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Result{Status: 0, Outcome: "ok", Message: "subtracted one from token"})
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "--format", "json", "use-token", "42", "tok-1")
	require.NoError(t, err)

	var res Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "subtracted one from token", res.Message)
}

func TestAPIErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
	}))
	defer srv.Close()

	_, err := runCLI(t, srv, "use-token", "42", "tok-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
	assert.Contains(t, err.Error(), "401")
}

func TestInvalidArguments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	_, err := runCLI(t, srv, "get-token", "forty-two")
	assert.ErrorContains(t, err, "invalid user id")

	_, err = runCLI(t, srv, "get-token", "42", "--usages", "0")
	assert.ErrorContains(t, err, "--usages")

	_, err = runCLI(t, srv, "--format", "xml", "use-token", "42", "t")
	assert.ErrorContains(t, err, "invalid format")

	_, err = runCLI(t, srv, "use-token", "42")
	assert.Error(t, err)
}

func TestNewTxnKey(t *testing.T) {
	opts := &RootOptions{now: func() time.Time { return fixedNow }}
	assert.Equal(t, "TXN1782900000000", opts.newTxnKey())
}
