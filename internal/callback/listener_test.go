package callback

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListener_SuccessfulCallback(t *testing.T) {
	l := New("expected-state")
	redirectURI, err := l.Start(context.Background(), 18080)
	require.NoError(t, err)
	defer l.Stop()

	go func() {
		time.Sleep(20 * time.Millisecond)
		resp, err := http.Get(fmt.Sprintf("%s?code=abc&state=expected-state", redirectURI))
		if err == nil {
			resp.Body.Close()
		}
	}()

	result, err := l.WaitForCallback(context.Background())
	require.NoError(t, err)
	require.False(t, result.IsError())
	require.Equal(t, "abc", result.Code)
}

func TestListener_RejectsMismatchedState(t *testing.T) {
	l := New("expected-state")
	redirectURI, err := l.Start(context.Background(), 18090)
	require.NoError(t, err)
	defer l.Stop()

	go func() {
		time.Sleep(20 * time.Millisecond)
		resp, err := http.Get(fmt.Sprintf("%s?code=abc&state=wrong-state", redirectURI))
		if err == nil {
			resp.Body.Close()
		}
	}()

	result, err := l.WaitForCallback(context.Background())
	require.NoError(t, err)
	require.True(t, result.IsError())
	require.Equal(t, "state_mismatch", result.Error)
}

func TestListener_WaitForAuthReturnsResultOnceCallbackArrives(t *testing.T) {
	l := New("expected-state")
	redirectURI, err := l.Start(context.Background(), 18100)
	require.NoError(t, err)
	defer l.Stop()

	resp, err := http.Get(fmt.Sprintf("%s?code=abc&state=expected-state", redirectURI))
	require.NoError(t, err)
	resp.Body.Close()

	pollURL := fmt.Sprintf("http://127.0.0.1:%d/wait-for-auth?pollId=test", l.Port())
	client := &http.Client{Timeout: 2 * time.Second}
	pollResp, err := client.Get(pollURL)
	require.NoError(t, err)
	defer pollResp.Body.Close()
	require.Equal(t, http.StatusOK, pollResp.StatusCode)
}
