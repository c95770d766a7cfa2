package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"valorbot/pkg/intent"
)

func TestGatewayServiceRunE2EOrderedRepliesPerChat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter := newScriptedAdapter(
		privateMessage(100, 1, "one"),
		privateMessage(100, 2, "two"),
		privateMessage(200, 3, "three"),
		privateMessage(100, 4, "four"),
	)
	ag := &echoAgent{}
	svc := newTestService(t, testConfig(t), adapter, ag)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		if len(adapter.sent()) != 4 {
			return false
		}
		for _, messageID := range []int64{1, 2, 3, 4} {
			reactions := adapter.reactionsFor(messageID)
			if len(reactions) == 0 || reactions[len(reactions)-1] != intent.SymbolCompleted {
				return false
			}
		}
		return true
	}, 3*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}

	var chat100 []string
	for _, sent := range adapter.sent() {
		if sent.chatID == 100 {
			chat100 = append(chat100, fmt.Sprintf("%d:%s", sent.replyTo, sent.text))
		}
	}
	require.Equal(t, []string{"1:ok:one", "2:ok:two", "4:ok:four"}, chat100)

	stats := svc.stack.Stats.Snapshot()
	require.EqualValues(t, 4, stats.Received)
	require.EqualValues(t, 4, stats.Responded)
	require.Zero(t, svc.dispatcher.pending())
}

func TestGatewayServiceRunReturnsAdapterError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter := newScriptedAdapter()
	adapter.runErr = errors.New("polling stopped")
	svc := newTestService(t, testConfig(t), adapter, &echoAgent{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	select {
	case err := <-errCh:
		require.ErrorContains(t, err, "run telegram channel: polling stopped")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}

	state := svc.currentStatus("x").Channels["telegram"]
	require.False(t, state.Running)
	require.Equal(t, "polling stopped", state.Error)
}

func TestGatewayServiceRunFailsOnUnhealthyProvider(t *testing.T) {
	ag := &echoAgent{}
	ag.setHealthErr(errors.New("no credentials"))
	svc := newTestService(t, testConfig(t), newScriptedAdapter(), ag)

	err := svc.Run(context.Background())
	require.ErrorContains(t, err, "provider health check failed")
}

func TestGatewayServiceReadyzTransitionsOnProviderHealthRecovery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t)
	ag := &echoAgent{}
	svc := newTestService(t, cfg, newScriptedAdapter(), ag)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	readyURL := fmt.Sprintf("http://127.0.0.1:%d/readyz", cfg.Gateway.Port)
	require.Eventually(t, func() bool {
		response, err := http.Get(readyURL)
		if err != nil {
			return false
		}
		defer response.Body.Close()
		return response.StatusCode == http.StatusOK
	}, 3*time.Second, 25*time.Millisecond)

	ag.setHealthErr(fmt.Errorf("temporary provider outage"))
	require.Error(t, svc.checkProviderHealth(context.Background()))
	require.Equal(t, http.StatusServiceUnavailable, waitHTTPStatus(t, readyURL, 2*time.Second))

	ag.setHealthErr(nil)
	require.NoError(t, svc.checkProviderHealth(context.Background()))
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, readyURL, 2*time.Second))

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}
