package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mtandao/netbill/internal/config"
	notifierdomain "github.com/mtandao/netbill/internal/notifier/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSender(t *testing.T, gatewayURL string) notifierdomain.Sender {
	t.Helper()
	return New(Params{
		Log: zap.NewNop(),
		Cfg: config.Config{
			SMSGatewayURL: gatewayURL,
			SMSTimeout:    2 * time.Second,
		},
	})
}

func TestSendPostsGatewayPayload(t *testing.T) {
	var got sendRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := newSender(t, srv.URL)
	company := notifierdomain.Company{Name: "Mtandao Networks", SenderID: "MTANDAO", APIKey: "key-123"}

	err := sender.Send(context.Background(), company, "254700000001", "hello")
	require.NoError(t, err)
	require.Equal(t, "Bearer key-123", auth)
	require.Equal(t, "MTANDAO", got.SenderID)
	require.Equal(t, "254700000001", got.Phone)
	require.Equal(t, "hello", got.Message)
}

func TestSendRejectedByGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	sender := newSender(t, srv.URL)
	err := sender.Send(context.Background(), notifierdomain.Company{SenderID: "X"}, "254700000001", "hi")
	require.ErrorIs(t, err, notifierdomain.ErrRejected)
}

func TestSendWithoutGatewayIsNoop(t *testing.T) {
	sender := newSender(t, "")
	err := sender.Send(context.Background(), notifierdomain.Company{}, "254700000001", "hi")
	require.NoError(t, err)
}
