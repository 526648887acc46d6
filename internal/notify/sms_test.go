package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"ticketwatch/pkg/domain"
	"ticketwatch/pkg/serrors"

	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCreator struct {
	mu     sync.Mutex
	params []*twilioApi.CreateMessageParams
	fail   map[string]error
}

func (f *fakeCreator) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.params = append(f.params, p)
	if err := f.fail[*p.To]; err != nil {
		return nil, err
	}
	sid := "SM" + *p.To

	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func newTestSMSChannel(api messageCreator, to ...string) *SMSChannel {
	c := NewSMSChannel(SMSOptions{AccountSID: "AC123", AuthToken: "token", From: "+15550000000", To: to})
	c.api = api

	return c
}

func TestSMSChannel_Send(t *testing.T) {
	api := &fakeCreator{}
	c := newTestSMSChannel(api, "+15551111111", "+15552222222")
	require.Equal(t, domain.ChannelSMS, c.Kind())

	require.NoError(t, c.Send(context.Background(), testEvent))
	require.Len(t, api.params, 2)
	for i, to := range []string{"+15551111111", "+15552222222"} {
		require.Equal(t, to, *api.params[i].To)
		require.Equal(t, "+15550000000", *api.params[i].From)
		require.Contains(t, *api.params[i].Body, "The ticket page has been updated.")
		require.Contains(t, *api.params[i].Body, testEvent.URL)
	}
}

func TestSMSChannel_PartialFailure(t *testing.T) {
	api := &fakeCreator{fail: map[string]error{"+15551111111": errors.New("21211 invalid number")}}
	c := newTestSMSChannel(api, "+15551111111", "+15552222222")

	err := c.Send(context.Background(), testEvent)
	require.ErrorIs(t, err, serrors.ErrChannel)
	require.Contains(t, err.Error(), "21211 invalid number")
	// the second recipient is still attempted
	require.Len(t, api.params, 2)
}

func TestSMSChannel_Cancelled(t *testing.T) {
	api := &fakeCreator{}
	c := newTestSMSChannel(api, "+15551111111")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Send(ctx, testEvent)
	require.ErrorIs(t, err, serrors.ErrChannel)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, api.params)
}
