package natspub

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/natsx"
	"github.com/plaenen/commercecore/pkg/store"
)

func TestPublishCarriesSubjectAndMsgID(t *testing.T) {
	srv, err := natsx.StartEmbeddedServer()
	require.NoError(t, err)
	defer srv.Shutdown()

	pub, err := Connect(srv.URL())
	require.NoError(t, err)
	defer pub.Close()

	sub, err := nats.Connect(srv.URL())
	require.NoError(t, err)
	defer sub.Close()

	inbox, err := sub.SubscribeSync(SubjectPrefix + ".variant.created")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	entry, err := store.NewOutboxEntry("obx_1", &domain.Event{
		AggregateID:   "var_1",
		Version:       0,
		EventName:     "variant.created",
		OccurredAt:    domain.Now(),
		CorrelationID: "corr_1",
		UserID:        "user_1",
		Payload:       domain.Payload{NewState: []byte(`{"id":"var_1"}`)},
	})
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), entry))

	msg, err := inbox.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, SubjectPrefix+".variant.created", msg.Subject)
	assert.Equal(t, "obx_1", msg.Header.Get(MsgIDHeader))
	assert.Contains(t, string(msg.Data), `"variant.created"`)
	assert.Contains(t, string(msg.Data), `"var_1"`)
}
