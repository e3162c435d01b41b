package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/accident_detector/internal/testutil"
)

func TestMQTTSinkPublishesPayload(t *testing.T) {
	broker := testutil.StartBroker(t)
	listener := testutil.ConnectClient(t, broker, "listener")
	publisher := testutil.ConnectClient(t, broker, "publisher")

	got := make(chan Payload, 1)
	token := listener.Subscribe("accident/telemetry", 1, func(_ mqtt.Client, msg mqtt.Message) {
		var p Payload
		if err := json.Unmarshal(msg.Payload(), &p); err == nil {
			got <- p
		}
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	sink := &MQTTSink{Client: publisher, Topic: "accident/telemetry", QoS: 1, Timeout: 5 * time.Second}
	ack, err := sink.Submit(context.Background(), sampleBatch())
	require.NoError(t, err)
	assert.Equal(t, Ack{}, ack, "acks arrive asynchronously")

	select {
	case p := <-got:
		assert.True(t, p.ShakeStopDetected)
		assert.Equal(t, 12.97, p.Lat)
		assert.Equal(t, "session-1/1", p.RunID, "ack consumers echo the run id")
	case <-time.After(5 * time.Second):
		t.Fatal("payload not received")
	}
}

func TestSubscribeAcks(t *testing.T) {
	broker := testutil.StartBroker(t)
	server := testutil.ConnectClient(t, broker, "decision-service")
	engine := testutil.ConnectClient(t, broker, "engine")

	acks := make(chan Ack, 2)
	unsubscribe, err := SubscribeAcks(engine, "accident/ack", 5*time.Second, nil, func(a Ack) { acks <- a })
	require.NoError(t, err)

	server.Publish("accident/ack", 1, false, []byte("not json")).WaitTimeout(5 * time.Second)
	server.Publish("accident/ack", 1, false, []byte(`{"accident_detected":true,"request_id":"r-1","run_id":"engine/3"}`)).WaitTimeout(5 * time.Second)

	select {
	case a := <-acks:
		assert.True(t, a.IncidentCreated())
		assert.Equal(t, "r-1", a.RequestID)
		assert.Equal(t, "engine/3", a.RunID)
	case <-time.After(5 * time.Second):
		t.Fatal("ack not delivered")
	}

	require.NoError(t, unsubscribe())
}
