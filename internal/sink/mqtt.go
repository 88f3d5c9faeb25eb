package sink

import (
	"encoding/json"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/arvel-h/pumplab/internal/sim"
)

// StepMessage is the published payload: one JSON document per step.
type StepMessage struct {
	Step         int       `json:"step"`
	Status       string    `json:"status"`
	Noise        float64   `json:"noise"`
	Load         float64   `json:"load"`
	Measurements []float64 `json:"measurements"`
	Commands     []float64 `json:"commands"`
	Online       []bool    `json:"online"`
}

// MQTT publishes step records to a broker topic so external dashboards can
// follow a run live. Publish failures are logged, never propagated: losing
// a telemetry frame must not stall the control loop.
type MQTT struct {
	client mqtt.Client
	topic  string
	log    *slog.Logger
}

func NewMQTT(broker, clientID, topic string, log *slog.Logger) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}

	if log == nil {
		log = slog.Default()
	}
	return &MQTT{client: client, topic: topic, log: log.With("component", "mqtt")}, nil
}

func (m *MQTT) Emit(step sim.Step) {
	msg := StepMessage{
		Step:         step.Index,
		Status:       step.Status.String(),
		Noise:        step.Sample.Noise,
		Load:         step.Sample.Load,
		Measurements: step.Measurements,
		Commands:     step.Commands,
		Online:       step.Online,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		m.log.Warn("marshal step", "err", err)
		return
	}

	token := m.client.Publish(m.topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		m.log.Warn("publish step", "step", step.Index, "err", err)
	}
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
