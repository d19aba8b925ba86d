package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"goodweather/internal/aggregator"
	"goodweather/internal/logger"
	"goodweather/internal/report"
)

const discoveryPrefix = "homeassistant"

type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	enabled     bool
	now         func() time.Time
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Enabled     bool
}

// Message is one MQTT publication.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false, now: time.Now}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Info("mqtt connected", "broker", cfg.Broker)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: strings.TrimRight(cfg.TopicPrefix, "/"),
		enabled:     true,
		now:         time.Now,
	}, nil
}

// Publish sends per-day and per-window verdict states plus the retained JSON
// report. Individual state failures are logged; the report failure is returned.
func (p *Publisher) Publish(r *report.Report) error {
	if !p.enabled || r == nil {
		return nil
	}

	msgs, err := Messages(r, p.topicPrefix, p.now())
	if err != nil {
		return err
	}

	var lastErr error
	for _, msg := range msgs {
		token := p.client.Publish(msg.Topic, 0, msg.Retained, msg.Payload)
		token.Wait()
		if token.Error() != nil {
			logger.Warn("mqtt publish failed", "topic", msg.Topic, "error", token.Error())
			if msg.Topic == ReportTopic(p.topicPrefix) {
				lastErr = fmt.Errorf("failed to publish report: %w", token.Error())
			}
		}
	}
	return lastErr
}

// PublishHomeAssistantDiscovery announces one sensor per window of r plus a
// day verdict sensor, all tracking the current day.
func (p *Publisher) PublishHomeAssistantDiscovery(r *report.Report) error {
	if !p.enabled || r == nil {
		return nil
	}

	msgs, err := DiscoveryMessages(r, p.topicPrefix)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		token := p.client.Publish(msg.Topic, 0, msg.Retained, msg.Payload)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("failed to publish discovery %s: %w", msg.Topic, token.Error())
		}
	}
	return nil
}

func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

func (p *Publisher) Close() {
	if p.enabled && p.client != nil {
		p.client.Disconnect(1000)
	}
}

func ReportTopic(prefix string) string {
	return prefix + "/report"
}

func DayTopic(prefix, date string) string {
	return fmt.Sprintf("%s/%s/verdict", prefix, date)
}

func WindowTopic(prefix, date, window string) string {
	return fmt.Sprintf("%s/%s/%s", prefix, date, window)
}

// Messages builds every state publication for r. States for the day matching
// now in the report's timezone are also published under the "today" alias.
func Messages(r *report.Report, prefix string, now time.Time) ([]Message, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	today, hasToday := Today(r, now)

	msgs := make([]Message, 0, len(r.Days)*(len(r.Windows)+1)+1)
	for _, day := range r.Days {
		dates := []string{day.Date}
		if hasToday && day.Date == today.Date {
			dates = append(dates, "today")
		}
		for _, date := range dates {
			msgs = append(msgs, Message{Topic: DayTopic(prefix, date), Payload: []byte(day.Verdict), Retained: date == "today"})
			for _, w := range day.Windows {
				msgs = append(msgs, Message{
					Topic:    WindowTopic(prefix, date, w.Window.Name),
					Payload:  []byte(w.Verdict),
					Retained: date == "today",
				})
			}
		}
	}
	msgs = append(msgs, Message{Topic: ReportTopic(prefix), Payload: body, Retained: true})
	return msgs, nil
}

// Today returns the report day for now's date in the report location, or
// the first day when the forecast starts later.
func Today(r *report.Report, now time.Time) (aggregator.DayVerdict, bool) {
	if len(r.Days) == 0 {
		return aggregator.DayVerdict{}, false
	}
	loc := time.UTC
	if tz := r.Location.Timezone; tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	date := now.In(loc).Format("2006-01-02")
	if d, ok := r.Day(date); ok {
		return d, true
	}
	if r.Days[0].Date > date {
		return r.Days[0], true
	}
	return aggregator.DayVerdict{}, false
}

func DiscoveryMessages(r *report.Report, prefix string) ([]Message, error) {
	device := map[string]interface{}{
		"identifiers":  []string{"goodweather"},
		"name":         "Good Weather",
		"manufacturer": "goodweather",
		"model":        r.Provider,
	}

	type sensor struct {
		id, name, stateTopic string
	}
	sensors := []sensor{{"day", "Today", DayTopic(prefix, "today")}}
	for _, w := range r.Windows {
		sensors = append(sensors, sensor{w.Name, w.Label, WindowTopic(prefix, "today", w.Name)})
	}

	msgs := make([]Message, 0, len(sensors))
	for _, s := range sensors {
		config := map[string]interface{}{
			"name":        fmt.Sprintf("Good Weather %s", s.name),
			"unique_id":   fmt.Sprintf("goodweather_%s", s.id),
			"state_topic": s.stateTopic,
			"icon":        "mdi:weather-partly-cloudy",
			"device":      device,
		}
		payload, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal discovery for %s: %w", s.id, err)
		}
		msgs = append(msgs, Message{
			Topic:    fmt.Sprintf("%s/sensor/goodweather/%s/config", discoveryPrefix, s.id),
			Payload:  payload,
			Retained: true,
		})
	}
	return msgs, nil
}
