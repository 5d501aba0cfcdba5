package event

import (
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// Topics published by the core.
const (
	TopicPayoutScheduled = "payout.scheduled"
	TopicDropStatus      = "drop.status"
	TopicRaffleWinners   = "raffle.winners"
)

// Publisher is the outbound event surface. Publishing is fire-and-forget:
// order settlement never blocks on the broker.
type Publisher interface {
	Publish(topic string, message map[string]interface{})
	Close() error
}

// KafkaPublisher sends events through an async Kafka producer.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
}

// NewKafkaPublisher connects to the broker.
func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	go func() {
		for err := range producer.Errors() {
			log.Printf("[KafkaPublisher] Failed to send message: %v", err)
		}
	}()

	log.Printf("[KafkaPublisher] Connected to %v", brokers)
	return &KafkaPublisher{producer: producer}, nil
}

func (p *KafkaPublisher) Publish(topic string, message map[string]interface{}) {
	bytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("[KafkaPublisher] Failed to marshal message for %s: %v", topic, err)
		return
	}
	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(bytes),
	}
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher writes events to the process log. Used when no broker is
// configured, and in tests.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(topic string, message map[string]interface{}) {
	bytes, _ := json.Marshal(message)
	log.Printf("[LogPublisher] %s: %s", topic, bytes)
}

func (p *LogPublisher) Close() error {
	return nil
}

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = (*LogPublisher)(nil)
)
