package kafka

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"

	"tripchat/logger"
	"tripchat/module/chat/model"
)

type Config struct {
	Brokers []string
	Topic   string
}

// Archiver mirrors every persisted chat message onto a Kafka topic for the
// marketplace's analytics pipeline. Keyed by conversation id so one thread
// stays on one partition in order.
type Archiver struct {
	topic string
	prod  sarama.AsyncProducer
}

func buildConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

func NewArchiver(c Config) (*Archiver, error) {
	prod, err := sarama.NewAsyncProducer(c.Brokers, buildConfig())
	if err != nil {
		return nil, err
	}
	a := &Archiver{topic: c.Topic, prod: prod}
	go func() {
		for err := range prod.Errors() {
			logger.Errorf("[KafkaArchiver] produce err=%v", err)
		}
	}()
	return a, nil
}

func (a *Archiver) Archive(msg *model.MessageView) {
	body, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("[KafkaArchiver] marshal msg=%s err=%v", msg.MessageID, err)
		return
	}
	a.prod.Input() <- &sarama.ProducerMessage{
		Topic: a.topic,
		Key:   sarama.StringEncoder(msg.ConversationID),
		Value: sarama.ByteEncoder(body),
	}
}

func (a *Archiver) Close() error {
	return a.prod.Close()
}
