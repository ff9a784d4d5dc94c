package kafkaconfig

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Brokers:                   []string{"localhost:9092"},
		ProducerMaxAttempts:       DefaultProducerMaxAttempts,
		ProducerBatchTimeout:      DefaultProducerBatchTimeout,
		ProducerRequireAcks:       DefaultProducerRequireAcks,
		ProducerCompression:       DefaultProducerCompression,
		ConsumerStartOffset:       DefaultConsumerStartOffset,
		ConsumerMinBytes:          DefaultConsumerMinBytes,
		ConsumerMaxBytes:          DefaultConsumerMaxBytes,
		ConsumerMaxWait:           DefaultConsumerMaxWait,
		ConsumerHeartbeatInterval: DefaultConsumerHeartbeatInterval,
		ConsumerSessionTimeout:    DefaultConsumerSessionTimeout,
		ConsumerRebalanceTimeout:  DefaultConsumerRebalanceTimeout,
		ConsumerMaxRetries:        DefaultConsumerMaxRetries,
		ConsumerRetryBackoff:      DefaultConsumerRetryBackoff,
		ConsumerMaxRetryBackoff:   DefaultConsumerMaxRetryBackoff,
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv(EnvKafkaBrokers, "kafka-1:9092, kafka-2:9092")
	t.Setenv(EnvKafkaConsumerMaxRetries, "7")
	t.Setenv(EnvKafkaConsumerRetryBackoff, "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Brokers)
	}
	if cfg.ConsumerMaxRetries != 7 {
		t.Errorf("ConsumerMaxRetries = %d, want 7", cfg.ConsumerMaxRetries)
	}
	if cfg.ConsumerRetryBackoff != 250*time.Millisecond {
		t.Errorf("ConsumerRetryBackoff = %s, want 250ms", cfg.ConsumerRetryBackoff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty broker", func(c *Config) { c.Brokers = []string{""} }, "Broker 0 cannot be empty"},
		{"bad compression", func(c *Config) { c.ProducerCompression = "brotli" }, "ProducerCompression"},
		{"bad acks", func(c *Config) { c.ProducerRequireAcks = 2 }, "ProducerRequireAcks"},
		{"bad offset", func(c *Config) { c.ConsumerStartOffset = -3 }, "ConsumerStartOffset"},
		{"zero backoff", func(c *Config) { c.ConsumerRetryBackoff = 0 }, "ConsumerRetryBackoff"},
		{"negative retries", func(c *Config) { c.ConsumerMaxRetries = -1 }, "ConsumerMaxRetries"},
		{"backoff cap below backoff", func(c *Config) { c.ConsumerMaxRetryBackoff = time.Millisecond }, "ConsumerMaxRetryBackoff must be at least"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_IgnoresUnparsableValues(t *testing.T) {
	t.Setenv(EnvKafkaConsumerMaxRetries, "many")
	t.Setenv(EnvKafkaEnableMiddleware, "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ConsumerMaxRetries != DefaultConsumerMaxRetries {
		t.Errorf("ConsumerMaxRetries = %d, want default %d", cfg.ConsumerMaxRetries, DefaultConsumerMaxRetries)
	}
	if cfg.EnableMiddleware {
		t.Errorf("EnableMiddleware should be false")
	}
}
