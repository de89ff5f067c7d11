package config

import "time"

const defaultPort = 8080

var defaultDB = DB{
	Host: "127.0.0.1",
	Port: "5432",
	User: "dispatch",
	Pass: "dispatch",
	Name: "dispatch_db",
}

var defaultKafka = Kafka{
	Brokers:       nil,
	ConsumerGroup: "service-dispatch",
	OrdersTopic:   "order-events",
}

var defaultAMQP = AMQP{
	URL:                  "",
	NotificationExchange: "dispatch.notifications",
	TaskQueue:            "dispatch.tasks",
}

var defaultDispatch = Dispatch{
	RadiusKm:              10,
	UnknownLocationFactor: 0.8,
	MaxRetries:            3,
	RetryBaseDelay:        30 * time.Second,
	AssignmentTimeout:     5 * time.Minute,
	TimeoutSweepInterval:  time.Minute,
}

var defaultExecutor = Executor{
	EnableAsyncQueue: true,
	FallbackToSync:   true,
	PoolWorkers:      4,
	PoolQueueSize:    64,
}

// DefaultPort returns the default port.
func DefaultPort() int { return defaultPort }

// DefaultDB returns the default database settings.
func DefaultDB() DB { return defaultDB }

// DefaultKafka returns the default Kafka settings.
func DefaultKafka() Kafka { return defaultKafka }

// DefaultAMQP returns the default AMQP settings.
func DefaultAMQP() AMQP { return defaultAMQP }

// DefaultDispatch returns the default dispatch policy.
func DefaultDispatch() Dispatch { return defaultDispatch }

// DefaultExecutor returns the default executor policy.
func DefaultExecutor() Executor { return defaultExecutor }
