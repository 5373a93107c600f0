package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
	kafkax "github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/kafka"
)

// kafka-init creates the relay topics before the realtime buses start.
// Flags default to KAFKA_* environment variables.
func main() {
	_ = godotenv.Load()

	brokers := flag.String("brokers", os.Getenv("KAFKA_BROKERS"), "comma separated broker list")
	topics := flag.String("topics", getenv("KAFKA_TOPICS", "helpdesk.realtime.rooms"), "comma separated topics")
	partitions := flag.Int("partitions", atoi(os.Getenv("KAFKA_PARTITIONS"), 1), "partitions per topic")
	rf := flag.Int("rf", atoi(os.Getenv("KAFKA_RF"), 1), "replication factor")
	retention := flag.Duration("retention", time.Hour, "topic retention")
	flag.Parse()

	l, err := obs.NewLogger(obs.LogConfig{Level: "info", App: "helpdesk/kafka-init"})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	if *brokers == "" {
		*brokers = "kafka:9092"
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, t := range strings.Split(*topics, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		err := kafkax.EnsureTopic(ctx, strings.Split(*brokers, ","), kafkax.TopicSpec{
			Name:              t,
			NumPartitions:     *partitions,
			ReplicationFactor: *rf,
			Retention:         *retention,
			MaxWait:           30 * time.Second,
		}, l)
		if err != nil {
			l.Fatal("ensure topic", zap.String("topic", t), zap.Error(err))
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return def
}
