package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/paint-and-guess/internal/config"
	"github.com/paint-and-guess/internal/domain"
	"github.com/paint-and-guess/internal/kafka"
)

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

var stopReasons = []domain.StopReason{
	domain.StopTimeout, domain.StopComplete, domain.StopComplete, domain.StopDrawerLeft,
}

func getPlayerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

// fakeRound builds a plausible finished round for room
func fakeRound(room string, round uint64, players int, roundDuration time.Duration) domain.RoundRecord {
	drawer := rand.IntN(players)
	guessers := 0
	for idx := range players {
		if idx != drawer && rand.IntN(100) < 60 {
			guessers++
		}
	}

	ended := time.Now()
	return domain.RoundRecord{
		ID:         uuid.NewString(),
		RoomID:     room,
		Round:      round,
		Word:       config.DefaultWords[rand.IntN(len(config.DefaultWords))],
		DrawerName: getPlayerName(drawer),
		Guessers:   guessers,
		Reason:     stopReasons[rand.IntN(len(stopReasons))],
		StartedAt:  ended.Add(-time.Duration(rand.Int64N(int64(roundDuration)))),
		EndedAt:    ended,
	}
}

// options are the generator's command line settings
type options struct {
	brokers  []string
	topic    string
	rooms    int
	players  int
	rate     int
	duration time.Duration
}

// parseFlags reads options from args. Topic and brokers default to the
// server's Kafka settings so the server's consumer reads what is produced.
func parseFlags(args []string) (options, error) {
	defaults := config.DefaultConfig().Kafka

	fs := flag.NewFlagSet("kafka-producer", flag.ContinueOnError)
	brokers := fs.String("brokers", strings.Join(defaults.Brokers, ","), "Kafka brokers (comma-separated)")
	topic := fs.String("topic", defaults.Topic, "Kafka topic")
	roomCount := fs.Int("rooms", 10, "Number of rooms to simulate")
	players := fs.Int("players", 8, "Players per room")
	roundsPerSecond := fs.Int("rate", 20, "Rounds per second")
	duration := fs.Duration("duration", 0, "Duration to run (0 = forever)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if *roomCount <= 0 || *players < 2 || *roundsPerSecond <= 0 {
		return options{}, errors.New("rooms and rate must be positive and players at least 2")
	}

	return options{
		brokers:  strings.Split(*brokers, ","),
		topic:    *topic,
		rooms:    *roomCount,
		players:  *players,
		rate:     *roundsPerSecond,
		duration: *duration,
	}, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🎨 Kafka Round Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", strings.Join(opts.brokers, ","))
	fmt.Printf("  Topic:            %s\n", opts.topic)
	fmt.Printf("  Rooms:            %d\n", opts.rooms)
	fmt.Printf("  Players/room:     %d\n", opts.players)
	fmt.Printf("  Rounds/sec:       %d\n", opts.rate)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	producer, err := kafka.NewProducer(&config.KafkaConfig{
		Brokers: opts.brokers,
		Topic:   opts.topic,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if opts.duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, opts.duration)
		defer stop()
	}

	roundDuration := config.DefaultConfig().Game.RoundDuration
	rounds := make([]uint64, opts.rooms)

	ticker := time.NewTicker(time.Second / time.Duration(opts.rate))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var queued int64
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\n\nShutting down...")
			_ = producer.Close()
			sent, failed := producer.Stats()
			fmt.Printf("\n✓ Completed. Queued: %d, Sent: %d, Errors: %d\n", queued, sent, failed)
			return

		case <-ticker.C:
			room := rand.IntN(opts.rooms)
			rounds[room]++
			rec := fakeRound(fmt.Sprintf("room-%d", room+1), rounds[room], opts.players, roundDuration)
			if err := producer.RecordRound(ctx, rec); err != nil {
				continue
			}
			queued++

		case <-statsTicker.C:
			sent, failed := producer.Stats()
			fmt.Printf("[%s] Queued: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				queued,
				sent,
				failed,
			)
		}
	}
}
