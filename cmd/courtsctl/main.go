package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"tenniscourts/internal/client"
	"tenniscourts/internal/database"
	"tenniscourts/internal/seed"

	"github.com/rs/zerolog"
)

const usage = `usage: courtsctl [flags] <command> [args]

commands:
  free <court_id>                      list free slots of a court
  add-slot <court_id> <RFC3339 start>  add a one-hour slot
  book <guest_id> <schedule_id>        book a slot
  find <reservation_id>                show a reservation
  cancel <reservation_id>              cancel a reservation
  reschedule <reservation_id> <schedule_id>
  seed                                 load -seed into the local -db
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		baseURL  = flag.String("api", envOr("COURTS_API", "http://localhost:8080"), "base URL of the reservation API")
		apiKey   = flag.String("key", os.Getenv("COURTS_API_KEY"), "API key")
		apiExtra = flag.String("extra", os.Getenv("COURTS_API_EXTRA"), "API extra secret")
		seedPath = flag.String("seed", "configs/seed.yaml", "path to seed.yaml")
		dbPath   = flag.String("db", "./data/tenniscourts.db", "path to sqlite db")
	)
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return errors.New("command is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if args[0] == "seed" {
		return runSeed(ctx, *seedPath, *dbPath)
	}

	c := client.New(*baseURL, *apiKey, *apiExtra)
	result, err := dispatch(ctx, c, args[0], args[1:])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func dispatch(ctx context.Context, c *client.Client, cmd string, args []string) (any, error) {
	switch cmd {
	case "free":
		ids, err := parseIDs(args, 1)
		if err != nil {
			return nil, err
		}
		return c.FreeSchedules(ctx, ids[0])
	case "add-slot":
		if len(args) != 2 {
			return nil, errors.New("add-slot needs <court_id> <start>")
		}
		ids, err := parseIDs(args[:1], 1)
		if err != nil {
			return nil, err
		}
		start, err := time.Parse(time.RFC3339, args[1])
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
		return c.AddSchedule(ctx, ids[0], start)
	case "book":
		ids, err := parseIDs(args, 2)
		if err != nil {
			return nil, err
		}
		return c.Book(ctx, ids[0], ids[1])
	case "find":
		ids, err := parseIDs(args, 1)
		if err != nil {
			return nil, err
		}
		return c.FindReservation(ctx, ids[0])
	case "cancel":
		ids, err := parseIDs(args, 1)
		if err != nil {
			return nil, err
		}
		return c.Cancel(ctx, ids[0])
	case "reschedule":
		ids, err := parseIDs(args, 2)
		if err != nil {
			return nil, err
		}
		return c.Reschedule(ctx, ids[0], ids[1])
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

func runSeed(ctx context.Context, seedPath, dbPath string) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	db, err := database.NewDB(dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	res, err := seed.LoadAndApply(ctx, db, seedPath, &logger)
	if err != nil {
		return err
	}
	fmt.Printf("done: courts=%d guests=%d skipped=%d\n", res.CourtsCreated, res.GuestsCreated, res.Skipped)
	return nil
}

func parseIDs(args []string, n int) ([]int64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d id argument(s), got %d", n, len(args))
	}
	ids := make([]int64, n)
	for i, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids[i] = id
	}
	return ids, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
