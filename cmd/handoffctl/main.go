// handoffctl inspects a running handoff router: recent orders, open
// handoffs, and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ashureev/handoff-router/internal/domain"
	"github.com/ashureev/handoff-router/internal/health"
	"github.com/ashureev/handoff-router/internal/identity"
	"github.com/ashureev/handoff-router/internal/store"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "orders":
		err = cmdOrders(args)
	case "handoffs":
		err = cmdHandoffs(args)
	case "health":
		err = cmdHealth(args)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	cyan := color.New(color.FgCyan)
	cyan.Fprintln(w, "handoffctl - inspect the handoff router")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  handoffctl orders [-n count] [--db path]   show the newest orders")
	fmt.Fprintln(w, "  handoffctl handoffs [--agent id] [--db path] list buyers handed off to the agent")
	fmt.Fprintln(w, "  handoffctl health [--addr host:port]       query the gRPC health endpoint")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "DB_PATH, AGENT_IDENTITY and GRPC_HEALTH_ADDR are read from the environment or .env.")
}

func openStore(path string) (*store.SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	return store.NewSQLite(path, store.Options{})
}

func envOr(key, legacy, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v := os.Getenv(legacy); v != "" {
		return v
	}
	return fallback
}

func cmdOrders(args []string) error {
	flags := pflag.NewFlagSet("orders", pflag.ContinueOnError)
	dbPath := flags.String("db", envOr("DB_PATH", "", "./data/handoff.db"), "path to the SQLite database")
	limit := flags.IntP("count", "n", 10, "number of orders to show")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return fmt.Errorf("count must be positive")
	}

	repo, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orders, err := repo.ListOrders(ctx, *limit)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		color.Yellow("No orders yet.\n")
		return nil
	}
	printOrders(os.Stdout, orders)
	return nil
}

func printOrders(w io.Writer, orders []*domain.Order) {
	green := color.New(color.FgGreen)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tBUYER\tPRODUCT\tQTY\tTOTAL\tLOCATION")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			o.CreatedAt.Local().Format("2006-01-02 15:04"), o.Buyer, o.ProductName, o.Quantity,
			green.Sprintf("Ksh %d", o.Total), o.Location)
	}
	_ = tw.Flush()
}

func cmdHandoffs(args []string) error {
	flags := pflag.NewFlagSet("handoffs", pflag.ContinueOnError)
	dbPath := flags.String("db", envOr("DB_PATH", "", "./data/handoff.db"), "path to the SQLite database")
	agent := flags.String("agent", envOr("AGENT_IDENTITY", "SELLER_NUMBER", ""), "agent identity")
	if err := flags.Parse(args); err != nil {
		return err
	}
	agentID := identity.Normalize(*agent)
	if agentID == "" {
		return fmt.Errorf("agent identity is required (--agent or AGENT_IDENTITY)")
	}

	repo, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions, err := repo.ListHandoffSessions(ctx, agentID)
	if err != nil {
		return err
	}
	active, err := repo.GetActiveChat(ctx, agentID)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		color.Yellow("No buyers are handed off to %s.\n", agentID)
		return nil
	}
	printHandoffs(os.Stdout, sessions, active)
	return nil
}

func printHandoffs(w io.Writer, sessions []*domain.Session, active string) {
	cyan := color.New(color.FgCyan, color.Bold)
	yellow := color.New(color.FgYellow)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tBUYER\tSTATE\tPRODUCT\tUPDATED")
	for _, s := range sessions {
		marker := " "
		buyer := s.Identity
		if s.Identity == active {
			marker = "*"
			buyer = cyan.Sprint(s.Identity)
		}
		state := string(s.State)
		if s.State == domain.StateHandoffSupervisor {
			state = yellow.Sprint(state)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", marker, buyer, state, s.Data.ProductName,
			s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}

func cmdHealth(args []string) error {
	flags := pflag.NewFlagSet("health", pflag.ContinueOnError)
	addr := flags.String("addr", envOr("GRPC_HEALTH_ADDR", "", "localhost:50052"), "gRPC health address")
	timeout := flags.Duration("timeout", 5*time.Second, "how long to wait for the server")
	if err := flags.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Printf("%s ", *addr)
	status, err := health.Check(ctx, *addr, health.ServiceName)
	if err != nil {
		color.Red("UNREACHABLE (%v)\n", err)
		return fmt.Errorf("health check failed")
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		color.Yellow("%s\n", status)
		return fmt.Errorf("service is %s", status)
	}
	color.Green("%s\n", status)
	return nil
}
