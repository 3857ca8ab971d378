package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"bracketd/pkg/bracket"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bracket-cli [-server URL] <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version     Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  balance     Show account balance and loss limit\n")
		fmt.Fprintf(os.Stderr, "  contracts   List tradeable contracts\n")
		fmt.Fprintf(os.Stderr, "  history     Show recent bracket placements\n")
		fmt.Fprintf(os.Stderr, "  place       Place a bracket order\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	server := flag.String("server", envOr("BRACKETD_URL", "http://localhost:5000"), "bracketd base URL")
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	client := bracket.NewClient(*server)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch flag.Arg(0) {
	case "version":
		fmt.Printf("bracket-cli %s\n", version)
	case "balance":
		err = runBalance(ctx, client)
	case "contracts":
		err = runContracts(ctx, client)
	case "history":
		err = runHistory(ctx, client, flag.Args()[1:])
	case "place":
		err = runPlace(ctx, client, flag.Args()[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", flag.Arg(0))
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runBalance(ctx context.Context, client *bracket.Client) error {
	b, err := client.GetBalance(ctx)
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Account", "Balance", "Maximum Loss", "Tradable Capital"})
	t.AppendRow(table.Row{
		b.AccountID,
		fmt.Sprintf("%.2f", b.Balance),
		fmt.Sprintf("%.2f", b.MaximumLoss),
		fmt.Sprintf("%.2f", b.Balance-b.MaximumLoss),
	})
	t.Render()
	return nil
}

func runContracts(ctx context.Context, client *bracket.Client) error {
	contracts, err := client.ListContracts(ctx)
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Symbol", "Contract", "Tick Size", "Tick Value"})
	for _, c := range contracts {
		t.AppendRow(table.Row{c.Symbol, c.ContractID, c.TickSize, c.TickValue})
	}
	t.Render()
	return nil
}

func runHistory(ctx context.Context, client *bracket.Client, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "maximum placements to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	placements, err := client.History(ctx, *limit)
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Placed", "Symbol", "Side", "Qty", "Entry", "TP", "SL", "Entry Order"})
	for _, p := range placements {
		t.AppendRow(table.Row{
			p.PlacedAt.Local().Format("2006-01-02 15:04:05"),
			p.Symbol, p.Side, p.Quantity,
			p.EntryPrice, p.TakeProfitPrice, p.StopLossPrice,
			p.EntryOrderID,
		})
	}
	t.Render()
	return nil
}

func runPlace(ctx context.Context, client *bracket.Client, args []string) error {
	fs := flag.NewFlagSet("place", flag.ExitOnError)
	symbol := fs.String("symbol", "", "contract symbol (empty uses the server default)")
	entry := fs.Float64("entry", 0, "entry price (required)")
	tp := fs.Float64("tp", 0, "take-profit price (required)")
	sl := fs.Float64("sl", 0, "stop-loss price (required)")
	qty := fs.Int("qty", 0, "quantity (0 = risk-sized by the server)")
	stop := fs.Bool("stop", false, "use a stop-market entry instead of a limit entry")
	tag := fs.String("tag", "", "optional custom order tag")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *entry == 0 || *tp == 0 || *sl == 0 {
		return fmt.Errorf("place requires -entry, -tp, and -sl")
	}

	res, err := client.PlaceBracket(ctx, bracket.PlaceParams{
		Symbol:     *symbol,
		Entry:      *entry,
		TakeProfit: *tp,
		StopLoss:   *sl,
		Quantity:   *qty,
		CustomTag:  *tag,
		StopEntry:  *stop,
	})
	if err != nil {
		return err
	}

	fmt.Printf("placed %s %d %s @ %.2f (tp %.2f, sl %.2f)\n",
		res.Side, res.Quantity, res.Symbol, res.EntryPrice, res.TakeProfitPrice, res.StopLossPrice)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Leg", "Order ID", "Price"})
	t.AppendRow(table.Row{"entry", res.EntryOrderID, res.EntryPrice})
	t.AppendRow(table.Row{"take-profit", res.TakeProfitOrderID, res.TakeProfitPrice})
	t.AppendRow(table.Row{"stop-loss", res.StopLossOrderID, res.StopLossPrice})
	t.Render()
	return nil
}
