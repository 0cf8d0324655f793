// boardctl is a headless client for the Corkboard API. It drives the same
// sync engine the UI uses, which makes it handy for poking at a board from
// the terminal or for soak-testing a server.
//
// Usage:
//
//	boardctl -server http://localhost:8080 -token TOKEN -board brd_x show
//	boardctl ... watch [-interval 5s]
//	boardctl ... set-name "Sprint 12"
//	boardctl ... add-column "In Review"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"corkboard/api/internal/board"
	"corkboard/api/internal/sync"
	"corkboard/api/internal/util"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Corkboard API base URL")
	token := flag.String("token", os.Getenv("CORKBOARD_TOKEN"), "bearer token (defaults to $CORKBOARD_TOKEN)")
	boardID := flag.String("board", "", "board id")
	interval := flag.Duration("interval", 5*time.Second, "pull interval for watch")
	flag.Parse()

	if *boardID == "" || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if *token == "" {
		log.Fatal("no token: pass -token or set CORKBOARD_TOKEN")
	}

	adapter := sync.NewRESTAdapter(*server, func() map[string]string {
		return map[string]string{"Authorization": "Bearer " + *token}
	})

	cmd := flag.Arg(0)
	args := flag.Args()[1:]
	if err := run(cmd, args, *boardID, *interval, adapter); err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func run(cmd string, args []string, boardID string, interval time.Duration, adapter sync.Adapter) error {
	switch cmd {
	case "show":
		return show(boardID, adapter)
	case "watch":
		return watch(boardID, interval, adapter)
	case "set-name":
		if len(args) != 1 {
			return fmt.Errorf("usage: set-name <name>")
		}
		return apply(boardID, adapter, nameOp(args[0]))
	case "add-column":
		if len(args) != 1 {
			return fmt.Errorf("usage: add-column <title>")
		}
		return apply(boardID, adapter, columnOp(args[0]))
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func nameOp(name string) board.Operation {
	value, _ := json.Marshal(name)
	return board.Operation{Type: board.OpBoardName, Value: value}
}

func columnOp(title string) board.Operation {
	return board.Operation{
		Type:  board.OpColumnAdd,
		Index: 1 << 30, // past any plausible end, the fold clamps it
		Column: &board.Column{
			ID:    util.NewID("col"),
			Title: title,
			Cards: []board.Card{},
		},
	}
}

func show(boardID string, adapter sync.Adapter) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err := adapter.FetchSnapshot(ctx, boardID)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("board %s not found", boardID)
	}
	fmt.Printf("revision %d\n", snap.ServerRevision)
	printBoard(snap.Board)
	return nil
}

// apply records one local edit, pushes it, and reports the new revision.
func apply(boardID string, adapter sync.Adapter, op board.Operation) error {
	engine := sync.NewEngine(boardID, nil, adapter, nil)
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := engine.Bootstrap(ctx); err != nil {
		return err
	}
	if err := engine.Record(op); err != nil {
		return err
	}
	engine.SyncNow()
	if n := engine.PendingOps(); n > 0 {
		return fmt.Errorf("%d operation(s) not accepted by the server", n)
	}
	fmt.Printf("ok, revision %d\n", engine.Revision())
	return nil
}

func watch(boardID string, interval time.Duration, adapter sync.Adapter) error {
	engine := sync.NewEngine(boardID, nil, adapter, func(b *board.Board) {
		fmt.Printf("--- %s\n", time.Now().Format(time.TimeOnly))
		printBoard(b)
	})
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := engine.Bootstrap(ctx); err != nil {
		cancel()
		return err
	}
	cancel()

	printBoard(engine.Document())
	engine.SetPullInterval(interval)
	log.Printf("watching %s every %s, Ctrl-C to stop", boardID, interval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}

func printBoard(b *board.Board) {
	if b == nil {
		fmt.Println("(no document)")
		return
	}
	fmt.Printf("%s\n", b.Name)
	for _, col := range b.Columns {
		fmt.Printf("  [%s] %s (%d cards)\n", col.ID, col.Title, len(col.Cards))
		for _, card := range col.Cards {
			fmt.Printf("    - %s\n", card.Title)
		}
	}
}
