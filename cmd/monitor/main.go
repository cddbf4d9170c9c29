// seg-monitor: Serve the training dashboard for a run database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/AmeerHamza111/MONAI/monitor"
	"github.com/AmeerHamza111/MONAI/rundb"
)

var (
	addr      = flag.String("addr", ":8080", "Listen address")
	runDBPath = flag.String("run-db", "runs.db", "SQLite run database")
	dataDir   = flag.String("data", "", "Dataset root for slice previews")
)

func main() {
	flag.Parse()

	fmt.Println("╔══════════════════════════════════════════════════════════╗")
	fmt.Println("║              MONAI Training Dashboard                    ║")
	fmt.Println("╚══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Address:      %s\n", *addr)
	fmt.Printf("  Run database: %s\n", *runDBPath)
	if *dataDir != "" {
		fmt.Printf("  Data root:    %s\n", *dataDir)
	}
	fmt.Println()

	db, err := rundb.Open(*runDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening run database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ws, err := monitor.NewWebServer(monitor.Config{
		Address:  *addr,
		DB:       db,
		DataRoot: *dataDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating web server: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Dashboard: http://%s/\n", dashboardHost(*addr))
	if err := ws.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Shutdown complete")
}

func dashboardHost(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
