package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"papertrade/pkg/config"
	"papertrade/pkg/db"
)

// verify_schema checks that a database file carries every table and the
// late-added columns the service expects.
//
// Usage:
//   go run ./scripts/verify_schema [-db ./data/papertrade.db]

var expected = map[string][]string{
	"users":            {"id", "email", "password_hash", "is_admin"},
	"ledger_snapshots": {"version", "payload"},
	"trade_audit":      {"asset", "side", "qty", "price", "fee", "reason"},
	"capital_flows":    {"user_id", "asset", "kind", "amount", "fee"},
	"risk_configs":     {"base_stop_loss", "cooldown_seconds", "max_daily_loss", "is_active"},
	"risk_metrics":     {"date", "daily_pnl", "daily_trades"},
	"cycle_reports":    {"asset", "recommendation", "report", "failure"},
}

func main() {
	defaultPath := "./data/papertrade.db"
	if cfg, err := config.Load(); err == nil {
		defaultPath = cfg.DBPath
	}
	dbPath := flag.String("db", defaultPath, "sqlite database to inspect")
	flag.Parse()

	fmt.Printf("Verifying database at: %s\n", *dbPath)

	database, err := db.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer database.Close()

	missing := 0
	for _, table := range []string{"users", "ledger_snapshots", "trade_audit", "capital_flows", "risk_configs", "risk_metrics", "cycle_reports"} {
		var ddl string
		err := database.DB.QueryRow("SELECT sql FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&ddl)
		if err != nil {
			fmt.Printf("❌ %s table MISSING\n", table)
			missing++
			continue
		}
		fmt.Printf("✓ %s table exists\n", table)
		for _, col := range expected[table] {
			if !strings.Contains(ddl, col) {
				fmt.Printf("   ❌ %s.%s column MISSING\n", table, col)
				missing++
			}
		}
	}

	if missing > 0 {
		log.Fatalf("%d schema problems found; start the service once to apply migrations", missing)
	}
	fmt.Println("\nSchema OK")
}
