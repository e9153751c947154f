// Command api serves the read-only launch event query API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/acepocalypse/tt2check/internal/api"
	"github.com/acepocalypse/tt2check/internal/db"
	"github.com/acepocalypse/tt2check/internal/version"
)

var (
	dbPath  = flag.String("db", "events.db", "Path to the sqlite event database")
	listen  = flag.String("listen", ":8080", "Address to listen on")
	origins = flag.String("origins", "*", "Comma-separated CORS allow-list, or * for any origin")
	showVer = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.Version)
		return
	}

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	var allowed []string
	if *origins == "*" {
		allowed = []string{"*"}
	} else if *origins != "" {
		allowed = strings.Split(*origins, ",")
	}

	srv := api.NewServer(database, allowed)
	httpServer := &http.Server{
		Addr:    *listen,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	log.Printf("api server %s listening on %s", version.Version, *listen)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	log.Print("api server stopped")
}
