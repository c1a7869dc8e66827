package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "queueserver/cloudlog"
	"queueserver/config"
	"queueserver/hub"
	"queueserver/queue"
	"queueserver/remotejob"
	"queueserver/storage"

	"github.com/gorilla/mux"
	"google.golang.org/api/option"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	log.Init(ctx, cfg.ProjectID, cfg.LogName, opts...)
	defer log.Close()

	db, err := storage.Open(ctx, storage.Options{
		ProjectID:     cfg.ProjectID,
		APIKey:        cfg.APIKey,
		ClientOptions: opts,
	})
	if err != nil {
		log.Fatalf("Error opening storage: %v", err)
	}
	defer db.Close()

	events := remotejob.NewPublisher(ctx, cfg.ProjectID, cfg.EventsTopic, opts...)
	defer events.Close()

	queueHub := hub.NewHub(db)
	go queueHub.Run(ctx)

	checkOrigin := func(r *http.Request) bool {
		return cfg.OriginAllowed(r.Header.Get("Origin"))
	}
	connector := hub.NewConnector(queueHub, db, db, db, events, checkOrigin)

	router := mux.NewRouter()
	router.HandleFunc("/ws", connector.ServeWs).Methods(http.MethodGet)
	router.HandleFunc("/queues", queuesHandler).Methods(http.MethodGet)
	router.HandleFunc("/healthz", healthHandler(queueHub)).Methods(http.MethodGet)
	if cfg.StaticDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir)))
	}

	server := &http.Server{Addr: cfg.Addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down: %v", err)
		}
	}()

	log.Println("Starting server at: " + cfg.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func queuesHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(queue.Definitions()); err != nil {
		log.Printf("Error writing queue definitions: %v", err)
	}
}

// healthHandler fails once the queue listener has stopped, so the process gets restarted.
func healthHandler(queueHub *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := queueHub.Err(); err != nil {
			http.Error(w, "queue listener stopped", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}
}
