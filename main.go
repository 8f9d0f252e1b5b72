package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"go-attentionmap/clustering"
	"go-attentionmap/config"
	"go-attentionmap/cronjobs"
	"go-attentionmap/db"
	"go-attentionmap/gamification"
	"go-attentionmap/hub"
	"go-attentionmap/routes"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	// Policy knobs
	cfg := config.Default()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", path, err)
		}
		cfg = loaded
	}
	fmt.Printf("Clustering radius %dm, window %s\n", cfg.Clustering.RadiusMeters, cfg.Clustering.Window)

	// Pick the store: Firestore in production, in-memory for demos
	var store db.Store
	if os.Getenv("DEMO_MODE") != "" {
		log.Println("DEMO_MODE: using in-memory store")
		store = db.NewMemoryStore()
	} else {
		firestoreClient, err := db.InitFirestore()
		if err != nil {
			log.Fatalf("Failed to initialize Firestore: %v", err)
		}
		defer db.CloseFirestore() // Firestore client is closed on exit
		store = db.NewFirestoreStore(firestoreClient)
	}

	distHub := hub.New(cfg.Stream.BufferSize)
	engine := clustering.NewEngine(store, distHub, cfg.Clustering)
	gamify := gamification.NewService(store)

	// Periodic cluster sweep
	sweeper := cronjobs.InitCronJobs(store, cfg.Sweep.Schedule, cfg.Clustering.Window)
	defer sweeper.Stop()

	r := routes.SetupRouter(store, engine, distHub, gamify, cfg)
	if err := r.Run(cfg.Server.ListenAddress); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
