package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"daygrid/internal/config"
	"daygrid/internal/session"
	"daygrid/internal/store"
	"daygrid/internal/tui"
	"daygrid/internal/web"
)

func main() {
	configPathFlag := flag.String("config", "", "config file path")
	dbPathFlag := flag.String("db", "", "sqlite db path (local storage)")
	databaseURLFlag := flag.String("database-url", "", "postgres url (remote storage)")
	storageFlag := flag.String("storage", "", "storage backend: local or remote")
	userFlag := flag.String("user", "", "username to open")
	webFlag := flag.Bool("web", false, "enable web server")
	webOnlyFlag := flag.Bool("web-only", false, "run web server only")
	portFlag := flag.Int("port", 0, "web server port")
	flag.Parse()

	cfgPath, err := resolveConfigPath(*configPathFlag)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	if *dbPathFlag != "" {
		cfg.DBPath = *dbPathFlag
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(filepath.Dir(cfgPath), "daygrid.db")
	}
	if *databaseURLFlag != "" {
		cfg.DatabaseURL = *databaseURLFlag
	}
	if *storageFlag != "" {
		cfg.Storage = *storageFlag
	}
	if cfg.Storage == "" {
		cfg.Storage = config.StorageLocal
	}
	if *userFlag != "" {
		cfg.Username = *userFlag
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	if *webFlag || *webOnlyFlag {
		cfg.WebEnabled = true
	}
	if *portFlag != 0 {
		cfg.WebPort = *portFlag
	}
	if cfg.WebPort == 0 {
		cfg.WebPort = 8484
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		log.Fatal(err)
	}

	sessions, cleanup, err := openSessions(cfgPath, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()
	defer func() { _ = sessions.Close() }()

	if cfg.WebEnabled {
		addr := fmt.Sprintf(":%d", cfg.WebPort)
		handler := web.NewServer(sessions).Handler()
		if *webOnlyFlag {
			log.Printf("daygrid running at http://localhost%s", addr)
			log.Fatal(http.ListenAndServe(addr, handler))
		}

		go func() {
			log.Printf("daygrid running at http://localhost%s", addr)
			if err := http.ListenAndServe(addr, handler); err != nil {
				log.Printf("web server error: %v", err)
			}
		}()
	}

	if err := tui.Run(sessions); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return config.DefaultConfigPath()
}

// openSessions wires the store factory for the configured backend and
// opens the initial session. The returned cleanup closes the shared
// sqlite handle or Postgres pool.
func openSessions(cfgPath string, cfg config.Config) (*session.Manager, func(), error) {
	switch cfg.Storage {
	case config.StorageLocal:
		if err := config.EnsureDir(cfg.DBPath); err != nil {
			return nil, nil, err
		}
		db, err := store.OpenLocalDB(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}

		username := cfg.Username
		if saved, err := store.LoadUsername(context.Background(), db); err == nil && saved != "" && cfg.Username == "default" {
			username = saved
		}

		factory := func(name string) (store.Store, error) {
			return store.NewLocal(db, name)
		}
		save := func(name string) error {
			return store.SaveUsername(context.Background(), db, name)
		}
		sessions, err := session.NewManager(factory, save, username)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return sessions, closeDB(db), nil

	case config.StorageRemote:
		pool, err := store.OpenRemotePool(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}

		factory := func(name string) (store.Store, error) {
			return store.NewRemote(pool, name), nil
		}
		save := func(name string) error {
			cfg.Username = name
			return config.Save(cfgPath, cfg)
		}
		sessions, err := session.NewManager(factory, save, cfg.Username)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return sessions, pool.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}
