// Command seed upserts the item catalogue from a YAML file into the store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"barangay/internal/config"
	"barangay/internal/database"
	"barangay/internal/domain"
	"barangay/internal/models"
	"barangay/internal/postgres"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type itemsFile struct {
	Items []models.Item `yaml:"items"`
}

type itemStore interface {
	domain.Repository
	Close() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		itemsPath = flag.String("items", "configs/items.yaml", "path to items.yaml")
		dbPath    = flag.String("db", "./data/barangay.db", "path to sqlite db")
		dsn       = flag.String("dsn", "", "postgres connection string; overrides -db")
	)
	flag.Parse()

	items, err := readItems(*itemsPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var store itemStore
	if *dsn != "" {
		store, err = postgres.NewStore(ctx, *dsn, &logger)
	} else {
		store, err = database.NewDB(*dbPath, &logger)
	}
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	seed := make([]*models.Item, len(items))
	for i := range items {
		seed[i] = &items[i]
	}
	if err := store.SyncItems(ctx, seed); err != nil {
		return fmt.Errorf("sync items: %w", err)
	}

	fmt.Printf("done: synced=%d\n", len(seed))
	return nil
}

func readItems(path string) ([]models.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	var f itemsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse items: %w", err)
	}
	if len(f.Items) == 0 {
		return nil, errors.New("no items in yaml")
	}
	if err := config.ValidateItems(f.Items); err != nil {
		return nil, err
	}
	return f.Items, nil
}
