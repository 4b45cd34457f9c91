package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mcserverd/mcserverd/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	serverDir  = flag.String("server-dir", "/var/lib/mcserverd/server", "mcserverd server directory (contains instances.json and instances.db)")
	dryRun     = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	backupPath = flag.String("backup", "", "Path to back up instances.json before migration (default: <server-dir>/instances.json.backup)")
)

var bucketInstances = []byte("instances")

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("mcserverd Registry Migration Tool - instances.json -> instances.db")
	log.Println("====================================================================")

	jsonPath := filepath.Join(*serverDir, "instances.json")
	if _, err := os.Stat(jsonPath); os.IsNotExist(err) {
		log.Fatalf("legacy registry not found at %s - nothing to migrate", jsonPath)
	}

	log.Printf("Legacy registry: %s", jsonPath)
	log.Printf("Dry run: %v", *dryRun)

	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = jsonPath + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := copyFile(jsonPath, backupFile); err != nil {
			log.Fatalf("Failed to create backup: %v", err)
		}
		log.Println("Backup created successfully")
	}

	dbPath := filepath.Join(*serverDir, "instances.db")
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := migrateJSONToBolt(jsonPath, db, *dryRun); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if *dryRun {
		log.Println("\nDry run completed. No changes made.")
		log.Println("Run without --dry-run to perform the migration.")
	} else {
		log.Println("\nMigration completed successfully.")
		log.Printf("Legacy %s is no longer read; it has been left in place alongside its backup.", jsonPath)
	}
}

// legacyRegistry is the shape of the pre-BoltDB instances.json file: an
// object whose "instances" field maps instance ID to the same Instance
// struct the registry uses today.
type legacyRegistry struct {
	Instances map[string]*types.Instance `json:"instances"`
}

func migrateJSONToBolt(jsonPath string, db *bolt.DB, dryRun bool) error {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", jsonPath, err)
	}

	var legacy legacyRegistry
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("parsing %s: %w", jsonPath, err)
	}

	log.Printf("Found %d instances in legacy registry", len(legacy.Instances))
	if len(legacy.Instances) == 0 {
		log.Println("Nothing to migrate")
		return nil
	}

	if dryRun {
		log.Println("\n[DRY RUN] Would perform the following operations:")
		log.Println("1. Create 'instances' bucket if absent")
		for id, inst := range legacy.Instances {
			log.Printf("2. Write instance %s (%s)", id, inst.Name)
		}
		return nil
	}

	return db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketInstances)
		if err != nil {
			return fmt.Errorf("creating instances bucket: %w", err)
		}

		migrated := 0
		for id, inst := range legacy.Instances {
			encoded, err := json.Marshal(inst)
			if err != nil {
				log.Printf("Warning: skipping instance %s, could not re-encode: %v", id, err)
				continue
			}
			if err := bucket.Put([]byte(id), encoded); err != nil {
				return fmt.Errorf("writing instance %s: %w", id, err)
			}
			migrated++
		}

		log.Printf("Migrated %d/%d instances into instances.db", migrated, len(legacy.Instances))
		return nil
	})
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0o600)
}
