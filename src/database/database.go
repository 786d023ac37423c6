package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/portfolioxray/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migratePositionsTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		external_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		custodian TEXT,
		number TEXT,
		currency TEXT DEFAULT 'USD',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(client_id) REFERENCES clients(id)
	);

	CREATE TABLE IF NOT EXISTS batches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id INTEGER NOT NULL,
		client_id INTEGER,
		as_of_date TEXT,
		status TEXT DEFAULT 'ingested',
		notes TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS ingested_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL,
		filename TEXT NOT NULL,
		size_bytes INTEGER,
		kind TEXT,
		custodian TEXT,
		confidence INTEGER,
		requires_mapping BOOLEAN DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(batch_id) REFERENCES batches(id)
	);

	CREATE TABLE IF NOT EXISTS mappings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id INTEGER NOT NULL,
		custodian_hint TEXT,
		header_signature TEXT NOT NULL,
		json_mapping TEXT,
		version INTEGER DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(org_id, header_signature)
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL,
		file_id INTEGER,
		symbol TEXT,
		name TEXT,
		shares REAL,
		price REAL,
		market_value REAL,
		cost_basis REAL,
		cost_basis_estimated BOOLEAN DEFAULT FALSE,
		currency TEXT DEFAULT 'USD',
		sector TEXT,
		weight REAL,
		as_of_date TEXT,
		source_row INTEGER,
		FOREIGN KEY(batch_id) REFERENCES batches(id),
		FOREIGN KEY(file_id) REFERENCES ingested_files(id)
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// migratePositionsTable backfills columns added after the first release of
// the positions sink.
func migratePositionsTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='positions'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Info("'positions' table does not exist, no migration needed as table will be created.")
			} else {
				stdlog.Println("'positions' table does not exist, no migration needed as table will be created.")
			}
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'positions' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'positions' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(positions)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'positions'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'positions': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'positions'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'positions': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'positions'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'positions': %v", err)
		}
		return
	}

	if _, ok := columnExists["cost_basis_estimated"]; !ok {
		_, err := DB.Exec("ALTER TABLE positions ADD COLUMN cost_basis_estimated BOOLEAN DEFAULT FALSE")
		if err != nil {
			logger.L.Error("Error adding 'cost_basis_estimated' column to 'positions' table", "error", err)
		} else {
			logger.L.Info("Added 'cost_basis_estimated' column to 'positions' table")
		}
	}
	if _, ok := columnExists["weight"]; !ok {
		_, err := DB.Exec("ALTER TABLE positions ADD COLUMN weight REAL")
		if err != nil {
			logger.L.Error("Error adding 'weight' column to 'positions' table", "error", err)
		} else {
			logger.L.Info("Added 'weight' column to 'positions' table")
		}
	}
}
