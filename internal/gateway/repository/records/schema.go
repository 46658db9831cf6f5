package records

import "entgo.io/ent/dialect"

const (
	tableUsers    = "users"
	tablePlants   = "plant_diagnoses"
	tableSessions = "equipment_sessions"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(64) PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    email VARCHAR(320) NOT NULL DEFAULT '',
    login_method VARCHAR(64) NOT NULL DEFAULT '',
    role VARCHAR(16) NOT NULL DEFAULT 'user',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    last_signed_in TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS plant_diagnoses (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    image_url TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    crop_type VARCHAR(64) NOT NULL DEFAULT '',
    temperature DOUBLE PRECISION,
    humidity DOUBLE PRECISION,
    ec DOUBLE PRECISION,
    result JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_plant_diagnoses_user ON plant_diagnoses(user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS equipment_sessions (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    conversation_history JSONB NOT NULL DEFAULT '[]'::jsonb,
    final_diagnosis JSONB,
    status VARCHAR(16) NOT NULL DEFAULT 'ongoing',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_equipment_sessions_user ON equipment_sessions(user_id, updated_at DESC)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    login_method TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT 'user',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_signed_in TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS plant_diagnoses (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    image_url TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    crop_type TEXT NOT NULL DEFAULT '',
    temperature REAL,
    humidity REAL,
    ec REAL,
    result TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_plant_diagnoses_user ON plant_diagnoses(user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS equipment_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    conversation_history TEXT NOT NULL DEFAULT '[]',
    final_diagnosis TEXT,
    status TEXT NOT NULL DEFAULT 'ongoing',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_equipment_sessions_user ON equipment_sessions(user_id, updated_at DESC)`,
}

func schemaFor(d string) []string {
	if d == dialect.SQLite {
		return sqliteSchema
	}
	return postgresSchema
}
