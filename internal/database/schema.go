package database

// Schema contains all SQL statements for creating tables and indexes
const Schema = `
-- Location queue: positions waiting to be uploaded
CREATE TABLE IF NOT EXISTS gps_coordinates (
    id TEXT PRIMARY KEY NOT NULL,  -- decimal unix seconds, also the dedup key
    access_token TEXT,
    latitude TEXT NOT NULL,
    longitude TEXT NOT NULL,
    other_data TEXT,               -- JSON object: accuracy, speed, device power flags
    create_date TEXT NOT NULL
);

-- Event queue: geofence edges, status changes, notifications
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY NOT NULL,
    access_token TEXT NOT NULL,
    service TEXT NOT NULL,
    action TEXT NOT NULL,
    objects TEXT,                  -- JSON object
    create_date TEXT NOT NULL
);

-- Settings written by initialize and by the geofence engine
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT
);

-- Latest known status per monitored service
CREATE TABLE IF NOT EXISTS service_status (
    service TEXT PRIMARY KEY NOT NULL,
    status TEXT,
    create_date TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_gps_coordinates_create_date ON gps_coordinates(create_date);
CREATE INDEX IF NOT EXISTS idx_events_create_date ON events(create_date);
`
