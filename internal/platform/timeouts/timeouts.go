// Package timeouts defines shared timeout constants. Centralizing these values
// keeps the runtime and command packages from drifting apart.
package timeouts

import "time"

// StorageOpen caps a single attempt at opening and pinging the database.
const StorageOpen = 5 * time.Second

// StorageBusy is the SQLite busy timeout applied to every connection.
const StorageBusy = 5 * time.Second

// Shutdown limits how long servers and telemetry wait for in-flight work
// during graceful shutdown.
const Shutdown = 5 * time.Second
