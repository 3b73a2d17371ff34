package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Admin sessions issued by the login endpoint
const AdminSessionTTL = 24 * time.Hour

// DefaultAdminDisplayName is used as senderName when an admin logs in without one.
const DefaultAdminDisplayName = "Support"

// WebSocket transport settings
const (
	WSWriteWait      = 10 * time.Second
	WSPongWait       = 60 * time.Second
	WSPingPeriod     = (WSPongWait * 9) / 10
	WSMaxFrameSize   = 64 * 1024
	WSSendBufferSize = 64
)

// SessionLockStripes bounds the number of per-session mutexes the protocol
// handler holds.
const SessionLockStripes = 64

// IdleSessionBatchSize is the page size of one idle-session scan.
const IdleSessionBatchSize = 100
