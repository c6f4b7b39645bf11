package migrate

import "embed"

// Files holds the compiled-in migration and seed scripts.
//
//go:embed sql seeds
var Files embed.FS

// Default directory names inside Files.
const (
	MigrationsDir = "sql"
	SeedsDir      = "seeds"
)
