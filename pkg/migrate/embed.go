package migrate

import "embed"

// Embedded holds the SQL migrations compiled into every binary so workers and
// the api can self-migrate without the source tree on disk.
//
//go:embed migrations/*.sql
var Embedded embed.FS

const embeddedDir = "migrations"
