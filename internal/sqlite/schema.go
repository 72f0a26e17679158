package sqlite

// Schema DDL. The cache survives restarts, so statements are idempotent.
const (
	createInstances = `CREATE TABLE IF NOT EXISTS instances (
    app TEXT NOT NULL,
    type_id INTEGER NOT NULL,
    list_id TEXT NOT NULL,
    element_id TEXT NOT NULL,
    type_version TEXT NOT NULL,
    body TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (app, type_id, list_id, element_id)
);`

	idxInstancesList = `CREATE INDEX IF NOT EXISTS idx_instances_list ON instances(app, type_id, list_id);`
)

// schemaDDL lists the statements run on Attach, in order.
var schemaDDL = []string{
	createInstances,
	idxInstancesList,
}

// Queries.
const (
	selectInstance = `SELECT type_version, body FROM instances
WHERE app = ? AND type_id = ? AND list_id = ? AND element_id = ?`

	upsertInstance = `INSERT INTO instances (app, type_id, list_id, element_id, type_version, body, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (app, type_id, list_id, element_id) DO UPDATE SET
    type_version = excluded.type_version,
    body = excluded.body,
    updated_at = excluded.updated_at`

	deleteInstance = `DELETE FROM instances WHERE app = ? AND type_id = ? AND list_id = ? AND element_id = ?`

	selectAll = `SELECT app, type_id, list_id, element_id, type_version, body FROM instances
ORDER BY app, type_id, list_id, element_id`
)
