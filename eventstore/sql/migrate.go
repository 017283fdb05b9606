package sql

import "context"

// Migrate the database
func (s *SQL) Migrate() error {
	sqlStmt := []string{
		`create table if not exists events (seq INTEGER PRIMARY KEY AUTOINCREMENT, aggregate_id VARCHAR NOT NULL, aggregate_type VARCHAR NOT NULL, version INTEGER NOT NULL, agent_type VARCHAR, agent_id VARCHAR, reason VARCHAR NOT NULL, snapshot INTEGER NOT NULL DEFAULT 0, timestamp VARCHAR NOT NULL, data BLOB);`,
		`create unique index if not exists aggregate_id_type_version on events (aggregate_id, aggregate_type, version) where snapshot = 0;`,
		`create index if not exists aggregate_id_type_snapshot on events (aggregate_id, aggregate_type, snapshot, version);`,
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, b := range sqlStmt {
		_, err := tx.Exec(b)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
