package vss

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ensureShadow ensures the per-table shadow table, its invalidation triggers
// and the shared vector_storage table exist.
func (t *Table) ensureShadow() error {
	if t.db == nil {
		return fmt.Errorf("vss: db is nil")
	}
	t.shadow = t.qualifiedShadow()
	return ensureShadowTable(t.db, t.shadow, t.shadow)
}

func ensureShadowTable(db *sql.DB, shadow, storageName string) error {
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id        INTEGER PRIMARY KEY,
    embedding BLOB NOT NULL
);
`, shadow)
	if _, err := db.Exec(stmt); err != nil {
		return err
	}
	if err := ensureVectorStorage(db); err != nil {
		return err
	}
	return ensureInvalidationTriggers(db, shadow, storageName)
}

// ensureInvalidationTriggers creates triggers that drop the persisted index
// row and clear the in-process cache on any shadow change. storageName is the
// vector_storage key, which is the qualified shadow name.
func ensureInvalidationTriggers(db *sql.DB, shadow, storageName string) error {
	trigBase := sanitizeName("trg_vss_" + storageName)
	shadowLit := quoteLiteral(storageName)
	del := `DELETE FROM vector_storage WHERE shadow_table_name = ` + shadowLit + `;`
	inv := `SELECT vss_invalidate(` + shadowLit + `);`
	stmtIns := fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_ins AFTER INSERT ON %s BEGIN %s %s END;`, trigBase, shadow, del, inv)
	if _, err := db.Exec(stmtIns); err != nil {
		return err
	}
	stmtUpd := fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_upd AFTER UPDATE ON %s BEGIN %s %s END;`, trigBase, shadow, del, inv)
	if _, err := db.Exec(stmtUpd); err != nil {
		return err
	}
	stmtDel := fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_del AFTER DELETE ON %s BEGIN %s %s END;`, trigBase, shadow, del, inv)
	if _, err := db.Exec(stmtDel); err != nil {
		return err
	}
	return nil
}

// ensureVectorStorage ensures the shared vector_storage table exists.
func ensureVectorStorage(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("vss: db is nil")
	}
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS vector_storage (
    shadow_table_name TEXT NOT NULL,
    "index"           BLOB,
    PRIMARY KEY (shadow_table_name)
)`)
	return err
}

// EnsureShadow creates the shadow table, invalidation triggers and the
// vector_storage table for a vss virtual table without going through the
// module. Write paths use it so an insert can precede the first MATCH scan.
func EnsureShadow(db *sql.DB, virtualTable string) error {
	shadow := ShadowTableName(virtualTable)
	// vector_storage keys use the qualified name the virtual table resolves.
	return ensureShadowTable(db, shadow, "main."+shadow)
}

// Upsert writes one (rowid, embedding blob) pair into a shadow table,
// replacing the embedding when the rowid already exists.
func Upsert(ctx context.Context, db *sql.DB, shadow string, rowid int64, blob []byte) error {
	q := fmt.Sprintf(`INSERT INTO %s(id, embedding) VALUES(?, ?) ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding`, shadow)
	_, err := db.ExecContext(ctx, q, rowid, blob)
	return err
}

// DeleteRows removes the given rowids from a shadow table. Missing rowids are
// a no-op.
func DeleteRows(ctx context.Context, db *sql.DB, shadow string, rowids []int64) error {
	if len(rowids) == 0 {
		return nil
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, shadow)
	for _, rid := range rowids {
		if _, err := db.ExecContext(ctx, q, rid); err != nil {
			return err
		}
	}
	return nil
}

func resolveDbPath(ctx context.Context, db *sql.DB, dbName string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("vss: db is nil")
	}
	rows, err := db.QueryContext(ctx, `SELECT name, file FROM pragma_database_list`)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	for rows.Next() {
		var name, file string
		if err := rows.Scan(&name, &file); err != nil {
			return "", err
		}
		if dbName == "" {
			if name == "main" {
				if file == "" {
					return name, nil
				}
				return file, nil
			}
		} else if name == dbName {
			if file == "" {
				return name, nil
			}
			return file, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if dbName != "" {
		return dbName, nil
	}
	return "main", nil
}

func (t *Table) cachedDbPath(ctx context.Context) string {
	t.dbPathOnce.Do(func() {
		path, err := resolveDbPath(ctx, t.db, t.dbName)
		if err != nil {
			t.dbPathErr = err
			if t.dbName != "" {
				t.dbPath = t.dbName
			} else {
				t.dbPath = "main"
			}
			return
		}
		t.dbPath = path
	})
	return t.dbPath
}

// sanitizeName converts a qualified name into a safe identifier for triggers.
func sanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case '.', '-', ' ':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// quoteLiteral returns SQL string literal with single quotes escaped for safe embedding.
func quoteLiteral(s string) string {
	// Replace ' with '' per SQL string literal rules.
	escaped := strings.ReplaceAll(s, "'", "''")
	return "'" + escaped + "'"
}
