package sqlgate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/toolgate/internal/operation"
)

func TestClassifyAccepted(t *testing.T) {
	tests := []struct {
		sql    string
		class  Class
		verb   string
		kind   operation.Kind
		target string
	}{
		{"SELECT * FROM contacts", ClassRead, "SELECT", operation.Find, "contacts"},
		{"select name from Contacts c join ai_tags t on t.cid = c.id", ClassRead, "SELECT", operation.Find, "contacts"},
		{"SELECT 1", ClassRead, "SELECT", operation.Find, ""},
		{"SELECT * FROM main.chats;", ClassRead, "SELECT", operation.Find, "chats"},
		{"VALUES (1), (2)", ClassRead, "VALUES", operation.Find, ""},
		{"EXPLAIN QUERY PLAN SELECT * FROM knowledge", ClassRead, "EXPLAIN", operation.Find, "knowledge"},
		{"PRAGMA table_info(ai_notes)", ClassRead, "PRAGMA", operation.Find, "ai_notes"},
		{"PRAGMA user_version", ClassRead, "PRAGMA", operation.Find, ""},
		{"PRAGMA main.integrity_check", ClassRead, "PRAGMA", operation.Find, ""},
		{"INSERT INTO ai_notes (body) VALUES ('x; DROP TABLE chats')", ClassMutate, "INSERT", operation.InsertMany, "ai_notes"},
		{"INSERT OR REPLACE INTO \"contacts\" VALUES (1)", ClassMutate, "INSERT", operation.InsertMany, "contacts"},
		{"REPLACE INTO contacts VALUES (1)", ClassMutate, "REPLACE", operation.InsertMany, "contacts"},
		{"UPDATE OR IGNORE [Chats] SET title = 'x'", ClassMutate, "UPDATE", operation.UpdateMany, "chats"},
		{"DELETE FROM `ai_log` WHERE id = ?", ClassMutate, "DELETE", operation.DeleteMany, "ai_log"},
		{"-- tidy up\nDELETE /* all */ FROM temp.ai_log", ClassMutate, "DELETE", operation.DeleteMany, "ai_log"},
		{"WITH old AS (SELECT id FROM ai_log) DELETE FROM chats WHERE id IN old", ClassMutate, "DELETE", operation.DeleteMany, "chats"},
		{"WITH RECURSIVE n(x) AS (SELECT 1 UNION ALL SELECT x+1 FROM n WHERE x < 5) SELECT x FROM n", ClassRead, "SELECT", operation.Find, "n"},
		{"CREATE TABLE IF NOT EXISTS ai_notes (id INTEGER PRIMARY KEY)", ClassDDL, "CREATE TABLE", operation.CreateCollection, "ai_notes"},
		{"CREATE TEMP TABLE ai_tmp (x)", ClassDDL, "CREATE TABLE", operation.CreateCollection, "ai_tmp"},
		{"CREATE UNIQUE INDEX IF NOT EXISTS idx_x ON contacts(email)", ClassDDL, "CREATE INDEX", operation.CreateIndex, "contacts"},
		{"ALTER TABLE ai_notes ADD COLUMN tag TEXT", ClassDDL, "ALTER TABLE", operation.CreateCollection, "ai_notes"},
		{"DROP TABLE IF EXISTS ai_notes", ClassDDL, "DROP TABLE", operation.CreateCollection, "ai_notes"},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			stmt, err := Classify(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, tt.class, stmt.Class)
			assert.Equal(t, tt.verb, stmt.Verb)
			assert.Equal(t, tt.kind, stmt.Kind)
			assert.Equal(t, tt.target, stmt.Target)
		})
	}
}

func TestClassifyDropIndexNeedsLookup(t *testing.T) {
	stmt, err := Classify("DROP INDEX IF EXISTS main.idx_contacts")
	require.NoError(t, err)
	assert.Equal(t, "idx_contacts", stmt.Index)
	assert.Empty(t, stmt.Target)
}

func TestClassifyRename(t *testing.T) {
	stmt, err := Classify("ALTER TABLE ai_a RENAME TO Settings")
	require.NoError(t, err)
	assert.Equal(t, "ai_a", stmt.Target)
	assert.Equal(t, "settings", stmt.RenameTo)
}

func TestClassifyRejected(t *testing.T) {
	tests := []struct {
		sql  string
		want error
	}{
		{"", ErrEmptyStatement},
		{" ; ", ErrEmptyStatement},
		{"SELECT 1; DELETE FROM chats", ErrMultipleStatements},
		{"ATTACH DATABASE 'x.db' AS x", ErrUnsupportedStatement},
		{"DETACH x", ErrUnsupportedStatement},
		{"VACUUM", ErrUnsupportedStatement},
		{"REINDEX", ErrUnsupportedStatement},
		{"ANALYZE", ErrUnsupportedStatement},
		{"BEGIN TRANSACTION", ErrUnsupportedStatement},
		{"COMMIT", ErrUnsupportedStatement},
		{"SAVEPOINT a", ErrUnsupportedStatement},
		{"CREATE TRIGGER t AFTER INSERT ON ai_x BEGIN DELETE FROM chats; END", ErrMultipleStatements},
		{"CREATE TRIGGER t AFTER INSERT ON ai_x BEGIN SELECT 1 END", ErrUnsupportedStatement},
		{"CREATE VIEW v AS SELECT 1", ErrUnsupportedStatement},
		{"CREATE VIRTUAL TABLE ai_f USING fts5(x)", ErrUnsupportedStatement},
		{"DROP VIEW v", ErrUnsupportedStatement},
		{"DROP TRIGGER t", ErrUnsupportedStatement},
		{"PRAGMA journal_mode = DELETE", ErrUnsupportedStatement},
		{"PRAGMA writable_schema(1)", ErrUnsupportedStatement},
		{"PRAGMA optimize", ErrUnsupportedStatement},
		{"PRAGMA incremental_vacuum", ErrUnsupportedStatement},
		{"PRAGMA shrink_memory", ErrUnsupportedStatement},
		{"PRAGMA wal_checkpoint", ErrUnsupportedStatement},
		{"INSERT INTO other.ai_x VALUES (1)", ErrUnsupportedStatement},
		{"GRANT ALL", ErrUnsupportedStatement},
		{"SELECT 'unterminated", ErrSyntax},
		{"SELECT 1 /* open", ErrSyntax},
		{"(SELECT 1)", ErrSyntax},
		{"DELETE chats", ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			_, err := Classify(tt.sql)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestSemicolonInsideStringIsNotASeparator(t *testing.T) {
	stmt, err := Classify("SELECT * FROM ai_x WHERE note = 'a;b' -- trailing; comment")
	require.NoError(t, err)
	assert.Equal(t, "ai_x", stmt.Target)
}

func TestTablesInSubqueries(t *testing.T) {
	stmt, err := Classify("SELECT * FROM (SELECT id FROM chats) AS c JOIN messages m ON m.chat = c.id")
	require.NoError(t, err)
	assert.Equal(t, []string{"chats", "messages"}, stmt.Tables)
}
