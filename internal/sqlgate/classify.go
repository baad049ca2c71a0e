// Package sqlgate executes model-supplied SQL against the relational store.
//
// Statements are tokenised and parsed into a Statement before any access
// decision is made: the verb and the written table come from the statement
// structure, never from substring matching. Anything the parser does not
// positively recognise is rejected.
package sqlgate

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/roelfdiedericks/toolgate/internal/operation"
)

var (
	ErrEmptyStatement       = errors.New("empty statement")
	ErrMultipleStatements   = errors.New("only one statement per call is allowed")
	ErrUnsupportedStatement = errors.New("statement not allowed")
	ErrSyntax               = errors.New("cannot parse statement")
)

// Class groups statements by effect.
type Class int

const (
	ClassRead Class = iota + 1
	ClassMutate
	ClassDDL
)

func (c Class) String() string {
	switch c {
	case ClassRead:
		return "read"
	case ClassMutate:
		return "mutate"
	case ClassDDL:
		return "ddl"
	}
	return "unknown"
}

// Statement is a classified SQL statement.
type Statement struct {
	Class Class
	// Verb is the main verb in upper case, e.g. "INSERT" or "CREATE INDEX".
	Verb string
	// Kind is the equivalent store operation used for the policy decision.
	Kind operation.Kind
	// Target is the written table for mutations and DDL, or the first table
	// referenced by a read. Lower-cased, schema prefix removed.
	Target string
	// Tables lists every table a read references.
	Tables []string
	// Index is set for DROP INDEX, whose table must be looked up.
	Index string
	// RenameTo is the new name of an ALTER TABLE ... RENAME TO.
	RenameTo string
	// SQL is the statement text as given.
	SQL string
}

// read pragmas that take an argument
var readPragmas = map[string]bool{
	"table_info":       true,
	"table_xinfo":      true,
	"table_list":       true,
	"index_list":       true,
	"index_info":       true,
	"index_xinfo":      true,
	"foreign_key_list": true,
}

// bare pragmas that only report state; optimize, incremental_vacuum,
// shrink_memory and friends have side effects and are refused
var bareReadPragmas = map[string]bool{
	"table_list":        true,
	"database_list":     true,
	"collation_list":    true,
	"function_list":     true,
	"module_list":       true,
	"pragma_list":       true,
	"compile_options":   true,
	"user_version":      true,
	"schema_version":    true,
	"application_id":    true,
	"data_version":      true,
	"page_count":        true,
	"page_size":         true,
	"freelist_count":    true,
	"encoding":          true,
	"foreign_keys":      true,
	"foreign_key_check": true,
	"integrity_check":   true,
	"quick_check":       true,
}

var rejectedVerbs = map[string]string{
	"ATTACH":    "attaching databases",
	"DETACH":    "detaching databases",
	"VACUUM":    "VACUUM",
	"REINDEX":   "REINDEX",
	"ANALYZE":   "ANALYZE",
	"BEGIN":     "transaction control",
	"COMMIT":    "transaction control",
	"END":       "transaction control",
	"ROLLBACK":  "transaction control",
	"SAVEPOINT": "transaction control",
	"RELEASE":   "transaction control",
}

// Classify parses a single SQL statement.
func Classify(sql string) (Statement, error) {
	toks, err := tokenize(sql)
	if err != nil {
		return Statement{}, err
	}
	toks, err = single(toks)
	if err != nil {
		return Statement{}, err
	}

	p := &parser{toks: toks}
	stmt, err := p.statement()
	if err != nil {
		return Statement{}, err
	}
	stmt.SQL = strings.TrimSpace(sql)
	return stmt, nil
}

// single drops trailing semicolons and rejects a second statement.
func single(toks []token) ([]token, error) {
	end := len(toks)
	for end > 0 && toks[end-1].is(";") {
		end--
	}
	toks = toks[:end]
	if len(toks) == 0 {
		return nil, ErrEmptyStatement
	}
	for _, t := range toks {
		if t.is(";") {
			return nil, ErrMultipleStatements
		}
	}
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	if p.pos >= len(p.toks) {
		return token{}
	}
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

// accept consumes the next token when it is one of the given keywords.
func (p *parser) accept(words ...string) bool {
	t := p.peek()
	for _, w := range words {
		if t.keyword(w) {
			p.pos++
			return true
		}
	}
	return false
}

func (p *parser) statement() (Statement, error) {
	first := p.peek()
	if first.kind != tokWord {
		return Statement{}, fmt.Errorf("%w: expected a keyword, found %q", ErrSyntax, first.text)
	}

	if first.keyword("WITH") {
		if err := p.skipWith(); err != nil {
			return Statement{}, err
		}
		first = p.peek()
	}

	verb := strings.ToUpper(first.text)
	if why, ok := rejectedVerbs[verb]; ok {
		return Statement{}, fmt.Errorf("%w: %s is not permitted", ErrUnsupportedStatement, why)
	}

	switch verb {
	case "SELECT", "VALUES":
		return p.read(verb), nil
	case "EXPLAIN":
		return p.read(verb), nil
	case "PRAGMA":
		return p.pragma()
	case "INSERT", "REPLACE":
		return p.insert(verb)
	case "UPDATE":
		return p.update()
	case "DELETE":
		return p.delete()
	case "CREATE":
		return p.create()
	case "ALTER":
		return p.alter()
	case "DROP":
		return p.drop()
	}
	return Statement{}, fmt.Errorf("%w: unknown verb %s", ErrUnsupportedStatement, verb)
}

// skipWith moves past a WITH clause to the main verb.
func (p *parser) skipWith() error {
	p.next()
	p.accept("RECURSIVE")
	depth := 0
	var prev token
	for p.pos < len(p.toks) {
		t := p.peek()
		switch {
		case t.is("("):
			depth++
		case t.is(")"):
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unbalanced parentheses", ErrSyntax)
			}
		case depth == 0 && prev.is(")") && t.kind == tokWord && !t.keyword("AS"):
			return nil
		}
		prev = t
		p.pos++
	}
	return fmt.Errorf("%w: WITH clause has no main statement", ErrSyntax)
}

func (p *parser) read(verb string) Statement {
	tables := referencedTables(p.toks[p.pos:])
	stmt := Statement{Class: ClassRead, Verb: verb, Kind: operation.Find, Tables: tables}
	if len(tables) > 0 {
		stmt.Target = tables[0]
	}
	return stmt
}

func (p *parser) pragma() (Statement, error) {
	p.next()
	nameTok := p.next()
	if nameTok.kind != tokWord && nameTok.kind != tokQuoted {
		return Statement{}, fmt.Errorf("%w: PRAGMA needs a name", ErrSyntax)
	}
	name := nameTok.ident()
	if p.peek().is(".") {
		p.next()
		name = p.next().ident()
	}
	name = strings.ToLower(name)

	stmt := Statement{Class: ClassRead, Verb: "PRAGMA", Kind: operation.Find}
	switch t := p.peek(); {
	case t.kind == tokEOF:
		if !bareReadPragmas[name] {
			return Statement{}, fmt.Errorf("%w: PRAGMA %s is not permitted", ErrUnsupportedStatement, name)
		}
		return stmt, nil
	case t.is("="):
		return Statement{}, fmt.Errorf("%w: PRAGMA assignments are not permitted", ErrUnsupportedStatement)
	case t.is("("):
		if !readPragmas[name] {
			return Statement{}, fmt.Errorf("%w: PRAGMA %s with an argument is not permitted", ErrUnsupportedStatement, name)
		}
		p.next()
		arg := p.next()
		if arg.kind == tokWord || arg.kind == tokQuoted || arg.kind == tokString {
			stmt.Target = strings.ToLower(arg.ident())
			stmt.Tables = []string{stmt.Target}
		}
		return stmt, nil
	}
	return Statement{}, fmt.Errorf("%w: unexpected %q after PRAGMA %s", ErrSyntax, p.peek().text, name)
}

func (p *parser) insert(verb string) (Statement, error) {
	p.next()
	if verb == "INSERT" && p.accept("OR") {
		p.next()
	}
	if !p.accept("INTO") {
		return Statement{}, fmt.Errorf("%w: expected INTO after %s", ErrSyntax, verb)
	}
	target, err := p.tableName()
	if err != nil {
		return Statement{}, err
	}
	return Statement{Class: ClassMutate, Verb: verb, Kind: operation.InsertMany, Target: target}, nil
}

func (p *parser) update() (Statement, error) {
	p.next()
	if p.accept("OR") {
		p.next()
	}
	target, err := p.tableName()
	if err != nil {
		return Statement{}, err
	}
	return Statement{Class: ClassMutate, Verb: "UPDATE", Kind: operation.UpdateMany, Target: target}, nil
}

func (p *parser) delete() (Statement, error) {
	p.next()
	if !p.accept("FROM") {
		return Statement{}, fmt.Errorf("%w: expected FROM after DELETE", ErrSyntax)
	}
	target, err := p.tableName()
	if err != nil {
		return Statement{}, err
	}
	return Statement{Class: ClassMutate, Verb: "DELETE", Kind: operation.DeleteMany, Target: target}, nil
}

func (p *parser) create() (Statement, error) {
	p.next()
	p.accept("TEMP", "TEMPORARY")
	unique := p.accept("UNIQUE")

	switch {
	case p.accept("TABLE"):
		if unique {
			return Statement{}, fmt.Errorf("%w: UNIQUE TABLE", ErrSyntax)
		}
		p.ifExists("NOT")
		target, err := p.tableName()
		if err != nil {
			return Statement{}, err
		}
		return Statement{Class: ClassDDL, Verb: "CREATE TABLE", Kind: operation.CreateCollection, Target: target}, nil

	case p.accept("INDEX"):
		p.ifExists("NOT")
		if _, err := p.tableName(); err != nil {
			return Statement{}, err
		}
		if !p.accept("ON") {
			return Statement{}, fmt.Errorf("%w: expected ON in CREATE INDEX", ErrSyntax)
		}
		target, err := p.tableName()
		if err != nil {
			return Statement{}, err
		}
		return Statement{Class: ClassDDL, Verb: "CREATE INDEX", Kind: operation.CreateIndex, Target: target}, nil
	}

	what := strings.ToUpper(p.peek().text)
	return Statement{}, fmt.Errorf("%w: CREATE %s is not permitted", ErrUnsupportedStatement, what)
}

func (p *parser) alter() (Statement, error) {
	p.next()
	if !p.accept("TABLE") {
		return Statement{}, fmt.Errorf("%w: only ALTER TABLE is permitted", ErrUnsupportedStatement)
	}
	target, err := p.tableName()
	if err != nil {
		return Statement{}, err
	}
	stmt := Statement{Class: ClassDDL, Verb: "ALTER TABLE", Kind: operation.CreateCollection, Target: target}
	if p.accept("RENAME") && p.accept("TO") {
		if stmt.RenameTo, err = p.tableName(); err != nil {
			return Statement{}, err
		}
	}
	return stmt, nil
}

func (p *parser) drop() (Statement, error) {
	p.next()
	switch {
	case p.accept("TABLE"):
		p.ifExists("")
		target, err := p.tableName()
		if err != nil {
			return Statement{}, err
		}
		return Statement{Class: ClassDDL, Verb: "DROP TABLE", Kind: operation.CreateCollection, Target: target}, nil
	case p.accept("INDEX"):
		p.ifExists("")
		index, err := p.tableName()
		if err != nil {
			return Statement{}, err
		}
		return Statement{Class: ClassDDL, Verb: "DROP INDEX", Kind: operation.CreateIndex, Index: index}, nil
	}
	what := strings.ToUpper(p.peek().text)
	return Statement{}, fmt.Errorf("%w: DROP %s is not permitted", ErrUnsupportedStatement, what)
}

// ifExists consumes "IF [NOT] EXISTS".
func (p *parser) ifExists(not string) {
	if !p.peek().keyword("IF") {
		return
	}
	p.next()
	if not != "" {
		p.accept(not)
	}
	p.accept("EXISTS")
}

// tableName reads [schema.]name and returns the bare lower-cased name.
func (p *parser) tableName() (string, error) {
	t := p.next()
	if t.kind != tokWord && t.kind != tokQuoted {
		return "", fmt.Errorf("%w: expected a table name, found %q", ErrSyntax, t.text)
	}
	name := t.ident()
	if p.peek().is(".") {
		p.next()
		switch strings.ToLower(name) {
		case "main", "temp":
		default:
			return "", fmt.Errorf("%w: schema %q is not available", ErrUnsupportedStatement, name)
		}
		t = p.next()
		if t.kind != tokWord && t.kind != tokQuoted {
			return "", fmt.Errorf("%w: expected a table name after schema", ErrSyntax)
		}
		name = t.ident()
	}
	return strings.ToLower(name), nil
}

// referencedTables collects the names following FROM and JOIN. Subqueries
// are walked as part of the same token stream.
func referencedTables(toks []token) []string {
	var out []string
	seen := map[string]bool{}
	for i := 0; i < len(toks)-1; i++ {
		if !toks[i].keyword("FROM") && !toks[i].keyword("JOIN") {
			continue
		}
		t := toks[i+1]
		if t.kind != tokWord && t.kind != tokQuoted {
			continue
		}
		name := t.ident()
		if i+3 < len(toks) && toks[i+2].is(".") {
			name = toks[i+3].ident()
		}
		name = strings.ToLower(name)
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokWord
	tokQuoted
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokKind
	text string
}

func (t token) is(punct string) bool {
	return t.kind == tokPunct && t.text == punct
}

func (t token) keyword(w string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, w)
}

// ident returns the identifier value with quoting removed.
func (t token) ident() string {
	return t.text
}

func tokenize(sql string) ([]token, error) {
	var toks []token
	rs := []rune(sql)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '-' && i+1 < len(rs) && rs[i+1] == '-':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}

		case r == '/' && i+1 < len(rs) && rs[i+1] == '*':
			end := indexFrom(rs, i+2, "*/")
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated comment", ErrSyntax)
			}
			i = end + 2

		case r == '\'':
			text, next, err := quoted(rs, i, '\'')
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: text})
			i = next

		case r == '"' || r == '`':
			text, next, err := quoted(rs, i, r)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokQuoted, text: text})
			i = next

		case r == '[':
			end := indexFrom(rs, i+1, "]")
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated identifier", ErrSyntax)
			}
			toks = append(toks, token{kind: tokQuoted, text: string(rs[i+1 : end])})
			i = end + 1

		case r == '_' || unicode.IsLetter(r):
			j := i
			for j < len(rs) && (rs[j] == '_' || rs[j] == '$' || unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j])) {
				j++
			}
			toks = append(toks, token{kind: tokWord, text: string(rs[i:j])})
			i = j

		case unicode.IsDigit(r):
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.' || unicode.IsLetter(rs[j])) {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: string(rs[i:j])})
			i = j

		default:
			toks = append(toks, token{kind: tokPunct, text: string(r)})
			i++
		}
	}
	return toks, nil
}

// quoted reads a quoted run starting at rs[start], where doubling the quote
// escapes it.
func quoted(rs []rune, start int, q rune) (string, int, error) {
	var b strings.Builder
	for i := start + 1; i < len(rs); i++ {
		if rs[i] != q {
			b.WriteRune(rs[i])
			continue
		}
		if i+1 < len(rs) && rs[i+1] == q {
			b.WriteRune(q)
			i++
			continue
		}
		return b.String(), i + 1, nil
	}
	return "", 0, fmt.Errorf("%w: unterminated quoted text", ErrSyntax)
}

func indexFrom(rs []rune, from int, sub string) int {
	idx := strings.Index(string(rs[from:]), sub)
	if idx < 0 {
		return -1
	}
	return from + len([]rune(string(rs[from:])[:idx]))
}
