package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/ehrlich-b/scriptbot/internal/ir"
)

// VerifyResult is the outcome of Verify.
type VerifyResult int

const (
	VerifyOK VerifyResult = iota
	VerifyNotFound
	VerifyWrongPassword
)

// Row is a fully materialized UserVariableSet: the reserved columns
// plus every scripted variable, as a dynamic property bag keyed by
// name (spec §9's "map[varName]TypedValue" option).
type Row struct {
	Username string
	Passwd   string
	Vars     map[string]ir.Literal
}

var ErrNotFound = errors.New("store: no such user")

// reservedCols is decoded out of the generic row map via mapstructure
// before the remaining columns are walked against the schema.
type reservedCols struct {
	Username string `mapstructure:"username"`
	Passwd   string `mapstructure:"passwd"`
}

// Lookup returns the row for username, or ErrNotFound if none exists.
func (s *Store) Lookup(ctx context.Context, username string) (*Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(ctx, username)
}

func (s *Store) lookupLocked(ctx context.Context, username string) (*Row, error) {
	names := s.schema.Names()
	cols := make([]string, len(names))
	copy(cols, names)

	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM user_variable WHERE username = ?", joinColumns(cols)), username)

	dest := make([]any, len(cols))
	for i := range dest {
		dest[i] = new(any)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: lookup %s: %w", username, err)
	}

	raw := make(map[string]any, len(cols))
	for i, c := range cols {
		raw[c] = *(dest[i].(*any))
	}

	var fixed reservedCols
	if err := mapstructure.Decode(raw, &fixed); err != nil {
		return nil, fmt.Errorf("store: decode reserved columns: %w", err)
	}

	out := &Row{Username: fixed.Username, Passwd: fixed.Passwd, Vars: make(map[string]ir.Literal)}
	for name, v := range raw {
		if name == ir.ReservedUsername || name == ir.ReservedPasswd {
			continue
		}
		lit, err := s.scanLiteral(name, v)
		if err != nil {
			return nil, err
		}
		out.Vars[name] = lit
	}
	return out, nil
}

func (s *Store) scanLiteral(name string, v any) (ir.Literal, error) {
	vt, ok := s.schema.Type(name)
	if !ok {
		return ir.Literal{}, fmt.Errorf("store: column %s not in schema", name)
	}
	switch vt {
	case ir.VarInt:
		n, err := toInt64(v)
		if err != nil {
			return ir.Literal{}, fmt.Errorf("store: scan $%s as Int: %w", name, err)
		}
		return ir.Literal{Kind: ir.LitInt, Int: n}, nil
	case ir.VarReal:
		f, err := toFloat64(v)
		if err != nil {
			return ir.Literal{}, fmt.Errorf("store: scan $%s as Real: %w", name, err)
		}
		return ir.Literal{Kind: ir.LitReal, Real: f}, nil
	default:
		t, err := toString(v)
		if err != nil {
			return ir.Literal{}, fmt.Errorf("store: scan $%s as Text: %w", name, err)
		}
		return ir.Literal{Kind: ir.LitText, Text: t}, nil
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unexpected type %T", v)
	}
}

// InsertDefault creates a row for username with passwd and every
// scripted variable set to its schema default. Returns ErrConflict if
// username already has a row.
var ErrConflict = errors.New("store: username already registered")

func (s *Store) InsertDefault(ctx context.Context, username, passwd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookupLocked(ctx, username); err == nil {
		return ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.insertRowLocked(ctx, username, passwd)
}

func (s *Store) insertRowLocked(ctx context.Context, username, passwd string) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO user_variable (username, passwd) VALUES (?, ?)", username, passwd)
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", username, err)
	}
	return nil
}

// Verify checks username/passwd against the stored plaintext passwd
// column (spec §4.3; lookup(u).Passwd must equal the password exactly
// as registered, per spec §8 invariant 5).
func (s *Store) Verify(ctx context.Context, username, passwd string) (VerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.lookupLocked(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return VerifyNotFound, nil
	}
	if err != nil {
		return VerifyNotFound, err
	}
	if row.Passwd != passwd {
		return VerifyWrongPassword, nil
	}
	return VerifyOK, nil
}

// Read returns the current value of username's var column.
func (s *Store) Read(ctx context.Context, username, varName string) (ir.Literal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.lookupLocked(ctx, username)
	if err != nil {
		return ir.Literal{}, fmt.Errorf("store: read $%s: %w", varName, err)
	}
	lit, ok := row.Vars[varName]
	if !ok {
		return ir.Literal{}, fmt.Errorf("store: $%s is not a scripted variable", varName)
	}
	return lit, nil
}

// Write applies op (Add|Sub|Set) to username's var column,
// transactionally: the whole read-modify-write happens under the
// store's single lock (spec §4.3/§5), so it is atomic with respect to
// every other Store operation.
func (s *Store) Write(ctx context.Context, username, varName, op string, value ir.Literal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vt, ok := s.schema.Type(varName)
	if !ok {
		return fmt.Errorf("store: write $%s: not a scripted variable", varName)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin write $%s: %w", varName, err)
	}
	defer tx.Rollback()

	next, err := s.nextValueLocked(ctx, tx, username, varName, vt, op, value)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE user_variable SET %s = ? WHERE username = ?", varName), literalParam(next), username); err != nil {
		return fmt.Errorf("store: write $%s: %w", varName, err)
	}
	return tx.Commit()
}

func (s *Store) nextValueLocked(ctx context.Context, tx *sql.Tx, username, varName string, vt ir.VarType, op string, value ir.Literal) (ir.Literal, error) {
	if op == "Set" {
		return value, nil
	}

	var current any
	if err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM user_variable WHERE username = ?", varName), username).Scan(&current); err != nil {
		return ir.Literal{}, fmt.Errorf("store: read current $%s: %w", varName, err)
	}
	cur, err := s.scanLiteral(varName, current)
	if err != nil {
		return ir.Literal{}, err
	}

	switch vt {
	case ir.VarInt:
		delta := value.Int
		if value.Kind == ir.LitReal {
			delta = int64(value.Real)
		}
		if op == "Sub" {
			delta = -delta
		}
		return ir.Literal{Kind: ir.LitInt, Int: cur.Int + delta}, nil
	case ir.VarReal:
		delta := value.Real
		if value.Kind == ir.LitInt {
			delta = float64(value.Int)
		}
		if op == "Sub" {
			delta = -delta
		}
		return ir.Literal{Kind: ir.LitReal, Real: cur.Real + delta}, nil
	default:
		return ir.Literal{}, fmt.Errorf("store: Add/Sub not valid for Text variable $%s", varName)
	}
}

func literalParam(l ir.Literal) any {
	switch l.Kind {
	case ir.LitInt:
		return l.Int
	case ir.LitReal:
		return l.Real
	default:
		return l.Text
	}
}
