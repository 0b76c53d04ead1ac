package model

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"
)

// Amount is a signed 128-bit token amount. It is carried as a string in
// JSON and stored as NUMERIC in Postgres so no precision is lost on the
// way through the stack.
type Amount struct {
	v big.Int
}

func NewAmount(v int64) *Amount {
	a := &Amount{}
	a.v.SetInt64(v)
	return a
}

func NewAmountFromBig(v *big.Int) *Amount {
	a := &Amount{}
	if v != nil {
		a.v.Set(v)
	}
	return a
}

func ParseAmount(s string) (*Amount, error) {
	a := &Amount{}
	if _, ok := a.v.SetString(strings.TrimSpace(s), 10); !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return a, nil
}

// Big returns the underlying integer. Callers must not mutate it.
func (a *Amount) Big() *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return &a.v
}

func (a *Amount) Clone() *Amount {
	return NewAmountFromBig(a.Big())
}

func (a *Amount) Sign() int {
	return a.Big().Sign()
}

func (a *Amount) Cmp(b *Amount) int {
	return a.Big().Cmp(b.Big())
}

func (a *Amount) Int64() int64 {
	return a.Big().Int64()
}

func (a *Amount) String() string {
	return a.Big().String()
}

func (a *Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		a.v.SetInt64(0)
		return nil
	}
	if _, ok := a.v.SetString(s, 10); !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	return nil
}

// Value implements driver.Valuer for NUMERIC columns.
func (a *Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		a.v.SetInt64(0)
		return nil
	case int64:
		a.v.SetInt64(v)
		return nil
	case []byte:
		return a.scanString(string(v))
	case string:
		return a.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
}

func (a *Amount) scanString(s string) error {
	// NUMERIC(40,0) may come back with a trailing ".0" from some drivers
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	if _, ok := a.v.SetString(s, 10); !ok {
		return fmt.Errorf("cannot scan %q into Amount", s)
	}
	return nil
}

// GormDataType tells gorm which column type to use.
func (a *Amount) GormDataType() string {
	return "numeric(40,0)"
}
