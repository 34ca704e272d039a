package amount

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals é a quantidade de casas decimais de um token (1 token = 10^18 attos)
const Decimals = 18

var (
	ErrNegative  = errors.New("amount: negative value")
	ErrPrecision = errors.New("amount: too many decimal places")
	ErrOverflow  = errors.New("amount: value exceeds 128 bits")
	ErrSyntax    = errors.New("amount: invalid syntax")
)

var (
	max128     = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)
	attosPerTk = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(Decimals))
)

// Amount é um inteiro não negativo de 128 bits em attos.
// Todas as operações saturam: nunca estoura e nunca fica negativo.
type Amount struct {
	v uint256.Int
}

var Zero = Amount{}

// Max é o maior valor representável (2^128 - 1 attos)
var Max = Amount{v: *max128}

func FromAttos(attos uint64) Amount {
	var a Amount
	a.v.SetUint64(attos)
	return a
}

// FromTokens converte unidades inteiras de token para attos (saturando)
func FromTokens(tokens uint64) Amount {
	var a Amount
	a.v.Mul(uint256.NewInt(tokens), attosPerTk)
	return a.clamp()
}

// ParseAttos interpreta um inteiro decimal em attos (formato usado no banco)
func ParseAttos(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return Zero, ErrNegative
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if v.Gt(max128) {
		return Zero, ErrOverflow
	}
	return Amount{v: *v}, nil
}

// ParseAmount interpreta um decimal em tokens, ex: "12.5"
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if d.IsNegative() {
		return Zero, ErrNegative
	}
	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return Zero, ErrPrecision
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow || v.Gt(max128) {
		return Zero, ErrOverflow
	}
	return Amount{v: *v}, nil
}

func (a Amount) IsZero() bool { return a.v.IsZero() }

// Cmp retorna -1, 0 ou +1
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) Equal(b Amount) bool { return a.v.Eq(&b.v) }

func (a Amount) SaturatingAdd(b Amount) Amount {
	var out Amount
	out.v.Add(&a.v, &b.v) // ambos < 2^128, a soma cabe em 256 bits
	return out.clamp()
}

func (a Amount) SaturatingSub(b Amount) Amount {
	if a.v.Lt(&b.v) {
		return Zero
	}
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out
}

// MulDiv calcula floor(a * num / den) com produto intermediário de 256 bits.
// den == 0 retorna Zero.
func (a Amount) MulDiv(num, den Amount) Amount {
	if den.IsZero() {
		return Zero
	}
	var out Amount
	out.v.Mul(&a.v, &num.v)
	out.v.Div(&out.v, &den.v)
	return out.clamp()
}

// Attos retorna o valor inteiro em attos
func (a Amount) Attos() string { return a.v.Dec() }

// String retorna o valor em tokens, ex: "12.5"
func (a Amount) String() string {
	return decimal.NewFromBigInt(a.v.ToBig(), -Decimals).String()
}

func (a Amount) clamp() Amount {
	if a.v.Gt(max128) {
		return Max
	}
	return a
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// aceita número JSON também
		s = string(b)
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Value grava como NUMERIC em attos
func (a Amount) Value() (driver.Value, error) {
	return a.Attos(), nil
}

func (a *Amount) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*a = Zero
		return nil
	case []byte:
		s = string(v)
	case string:
		s = v
	case int64:
		if v < 0 {
			return ErrNegative
		}
		*a = FromAttos(uint64(v))
		return nil
	default:
		return fmt.Errorf("amount: cannot scan %T", src)
	}
	// NUMERIC pode vir com parte fracionária zerada ("100.0")
	if i := strings.IndexByte(s, '.'); i >= 0 && strings.Trim(s[i+1:], "0") == "" {
		s = s[:i]
	}
	v, err := ParseAttos(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
