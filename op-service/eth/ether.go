package eth

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"

	"github.com/holiman/uint256"

	"github.com/ethereum/go-ethereum/params"
)

var (
	MaxU256Wei    = ETH(uint256.Int{0: ^uint64(0), 1: ^uint64(0), 2: ^uint64(0), 3: ^uint64(0)})
	TenEther      = Ether(10)
	OneEther      = Ether(1)
	OneHundredth  = GWei(10_000_000)
	OneThousandth = GWei(1_000_000)
	OneGWei       = GWei(1)
	OneWei        = WeiU64(1)
	ZeroWei       = WeiU64(0)
)

var (
	weiPerGWei = uint256.NewInt(params.GWei)
	weiPerEth  = uint256.NewInt(params.Ether)

	// plain decimal, optionally signed, with an optional bounded exponent
	decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d{1,4})?$`)

	ErrNotDecimal  = errors.New("not a decimal number")
	ErrNegative    = errors.New("negative amount")
	ErrSubWei      = errors.New("amount is more precise than 1 wei")
	ErrWeiOverflow = errors.New("amount does not fit in 256 bits of wei")
)

// GweiToWei converts a float amount of gwei, as given on the command line, into wei.
func GweiToWei(gwei float64) (*big.Int, error) {
	if math.IsNaN(gwei) || math.IsInf(gwei, 0) || gwei < 0 {
		return nil, fmt.Errorf("invalid gwei value: %v", gwei)
	}
	wei, _ := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(params.GWei)).Int(nil)
	if wei.BitLen() > 256 {
		return nil, errors.New("gwei value larger than max uint256")
	}
	return wei, nil
}

// ETH is an amount of ether, expressed in number of wei.
// Values are passed flat and never mutated in place.
type ETH uint256.Int

// ParseEther converts a human decimal amount of ether, e.g. "0.05" or "1e-2",
// into an exact amount of wei.
func ParseEther(s string) (ETH, error) {
	wei, err := ParseWeiRat(s)
	if err != nil {
		return ZeroWei, err
	}
	out, err := ExactWei(wei)
	if err != nil {
		return ZeroWei, fmt.Errorf("%w: %q", err, s)
	}
	return out, nil
}

// ParseWeiRat parses a human decimal amount of ether into its exact, possibly fractional, value in wei.
func ParseWeiRat(s string) (*big.Rat, error) {
	s = strings.TrimSpace(s)
	if !decimalPattern.MatchString(s) {
		return nil, fmt.Errorf("%w: %q", ErrNotDecimal, s)
	}
	r, ok := new(big.Rat).SetString(normalizeDecimal(s))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotDecimal, s)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNegative, s)
	}
	return r.Mul(r, new(big.Rat).SetInt(weiPerEth.ToBig())), nil
}

// ExactWei converts a non-negative rational amount of wei into ETH, failing on fractions of a wei.
func ExactWei(wei *big.Rat) (ETH, error) {
	if !wei.IsInt() {
		return ZeroWei, ErrSubWei
	}
	var out ETH
	if (*uint256.Int)(&out).SetFromBig(wei.Num()) {
		return ZeroWei, ErrWeiOverflow
	}
	return out, nil
}

// Rat returns the amount, in wei, as an exact rational.
func (e ETH) Rat() *big.Rat {
	return new(big.Rat).SetInt(e.ToBig())
}

// normalizeDecimal fills in the digits around a bare decimal point, "1." and ".5".
func normalizeDecimal(s string) string {
	mantissa, exp := s, ""
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		mantissa, exp = s[:i], s[i:]
	}
	sign := ""
	if mantissa[0] == '+' || mantissa[0] == '-' {
		sign, mantissa = mantissa[:1], mantissa[1:]
	}
	if strings.HasPrefix(mantissa, ".") {
		mantissa = "0" + mantissa
	}
	if strings.HasSuffix(mantissa, ".") {
		mantissa += "0"
	}
	return sign + mantissa + exp
}

// String prints the amount in ether units with the unit suffix, e.g. "1.5 ETH".
func (e ETH) String() string {
	return e.EtherString() + " ETH"
}

// Decimal returns the amount, in wei, in decimal form.
func (e ETH) Decimal() string {
	return (*uint256.Int)(&e).Dec()
}

// Format implements fmt.Formatter
func (e ETH) Format(s fmt.State, ch rune) {
	switch ch {
	case 's', 'v':
		_, _ = fmt.Fprint(s, e.String())
	default:
		(*uint256.Int)(&e).Format(s, ch)
	}
}

// WeiFloat returns the amount as floating point number, in wei (approximate).
func (e ETH) WeiFloat() float64 {
	return (*uint256.Int)(&e).Float64()
}

// EtherFloat returns the amount in ether units (approximate), for metrics.
func (e ETH) EtherFloat() float64 {
	f, _ := new(big.Rat).SetFrac(e.ToBig(), weiPerEth.ToBig()).Float64()
	return f
}

// EtherString returns the amount forced in ether units, without unit suffix or trailing zeroes.
func (e ETH) EtherString() string {
	var ethers uint256.Int
	var remainder uint256.Int
	ethers.DivMod((*uint256.Int)(&e), weiPerEth, &remainder)
	if remainder.Sign() == 0 {
		return ethers.Dec()
	}
	suffix := strings.TrimRight(fmt.Sprintf("%018d", &remainder), "0")
	return ethers.Dec() + "." + suffix
}

// ToBig converts to *big.Int, in wei.
func (e ETH) ToBig() *big.Int {
	return (*uint256.Int)(&e).ToBig()
}

// ToU256 converts to *uint256.Int, in wei. The result is a clone.
func (e ETH) ToU256() *uint256.Int {
	return (*uint256.Int)(&e).Clone()
}

// Add adds v and returns the result.
// Add panics if the computation overflows uint256.
func (e ETH) Add(v ETH) (out ETH) {
	if _, overflow := (*uint256.Int)(&out).AddOverflow((*uint256.Int)(&e), (*uint256.Int)(&v)); overflow {
		panic(fmt.Errorf("add overflow: %s + %s", e.Decimal(), v.Decimal()))
	}
	return
}

// Sub subtracts v and returns the result.
// Sub panics if the computation underflows.
func (e ETH) Sub(v ETH) (out ETH) {
	if _, underflow := (*uint256.Int)(&out).SubOverflow((*uint256.Int)(&e), (*uint256.Int)(&v)); underflow {
		panic(fmt.Errorf("sub underflow: %s - %s", e.Decimal(), v.Decimal()))
	}
	return
}

// Cmp compares e and v and returns -1, 0 or +1.
func (e ETH) Cmp(v ETH) int {
	return (*uint256.Int)(&e).Cmp((*uint256.Int)(&v))
}

func (e ETH) Lt(v ETH) bool {
	return (*uint256.Int)(&e).Lt((*uint256.Int)(&v))
}

func (e ETH) Gt(v ETH) bool {
	return (*uint256.Int)(&e).Gt((*uint256.Int)(&v))
}

func (e ETH) IsZero() bool {
	return (*uint256.Int)(&e).IsZero()
}

// MarshalText marshals as decimal number of wei.
func (e ETH) MarshalText() ([]byte, error) {
	return (*uint256.Int)(&e).MarshalText()
}

// UnmarshalText supports hexadecimal (0x prefix) and decimal wei.
func (e *ETH) UnmarshalText(data []byte) error {
	return (*uint256.Int)(e).UnmarshalText(data)
}

// WeiBig turns the given big.Int amount of wei into ETH-typed wei.
// This panics if the amount does not fit in 256 bits, or if it is negative.
func WeiBig(wei *big.Int) (out ETH) {
	if wei == nil {
		panic("nil *big.Int input to ETH constructor")
	}
	if wei.Sign() < 0 {
		panic("negative amounts are not supported")
	}
	if (*uint256.Int)(&out).SetFromBig(wei) {
		panic("*big.Int input does not fit in uint256")
	}
	return
}

// WeiU64 turns the given uint64 amount of wei into ETH-typed wei.
func WeiU64(wei uint64) (out ETH) {
	(*uint256.Int)(&out).SetUint64(wei)
	return
}

// GWei turns the given amount of GWei into ETH-typed wei.
func GWei(gwei uint64) (out ETH) {
	var x uint256.Int
	x.SetUint64(gwei)
	x.Mul(&x, weiPerGWei)
	return ETH(x)
}

// Ether turns the given amount of ether into ETH-typed wei.
func Ether(ether uint64) ETH {
	var x uint256.Int
	x.SetUint64(ether)
	x.Mul(&x, weiPerEth)
	return ETH(x)
}
