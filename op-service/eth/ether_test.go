package eth

import (
	"fmt"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEther(t *testing.T) {
	for _, tt := range []struct {
		in  string
		wei string
		err error
	}{
		{in: "1", wei: "1000000000000000000"},
		{in: "0.05", wei: "50000000000000000"},
		{in: "1e-2", wei: "10000000000000000"},
		{in: "1.5E1", wei: "15000000000000000000"},
		{in: " 2 ", wei: "2000000000000000000"},
		{in: ".5", wei: "500000000000000000"},
		{in: "3.", wei: "3000000000000000000"},
		{in: "+0.1", wei: "100000000000000000"},
		{in: "0", wei: "0"},
		{in: "0.000000000000000001", wei: "1"},
		{in: "0.0000000000000000001", err: ErrSubWei},
		{in: "-1", err: ErrNegative},
		{in: "abc", err: ErrNotDecimal},
		{in: "", err: ErrNotDecimal},
		{in: "NaN", err: ErrNotDecimal},
		{in: "Infinity", err: ErrNotDecimal},
		{in: "1/2", err: ErrNotDecimal},
		{in: "0x10", err: ErrNotDecimal},
		{in: "1e99999", err: ErrNotDecimal},
		{in: "1e100", err: ErrWeiOverflow},
	} {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseEther(tt.in)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wei, v.Decimal())
		})
	}
}

func TestParseWeiRatKeepsFractions(t *testing.T) {
	wei, err := ParseWeiRat("1e-30")
	require.NoError(t, err)
	require.False(t, wei.IsInt())
	require.Negative(t, wei.Cmp(OneWei.Rat()))
	_, err = ExactWei(wei)
	require.ErrorIs(t, err, ErrSubWei)

	wei, err = ParseWeiRat("0.5")
	require.NoError(t, err)
	v, err := ExactWei(wei)
	require.NoError(t, err)
	require.Equal(t, "500000000000000000", v.Decimal())
}

func TestGweiToWei(t *testing.T) {
	wei, err := GweiToWei(1.5)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_500_000_000), wei)

	wei, err = GweiToWei(0.000000001)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1), wei)

	for _, v := range []float64{math.NaN(), math.Inf(1), -1, 1e80} {
		_, err := GweiToWei(v)
		require.Error(t, err, "%v", v)
	}
}

func TestEther(t *testing.T) {
	t.Run("constants", func(t *testing.T) {
		require.Equal(t, OneGWei.ToBig(), new(big.Int).SetUint64(1e9))
		require.Equal(t, TenEther, Ether(10))
		require.Equal(t, "0.01", OneHundredth.EtherString())
		require.Equal(t, "0.001", OneThousandth.EtherString())
	})

	t.Run("string", func(t *testing.T) {
		require.Equal(t, "0 ETH", ZeroWei.String())
		require.Equal(t, "1 ETH", OneEther.String())
		require.Equal(t, "1.5 ETH", OneEther.Add(GWei(500_000_000)).String())
		require.Equal(t, "0.000000000000000001 ETH", OneWei.String())
		require.Equal(t, "1.5 ETH", fmt.Sprintf("%v", OneEther.Add(GWei(500_000_000))))
		require.Equal(t, "1000000000", fmt.Sprintf("%d", OneGWei))
	})

	t.Run("ether string", func(t *testing.T) {
		require.Equal(t, "0.000000001", OneGWei.EtherString())
		require.Equal(t, "1.000000001", OneEther.Add(OneGWei).EtherString())
		require.Equal(t, "100.000000001", Ether(100).Add(OneGWei).EtherString())
	})

	t.Run("arithmetic", func(t *testing.T) {
		require.Equal(t, Ether(4), OneEther.Add(Ether(3)))
		require.Equal(t, "2999999999999999999", Ether(3).Sub(OneWei).Decimal())
		require.Panics(t, func() {
			MaxU256Wei.Add(OneWei)
		})
		require.Panics(t, func() {
			ZeroWei.Sub(OneWei)
		})
	})

	t.Run("compare", func(t *testing.T) {
		require.True(t, WeiU64(123).Lt(WeiU64(124)))
		require.False(t, WeiU64(124).Lt(WeiU64(124)))
		require.True(t, WeiU64(125).Gt(WeiU64(124)))
		require.Equal(t, 0, OneEther.Cmp(GWei(1e9)))
		require.Equal(t, -1, OneWei.Cmp(OneGWei))
		require.True(t, ZeroWei.IsZero())
		require.False(t, OneWei.IsZero())
	})

	t.Run("convert", func(t *testing.T) {
		require.Equal(t, "123", WeiU64(123).ToBig().String())
		require.Equal(t, "123", WeiU64(123).ToU256().Dec())
		require.Equal(t, MaxU256Wei, WeiBig(MaxU256Wei.ToBig()))
		require.InDelta(t, 0.05, GWei(50_000_000).EtherFloat(), 1e-12)
		require.Panics(t, func() {
			WeiBig(nil)
		})
		require.Panics(t, func() {
			WeiBig(big.NewInt(-1))
		})
		require.Panics(t, func() {
			WeiBig(new(big.Int).Lsh(big.NewInt(1), 256))
		})
	})

	t.Run("text", func(t *testing.T) {
		var x ETH
		require.NoError(t, x.UnmarshalText([]byte("1234")))
		require.Equal(t, "1234", x.Decimal())
		data, err := OneEther.MarshalText()
		require.NoError(t, err)
		require.Equal(t, "1000000000000000000", string(data))
	})
}
