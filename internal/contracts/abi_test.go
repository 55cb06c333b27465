package contracts

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSelectors(t *testing.T) {
	tests := []struct {
		name string
		sel  []byte
		want string
	}{
		{"approve", SelectorApprove, "095ea7b3"},
		{"balanceOf", SelectorBalanceOf, "70a08231"},
		{"allowance", SelectorAllowance, "dd62ed3e"},
		{"mint", SelectorMint, "40c10f19"},
		{"swapExactETHForTokens", SelectorSwapExactETHForTokens, "7ff36ab5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hex.EncodeToString(tt.sel); got != tt.want {
				t.Errorf("selector = %s, want %s", got, tt.want)
			}
		})
	}
	if len(SelectorDeposit) != 4 {
		t.Errorf("deposit selector length = %d", len(SelectorDeposit))
	}
}

func TestMaxUint256(t *testing.T) {
	if MaxUint256.BitLen() != 256 {
		t.Errorf("BitLen = %d, want 256", MaxUint256.BitLen())
	}
	if new(big.Int).Add(MaxUint256, big.NewInt(1)).BitLen() != 257 {
		t.Error("MaxUint256 + 1 should overflow 256 bits")
	}
}

func TestEncodeMint(t *testing.T) {
	to := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	amount := big.NewInt(2_000_000_000)

	data := EncodeMint(to, amount)
	if len(data) != 68 {
		t.Fatalf("len = %d, want 68", len(data))
	}
	if !bytes.Equal(data[:4], SelectorMint) {
		t.Error("wrong selector")
	}
	if common.BytesToAddress(data[4:36]) != to {
		t.Error("wrong recipient")
	}
	if new(big.Int).SetBytes(data[36:68]).Cmp(amount) != 0 {
		t.Error("wrong amount")
	}
}

func TestEncodeApproveMax(t *testing.T) {
	spender := common.HexToAddress("0x13c051431753fce53eaec02af64a38a273e198d0")
	data := EncodeApprove(spender, MaxUint256)

	if common.BytesToAddress(data[4:36]) != spender {
		t.Error("wrong spender")
	}
	for i, b := range data[36:68] {
		if b != 0xff {
			t.Fatalf("amount byte %d = %x, want ff", i, b)
		}
	}
}

func TestEncodeAllowanceAndBalanceOf(t *testing.T) {
	owner := common.HexToAddress("0x01")
	spender := common.HexToAddress("0x02")

	a := EncodeAllowance(owner, spender)
	if len(a) != 68 || common.BytesToAddress(a[4:36]) != owner || common.BytesToAddress(a[36:68]) != spender {
		t.Errorf("allowance calldata = %x", a)
	}

	b := EncodeBalanceOf(owner)
	if len(b) != 36 || common.BytesToAddress(b[4:36]) != owner {
		t.Errorf("balanceOf calldata = %x", b)
	}
}

func TestEncodeDeposit(t *testing.T) {
	positionID, _ := new(big.Int).SetString("39584631314667805491088689848282554447608744687563418855093496965842959155466", 10)
	amount := big.NewInt(30)
	to := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	data := EncodeDeposit(positionID, amount, to)
	if len(data) != 100 {
		t.Fatalf("len = %d, want 100", len(data))
	}
	if new(big.Int).SetBytes(data[4:36]).Cmp(positionID) != 0 {
		t.Error("wrong position id")
	}
	if new(big.Int).SetBytes(data[36:68]).Cmp(amount) != 0 {
		t.Error("wrong amount")
	}
	if common.BytesToAddress(data[68:100]) != to {
		t.Error("wrong recipient")
	}
}

func TestEncodeSwapExactETHForTokens(t *testing.T) {
	weth := common.HexToAddress("0x776401b9BC8aAe31A685731B7147D4445fD9FB19")
	token := common.HexToAddress("0xFaf334e157175Ff676911AdcF0964D7f54F2C424")
	to := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	deadline := big.NewInt(1_700_000_600)

	data, err := EncodeSwapExactETHForTokens(big.NewInt(0), []common.Address{weth, token}, to, deadline)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// selector + 4 head words + array length + 2 elements
	if len(data) != 4+32*7 {
		t.Fatalf("len = %d, want %d", len(data), 4+32*7)
	}
	if !bytes.Equal(data[:4], SelectorSwapExactETHForTokens) {
		t.Error("wrong selector")
	}

	word := func(i int) []byte { return data[4+32*i : 4+32*(i+1)] }
	if new(big.Int).SetBytes(word(0)).Sign() != 0 {
		t.Error("amountOutMin should be zero")
	}
	if new(big.Int).SetBytes(word(1)).Int64() != 128 {
		t.Errorf("path offset = %d, want 128", new(big.Int).SetBytes(word(1)).Int64())
	}
	if common.BytesToAddress(word(2)) != to {
		t.Error("wrong recipient")
	}
	if new(big.Int).SetBytes(word(3)).Cmp(deadline) != 0 {
		t.Error("wrong deadline")
	}
	if new(big.Int).SetBytes(word(4)).Int64() != 2 {
		t.Error("path length should be 2")
	}
	if common.BytesToAddress(word(5)) != weth || common.BytesToAddress(word(6)) != token {
		t.Error("wrong path")
	}
}

func TestDecodeUint256(t *testing.T) {
	out := make([]byte, 32)
	out[31] = 42
	v, err := DecodeUint256(out)
	if err != nil || v.Int64() != 42 {
		t.Errorf("DecodeUint256 = %v, %v", v, err)
	}

	if _, err := DecodeUint256([]byte{1, 2}); err == nil {
		t.Error("expected error for short output")
	}
}
