package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.005", "10.01"},
		{"-10.005", "-10.01"},
		{"3.333", "3.33"},
		{"7", "7"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := RoundMoney(MustMoney(tt.in))
			assert.True(t, MustMoney(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestMulQty(t *testing.T) {
	got := MulQty(MustMoney("2.50"), 7)
	assert.True(t, MustMoney("17.50").Equal(got))
}

func TestHasAtMostScale(t *testing.T) {
	assert.True(t, HasAtMostScale(MustMoney("12.30")))
	assert.True(t, HasAtMostScale(MustMoney("12")))
	assert.False(t, HasAtMostScale(MustMoney("12.305")))
}

func TestSumMoney_Empty(t *testing.T) {
	assert.True(t, SumMoney().IsZero())
	assert.True(t, MustMoney("3.75").Equal(SumMoney(MustMoney("1.25"), MustMoney("2.50"))))
}
