package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromoteNarrowIntegersWidenToInt32(t *testing.T) {
	assert.Equal(t, TypeInt32, Promote(TypeUInt8, TypeUInt16))
	assert.Equal(t, TypeInt32, Promote(TypeInt8, TypeInt8))
	assert.Equal(t, TypeInt32, Promote(TypeInt16, TypeUInt8))
	assert.Equal(t, TypeInt32, Promote(TypeUInt16, TypeInt32))
}

func TestPromoteWideIntegers(t *testing.T) {
	assert.Equal(t, TypeInt64, Promote(TypeInt64, TypeInt32))
	assert.Equal(t, TypeUInt64, Promote(TypeUInt64, TypeUInt32))
	// Mixed signedness at the same rank widens to the next signed
	// category; Double is the fallback past Int64.
	assert.Equal(t, TypeInt64, Promote(TypeInt32, TypeUInt32))
	assert.Equal(t, TypeInt64, Promote(TypeInt64, TypeUInt32))
	assert.Equal(t, TypeDouble, Promote(TypeInt64, TypeUInt64))
}

func TestPromoteFloatWins(t *testing.T) {
	assert.Equal(t, TypeFloat, Promote(TypeUInt8, TypeFloat))
	assert.Equal(t, TypeDouble, Promote(TypeFloat, TypeDouble))
	assert.Equal(t, TypeDouble, Promote(TypeUInt64, TypeDouble))
}

func TestPromoteBitwiseAppliesIntegerPromotion(t *testing.T) {
	assert.Equal(t, TypeInt32, PromoteBitwise(TypeUInt16, TypeUInt16))
	assert.Equal(t, TypeInt32, PromoteBitwise(TypeUInt8, TypeInt16))
	assert.Equal(t, TypeInt64, PromoteBitwise(TypeInt64, TypeUInt8))
	assert.Equal(t, TypeUInt64, PromoteBitwise(TypeUInt64, TypeInt32))
}

func TestPromoteUnary(t *testing.T) {
	assert.Equal(t, TypeInt32, PromoteUnary(TypeUInt8))
	assert.Equal(t, TypeInt32, PromoteUnary(TypeInt16))
	assert.Equal(t, TypeInt64, PromoteUnary(TypeInt64))
	assert.Equal(t, TypeDouble, PromoteUnary(TypeDouble))
	assert.Equal(t, TypeString, PromoteUnary(TypeString))
}
