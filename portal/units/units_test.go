package units_test

import (
	"testing"
	"time"

	"github.com/dexlend-labs/dexlend-hub/portal/units"
	"github.com/zeebo/assert"
)

func TestToSmallestUnit(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1", "1000000000000000000", true},
		{"5", "5000000000000000000", true},
		{"1.5", "1500000000000000000", true},
		{"0.000000000000000001", "1", true},
		{"0", "0", true},
		{"0.0000000000000000001", "", false}, // 19 decimal places
		{"abc", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, err := units.ToSmallestUnit(c.in)
		if !c.ok {
			assert.NotNil(t, err)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, c.want, got.String())
	}
}

func TestFromSmallestUnit(t *testing.T) {
	wei, err := units.ToSmallestUnit("2.25")
	assert.NoError(t, err)
	assert.Equal(t, "2.25", units.FromSmallestUnit(wei))
	assert.Equal(t, "0", units.FromSmallestUnit(nil))
}

func TestParsePositiveAmount(t *testing.T) {
	_, err := units.ParsePositiveAmount("0")
	assert.NotNil(t, err)
	_, err = units.ParsePositiveAmount("-1")
	assert.NotNil(t, err)
	got, err := units.ParsePositiveAmount("3")
	assert.NoError(t, err)
	assert.Equal(t, "3000000000000000000", got.String())
}

func TestDeadlineFromMinutes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	deadline, err := units.DeadlineFromMinutes(now, 10)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1_700_000_600), deadline)

	_, err = units.DeadlineFromMinutes(now, 0)
	assert.NotNil(t, err)
	_, err = units.DeadlineFromMinutes(now, -5)
	assert.NotNil(t, err)
}
