package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

func TestNormalizeTaxpayerID(t *testing.T) {
	cases := []struct {
		raw   string
		want  TaxpayerID
		valid bool
	}{
		{"11.222.333/0001-44", "11222333000144", true},
		{" 11222333000144 ", "11222333000144", true},
		{"11222333000144.0", "", false},
		{"1122233300014", "", false},
		{"112223330001445", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := NormalizeTaxpayerID(tc.raw)
			if !tc.valid {
				require.Error(t, err)
				assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidIdentifier))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeTaxpayerIDs(t *testing.T) {
	valid, rejected := NormalizeTaxpayerIDs([]string{
		"11.222.333/0001-44", "", "123", "99888777000166", "11222333000144", "  ",
	})
	assert.Equal(t, []TaxpayerID{"11222333000144", "99888777000166"}, valid)
	assert.Equal(t, []string{"123"}, rejected)
}

func TestTrailingWindows(t *testing.T) {
	runDate := time.Date(2024, 5, 11, 15, 30, 0, 0, time.UTC)
	windows := TrailingWindows("11222333000144", runDate, 5)

	require.Len(t, windows, 5)
	var days []string
	for _, w := range windows {
		assert.Equal(t, TaxpayerID("11222333000144"), w.TaxpayerID)
		days = append(days, w.Day())
	}
	assert.Equal(t, []string{"2024-05-06", "2024-05-07", "2024-05-08", "2024-05-09", "2024-05-10"}, days)
	assert.Equal(t, "11222333000144@2024-05-06", windows[0].String())
}

func TestTrailingWindows_CrossesMonthBoundary(t *testing.T) {
	windows := TrailingWindows("11222333000144", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), 3)
	require.Len(t, windows, 3)
	assert.Equal(t, "2024-02-28", windows[0].Day())
	assert.Equal(t, "2024-03-01", windows[2].Day())
}

func TestTrailingWindows_NonPositive(t *testing.T) {
	assert.Empty(t, TrailingWindows("11222333000144", time.Now(), 0))
}

func TestFingerprintOf(t *testing.T) {
	a := FingerprintOf("PGZvby8+")
	b := FingerprintOf("PGZvby8+")
	c := FingerprintOf("PGJhci8+")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a.String(), 64)
}

func TestMonthName(t *testing.T) {
	assert.Equal(t, "Janeiro", MonthName("01"))
	assert.Equal(t, "Marco", MonthName("03"))
	assert.Equal(t, "Maio", MonthName("05"))
	assert.Equal(t, "Dezembro", MonthName("12"))
	assert.Equal(t, "00", MonthName("00"))
	assert.Equal(t, "13", MonthName("13"))
}
