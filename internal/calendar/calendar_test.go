package calendar_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/canteen-authz/internal/calendar"
)

type fakeAbsences struct{ absent bool }

func (f fakeAbsences) IsAbsent(ctx context.Context, employeeID uuid.UUID, date time.Time) (bool, error) {
	return f.absent, nil
}

func writeHolidays(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "holidays.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestCompanyWorkday(t *testing.T) {
	path := writeHolidays(t, "holidays:\n  - \"2025-01-01\"\n")
	oracle := calendar.NewOracle(fakeAbsences{}, path)

	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"ordinary tuesday", time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC), true},
		{"saturday", time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC), false},
		{"company holiday on a weekday", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, oracle.CompanyWorkday(tt.date))
		})
	}
}

func TestCompanyWorkday_MissingFileMeansNoHolidays(t *testing.T) {
	oracle := calendar.NewOracle(fakeAbsences{}, filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.True(t, oracle.CompanyWorkday(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)))
}

func TestEmployeeWorking(t *testing.T) {
	path := writeHolidays(t, "holidays: []\n")
	date := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

	working, err := calendar.NewOracle(fakeAbsences{absent: false}, path).
		EmployeeWorking(context.Background(), uuid.New(), date)
	require.NoError(t, err)
	assert.True(t, working)

	working, err = calendar.NewOracle(fakeAbsences{absent: true}, path).
		EmployeeWorking(context.Background(), uuid.New(), date)
	require.NoError(t, err)
	assert.False(t, working)
}
