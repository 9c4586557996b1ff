// Package calendar implements the Calendar Oracle: side-effect-free reads
// of company workdays and employee absences.
package calendar

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// AbsenceChecker is the subset of internal/data needed to check per-employee
// absence ranges.
type AbsenceChecker interface {
	IsAbsent(ctx context.Context, employeeID uuid.UUID, date time.Time) (bool, error)
}

type holidaysFile struct {
	Holidays []string `yaml:"holidays"` // "2025-01-01"
}

// Oracle answers company_workday and employee_working. Company holidays
// are loaded from a YAML file and hot-reloaded via fsnotify, so an
// operator can add a holiday without restarting the server.
type Oracle struct {
	absences AbsenceChecker

	mu       sync.RWMutex
	holidays map[string]bool // "2006-01-02" -> true

	path string
}

func NewOracle(absences AbsenceChecker, path string) *Oracle {
	o := &Oracle{absences: absences, holidays: map[string]bool{}, path: path}
	o.reload()
	return o
}

func (o *Oracle) reload() {
	data, err := os.ReadFile(o.path)
	if err != nil {
		log.Printf("calendar: could not read holidays file %s: %v (treating as no holidays)", o.path, err)
		return
	}
	var f holidaysFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		log.Printf("calendar: could not parse holidays file %s: %v", o.path, err)
		return
	}
	set := make(map[string]bool, len(f.Holidays))
	for _, d := range f.Holidays {
		set[d] = true
	}
	o.mu.Lock()
	o.holidays = set
	o.mu.Unlock()
}

// Watch starts an fsnotify watcher that reloads the holidays file on
// change. Runs until ctx is cancelled; errors are logged, not fatal, since
// a stale calendar is preferable to a crashed process.
func (o *Oracle) Watch(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("calendar: fsnotify init failed: %v (hot reload disabled)", err)
		return
	}
	if err := watcher.Add(o.path); err != nil {
		log.Printf("calendar: could not watch %s: %v (hot reload disabled)", o.path, err)
		watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					o.reload()
					log.Printf("calendar: reloaded holidays from %s", o.path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("calendar: watch error: %v", err)
			}
		}
	}()
}

// CompanyWorkday reports whether date is Mon-Fri and not a company holiday.
func (o *Oracle) CompanyWorkday(date time.Time) bool {
	wd := date.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	o.mu.RLock()
	isHoliday := o.holidays[date.Format("2006-01-02")]
	o.mu.RUnlock()
	return !isHoliday
}

// EmployeeWorking reports whether the employee has no absence covering date.
func (o *Oracle) EmployeeWorking(ctx context.Context, employeeID uuid.UUID, date time.Time) (bool, error) {
	absent, err := o.absences.IsAbsent(ctx, employeeID, date)
	if err != nil {
		return false, err
	}
	return !absent, nil
}
