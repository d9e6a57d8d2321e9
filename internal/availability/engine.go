// Package availability turns calendar busy intervals into bookable slots.
// All functions are pure: no I/O, deterministic for a fixed "now".
package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/fdezr/frontdesk/internal/conversation"
)

// BusinessHours bounds the bookable part of a business day in the tenant
// time zone. Start and End are hours on a 24h clock, End exclusive.
type BusinessHours struct {
	Start int
	End   int
}

// Window describes the computation input shared by ComputeSlots and
// ComputeDays.
type Window struct {
	Start         time.Time
	End           time.Time
	SlotDuration  time.Duration
	BusinessHours BusinessHours
	Location      *time.Location
	Now           time.Time
}

var (
	daysES = [...]string{"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado"}

	monthsES = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio",
		"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

// MergeBusy normalizes busy intervals into the target location, drops
// empty or inverted ranges, and coalesces overlapping or touching ones.
func MergeBusy(intervals []conversation.BusyInterval, loc *time.Location) []conversation.BusyInterval {
	normalized := make([]conversation.BusyInterval, 0, len(intervals))
	for _, iv := range intervals {
		if !iv.End.After(iv.Start) {
			continue
		}
		normalized = append(normalized, conversation.BusyInterval{
			Start: iv.Start.In(loc),
			End:   iv.End.In(loc),
		})
	}
	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].Start.Before(normalized[j].Start)
	})

	merged := normalized[:0]
	for _, iv := range normalized {
		if n := len(merged); n > 0 && !iv.Start.After(merged[n-1].End) {
			if iv.End.After(merged[n-1].End) {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// ComputeSlots walks fixed-width slots across the business days of the
// window and retains every slot that starts in the future and does not
// overlap any merged busy interval. Slots come back ordered by start time.
func ComputeSlots(busy []conversation.BusyInterval, w Window) []conversation.Slot {
	merged := MergeBusy(busy, w.Location)
	now := w.Now.In(w.Location)

	var slots []conversation.Slot
	day := startOfDay(w.Start.In(w.Location))
	end := w.End.In(w.Location)

	for day.Before(end) {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			slotStart := day.Add(time.Duration(w.BusinessHours.Start) * time.Hour)
			dayEnd := day.Add(time.Duration(w.BusinessHours.End) * time.Hour)

			for !slotStart.Add(w.SlotDuration).After(dayEnd) {
				slotEnd := slotStart.Add(w.SlotDuration)
				if slotStart.After(now) && isFree(slotStart, slotEnd, merged) {
					slots = append(slots, conversation.Slot{
						Start:    slotStart,
						End:      slotEnd,
						TimeZone: w.Location.String(),
						Display:  formatSlot(slotStart),
					})
				}
				slotStart = slotEnd
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return slots
}

// ComputeSlotsForDate restricts ComputeSlots to a single YYYY-MM-DD date in
// the window's location.
func ComputeSlotsForDate(busy []conversation.BusyInterval, w Window, date string) ([]conversation.Slot, error) {
	day, err := time.ParseInLocation("2006-01-02", date, w.Location)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	scoped := w
	scoped.Start = day
	scoped.End = day.AddDate(0, 0, 1)
	return ComputeSlots(busy, scoped), nil
}

// ComputeDays groups the window's free slots by date and returns one Day per
// date with a non-zero slot count, chronological, capped at maxDays.
func ComputeDays(busy []conversation.BusyInterval, w Window, maxDays int) []conversation.Day {
	slots := ComputeSlots(busy, w)

	var days []conversation.Day
	index := make(map[string]int)
	for _, s := range slots {
		date := s.Start.Format("2006-01-02")
		if i, ok := index[date]; ok {
			days[i].SlotCount++
			continue
		}
		if maxDays > 0 && len(days) >= maxDays {
			continue
		}
		index[date] = len(days)
		days = append(days, conversation.Day{
			Date:      date,
			DisplayEN: formatDayEN(s.Start),
			DisplayES: formatDayES(s.Start),
			SlotCount: 1,
		})
	}
	return days
}

func isFree(start, end time.Time, busy []conversation.BusyInterval) bool {
	for _, iv := range busy {
		if !end.After(iv.Start) || !start.Before(iv.End) {
			continue
		}
		return false
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func formatSlot(t time.Time) string {
	return t.Format("Monday, January 2 at 03:04 PM")
}

func formatDayEN(t time.Time) string {
	return t.Format("Monday, January 2")
}

func formatDayES(t time.Time) string {
	return fmt.Sprintf("%s, %d de %s", daysES[int(t.Weekday())], t.Day(), monthsES[int(t.Month())-1])
}
