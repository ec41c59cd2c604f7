package schedule

import (
	"fmt"

	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLANNER
// Раскладывает требуемые занятия по свободным слотам, соблюдая
// ограничения по аудитории, преподавателю, группе и нагрузке.
// ══════════════════════════════════════════════════════════════════════════════

// Teacher описывает нагрузку преподавателя в часах в неделю.
type Teacher struct {
	Name         string `yaml:"name" json:"name"`
	MaxHours     int    `yaml:"max_hours" json:"max_hours"`
	CurrentHours int    `yaml:"current_hours" json:"current_hours"`
}

// Available сообщает, можно ли добавить ещё час.
func (t Teacher) Available() bool {
	return t.CurrentHours < t.MaxHours
}

// Requirement - сколько занятий по предмету нужно поставить группе.
type Requirement struct {
	Faculty    string
	Department string
	Program    student.Program
	Year       student.Year
	Section    student.Section
	Subject    string
	Teacher    string
	Room       string
	Sessions   int
}

// PlanResult - итог планирования.
type PlanResult struct {
	Scheduled []Entry
	// Shortfalls содержит сообщения о предметах, которые не удалось
	// поставить полностью или пропущены.
	Shortfalls []string
}

// Planner хранит сетку слотов и дни планирования.
type Planner struct {
	days  []Day
	slots []TimeSlot
}

// NewPlanner создаёт планировщик с часовыми слотами 09:00-17:00 по будням.
func NewPlanner() *Planner {
	slots := make([]TimeSlot, 0, 8)
	for h := 9; h < 17; h++ {
		slots = append(slots, TimeSlot{Start: NewClock(h, 0), End: NewClock(h+1, 0)})
	}
	return &Planner{days: Weekdays, slots: slots}
}

// Plan раскладывает требования поверх существующего расписания.
// Счётчики нагрузки teachers обновляются на месте.
func (p *Planner) Plan(existing []Entry, teachers map[string]*Teacher, reqs []Requirement) PlanResult {
	timetable := append([]Entry(nil), existing...)
	var res PlanResult

	for _, req := range reqs {
		teacher, ok := teachers[req.Teacher]
		if !ok {
			res.Shortfalls = append(res.Shortfalls, fmt.Sprintf("teacher %s not found, skipped %s", req.Teacher, req.Subject))
			continue
		}

		candidate := Entry{
			Faculty:    req.Faculty,
			Department: req.Department,
			Program:    req.Program,
			Year:       req.Year,
			Section:    req.Section,
			Subject:    req.Subject,
			Teacher:    req.Teacher,
			Room:       req.Room,
		}

		placed := 0
	days:
		for _, day := range p.days {
			for _, slot := range p.slots {
				if placed >= req.Sessions {
					break days
				}
				candidate.Day = day
				candidate.Slot = slot
				if !teacher.Available() || conflicts(timetable, candidate) {
					continue
				}
				timetable = append(timetable, candidate)
				res.Scheduled = append(res.Scheduled, candidate)
				teacher.CurrentHours++
				placed++
			}
		}

		if placed < req.Sessions {
			res.Shortfalls = append(res.Shortfalls,
				fmt.Sprintf("could not schedule all sessions for %s: scheduled %d/%d", req.Subject, placed, req.Sessions))
		}
	}

	return res
}

// conflicts проверяет занятость аудитории, преподавателя и группы в слоте.
func conflicts(timetable []Entry, c Entry) bool {
	for _, e := range timetable {
		if e.Day != c.Day || !e.Slot.Overlaps(c.Slot) {
			continue
		}
		if e.Room == c.Room || e.Teacher == c.Teacher || e.SameClass(c) {
			return true
		}
	}
	return false
}
