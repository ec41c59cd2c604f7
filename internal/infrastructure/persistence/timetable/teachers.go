package timetable

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/scholarmaster/campus-attendance/internal/domain/schedule"
)

// teachersFile is the root document of teachers.yaml.
type teachersFile struct {
	Teachers []schedule.Teacher `yaml:"teachers"`
}

// LoadTeachers reads teacher workloads keyed by name.
// A missing file yields an empty map.
func LoadTeachers(path string) (map[string]*schedule.Teacher, error) {
	out := make(map[string]*schedule.Teacher)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read teachers %s: %w", path, err)
	}

	var f teachersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse teachers %s: %w", path, err)
	}
	for i := range f.Teachers {
		t := f.Teachers[i]
		if t.Name == "" {
			return nil, fmt.Errorf("teachers %s: entry %d has no name", path, i+1)
		}
		out[t.Name] = &t
	}
	return out, nil
}

// SaveTeachers writes workloads sorted by name.
func SaveTeachers(path string, teachers map[string]*schedule.Teacher) error {
	f := teachersFile{Teachers: make([]schedule.Teacher, 0, len(teachers))}
	for _, t := range teachers {
		f.Teachers = append(f.Teachers, *t)
	}
	sort.Slice(f.Teachers, func(i, j int) bool { return f.Teachers[i].Name < f.Teachers[j].Name })

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode teachers: %w", err)
	}
	return WriteAtomic(path, data)
}

// RequirementRow is one line of a planning request file.
type RequirementRow struct {
	Faculty    string `yaml:"faculty"`
	Department string `yaml:"department"`
	Program    string `yaml:"program"`
	Year       int    `yaml:"year"`
	Section    string `yaml:"section"`
	Subject    string `yaml:"subject"`
	Teacher    string `yaml:"teacher"`
	Room       string `yaml:"room"`
	Sessions   int    `yaml:"sessions"`
}

// LoadRequirements reads a planning request document:
//
//	requirements:
//	  - department: CS
//	    program: UG
//	    ...
func LoadRequirements(path string) ([]schedule.Requirement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read requirements %s: %w", path, err)
	}

	var doc struct {
		Requirements []RequirementRow `yaml:"requirements"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse requirements %s: %w", path, err)
	}

	out := make([]schedule.Requirement, 0, len(doc.Requirements))
	for _, r := range doc.Requirements {
		out = append(out, r.toRequirement())
	}
	return out, nil
}

func (r RequirementRow) toRequirement() schedule.Requirement {
	row := Row{Program: r.Program, Section: r.Section}
	return schedule.Requirement{
		Faculty:    r.Faculty,
		Department: r.Department,
		Program:    programOf(row),
		Year:       yearOf(r.Year),
		Section:    sectionOf(row),
		Subject:    r.Subject,
		Teacher:    r.Teacher,
		Room:       r.Room,
		Sessions:   r.Sessions,
	}
}
