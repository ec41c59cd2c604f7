package faceindex

import (
	"context"
	"errors"

	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

// StudentLookup resolves a student by id.
type StudentLookup interface {
	GetByID(ctx context.Context, id string) (student.Student, error)
}

// Recognizer implements recognition.Recognizer: detect, take the first face,
// search the gallery, resolve the student.
type Recognizer struct {
	detector  recognition.FaceDetector
	index     recognition.FaceIndex
	students  StudentLookup
	threshold float64
}

// NewRecognizer creates a recognizer. A non-positive threshold falls back to
// recognition.DefaultMatchThreshold.
func NewRecognizer(detector recognition.FaceDetector, index recognition.FaceIndex, students StudentLookup, threshold float64) *Recognizer {
	if threshold <= 0 {
		threshold = recognition.DefaultMatchThreshold
	}
	return &Recognizer{detector: detector, index: index, students: students, threshold: threshold}
}

// Identify returns ok == false when no face is found, nothing in the gallery
// is close enough, or the matched student has been deleted.
func (r *Recognizer) Identify(ctx context.Context, obs recognition.Observation) (recognition.Identification, bool, error) {
	faces, err := r.detector.DetectFaces(ctx, obs.Image)
	if err != nil {
		return recognition.Identification{}, false, err
	}
	if len(faces) == 0 {
		return recognition.Identification{}, false, nil
	}

	face := faces[0]
	match, ok, err := r.index.Search(ctx, face.Embedding, r.threshold)
	if err != nil || !ok {
		return recognition.Identification{}, false, err
	}

	s, err := r.students.GetByID(ctx, match.StudentID)
	if errors.Is(err, shared.ErrNotFound) {
		return recognition.Identification{}, false, nil
	}
	if err != nil {
		return recognition.Identification{}, false, err
	}

	conf := shared.Confidence(match.Similarity)
	if conf > 1 {
		conf = 1
	}
	return recognition.Identification{Student: s, Confidence: conf, Face: face}, true, nil
}

var _ recognition.Recognizer = (*Recognizer)(nil)
