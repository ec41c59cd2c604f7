package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER STUDENT COMMAND
// Enrolls a student together with the face embedding taken from one photo.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterStudentCommand contains the enrollment data.
type RegisterStudentCommand struct {
	ID         string
	Name       string
	Role       string
	Department string
	Program    string
	Year       int
	Section    string

	// Image is the encoded photo. Exactly one face must be visible.
	Image []byte
}

// Validate checks the fields that do not need the entity constructor.
func (c RegisterStudentCommand) Validate() error {
	if len(c.Image) == 0 {
		return shared.NewDomainError("student", "Register", shared.ErrInvalidInput, "image is required")
	}
	return nil
}

func (c RegisterStudentCommand) params() student.Params {
	return student.Params{
		ID:         strings.TrimSpace(c.ID),
		Name:       strings.TrimSpace(c.Name),
		Role:       c.Role,
		Department: strings.TrimSpace(c.Department),
		Program:    student.Program(strings.ToUpper(strings.TrimSpace(c.Program))),
		Year:       student.Year(c.Year),
		Section:    student.Section(strings.ToUpper(strings.TrimSpace(c.Section))),
	}
}

// RegisterStudentResult contains the registered student.
type RegisterStudentResult struct {
	Student        student.Student
	FaceConfidence float64
}

// RegisterStudentHandler handles RegisterStudentCommand.
type RegisterStudentHandler struct {
	students   student.Repository
	embeddings EmbeddingStore
	detector   recognition.FaceDetector
	index      recognition.FaceIndex
	hasher     PrivacyHasher
	publisher  shared.EventPublisher
}

// NewRegisterStudentHandler creates a new RegisterStudentHandler.
// hasher and publisher may be nil.
func NewRegisterStudentHandler(
	students student.Repository,
	embeddings EmbeddingStore,
	detector recognition.FaceDetector,
	index recognition.FaceIndex,
	hasher PrivacyHasher,
	publisher shared.EventPublisher,
) *RegisterStudentHandler {
	return &RegisterStudentHandler{
		students:   students,
		embeddings: embeddings,
		detector:   detector,
		index:      index,
		hasher:     hasher,
		publisher:  publisher,
	}
}

// Handle executes the registration.
func (h *RegisterStudentHandler) Handle(ctx context.Context, cmd RegisterStudentCommand) (*RegisterStudentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	s, err := student.New(cmd.params())
	if err != nil {
		return nil, err
	}

	if _, err := h.students.GetByID(ctx, s.ID()); err == nil {
		return nil, shared.WrapError("student", "Register", shared.ErrAlreadyExists,
			fmt.Sprintf("Student %s already registered", s.ID()), shared.ErrStudentAlreadyExists)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("register_student: lookup: %w", err)
	}

	if h.hasher != nil {
		hash, err := h.hasher.Hash(s.ID())
		if err != nil {
			return nil, fmt.Errorf("register_student: privacy hash: %w", err)
		}
		s = s.WithPrivacyHash(hash)
	}

	faces, err := h.detector.DetectFaces(ctx, cmd.Image)
	if err != nil {
		return nil, err
	}
	switch {
	case len(faces) == 0:
		return nil, shared.ErrNoFaceDetected
	case len(faces) > 1:
		return nil, shared.ErrMultipleFacesDetected
	}
	face := faces[0]

	if err := h.index.Add(ctx, s.ID(), face.Embedding); err != nil {
		return nil, fmt.Errorf("register_student: index: %w", err)
	}

	if err := h.persist(ctx, s, face.Embedding); err != nil {
		if rerr := h.index.Remove(ctx, s.ID()); rerr != nil {
			logger.FromContext(ctx).Error("failed to roll back face index",
				logger.StudentID(s.ID()), logger.Err(rerr))
		}
		return nil, err
	}

	publish(ctx, h.publisher, shared.NewStudentRegisteredEvent(s.ID(), s.Name(), s.ClassIdentifier()))

	return &RegisterStudentResult{Student: s, FaceConfidence: face.Confidence}, nil
}

// persist saves the student and its embedding. A failed embedding write
// removes the student again so the two stores stay in step.
func (h *RegisterStudentHandler) persist(ctx context.Context, s student.Student, e recognition.Embedding) error {
	if err := h.students.Save(ctx, s); err != nil {
		return fmt.Errorf("register_student: save: %w", err)
	}
	if h.embeddings == nil {
		return nil
	}
	if err := h.embeddings.SaveEmbedding(ctx, s.ID(), e); err != nil {
		if derr := h.students.Delete(ctx, s.ID()); derr != nil {
			logger.FromContext(ctx).Error("failed to roll back student",
				logger.StudentID(s.ID()), logger.Err(derr))
		}
		return fmt.Errorf("register_student: save embedding: %w", err)
	}
	return nil
}
