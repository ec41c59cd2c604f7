package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/scholarmaster/campus-attendance/config"
	"github.com/scholarmaster/campus-attendance/internal/application/command"
	"github.com/scholarmaster/campus-attendance/internal/application/query"
	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/compliance"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/external/asr"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"name":    "Campus Attendance API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":     "/health",
			"register":   "/api/v1/students/register",
			"recognize":  "/api/v1/students/recognize",
			"students":   "/api/v1/students",
			"attendance": "/api/v1/attendance",
			"compliance": "/api/v1/compliance/check",
			"noise":      "/api/v1/alerts/noise",
			"transcript": "/api/v1/transcripts/latest",
		},
	})
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, r, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, r, http.StatusOK, status)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": s.config.Version,
	})
}

// handleLive answers the liveness check.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// registerResponse is returned by POST /api/v1/students/register.
type registerResponse struct {
	Message        string           `json:"message"`
	Student        query.StudentDTO `json:"student"`
	FaceConfidence float64          `json:"face_confidence"`
}

// handleRegisterStudent handles POST /api/v1/students/register
// (multipart: image file plus student fields).
func (s *Server) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.RegisterStudent == nil {
		notConfigured(w, r, "Registration")
		return
	}

	image, _, err := s.readUpload(r, "image")
	if err != nil {
		s.writeError(w, r, "register_student", err)
		return
	}

	year, err := formInt(r, "year")
	if err != nil {
		s.writeError(w, r, "register_student", err)
		return
	}

	cmd := command.RegisterStudentCommand{
		ID:         firstForm(r, "student_id", "id"),
		Name:       r.FormValue("name"),
		Role:       r.FormValue("role"),
		Department: r.FormValue("department"),
		Program:    r.FormValue("program"),
		Year:       year,
		Section:    r.FormValue("section"),
		Image:      image,
	}

	result, err := s.deps.RegisterStudent.Handle(r.Context(), cmd)
	if err != nil {
		s.writeError(w, r, "register_student", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, registerResponse{
		Message:        fmt.Sprintf("Student %s registered successfully", result.Student.Name()),
		Student:        query.NewStudentDTO(result.Student),
		FaceConfidence: result.FaceConfidence,
	})
}

// recognizeResponse adds a human-readable message to the query result.
type recognizeResponse struct {
	*query.RecognizeStudentResult
	Message string `json:"message,omitempty"`
}

// handleRecognizeStudent handles POST /api/v1/students/recognize
// (multipart: image file, optional zone).
func (s *Server) handleRecognizeStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecognizeStudent == nil {
		notConfigured(w, r, "Recognition")
		return
	}

	image, _, err := s.readUpload(r, "image")
	if err != nil {
		s.writeError(w, r, "recognize_student", err)
		return
	}

	result, err := s.deps.RecognizeStudent.Handle(r.Context(), query.RecognizeStudentQuery{
		Image: image,
		Zone:  r.FormValue("zone"),
	})
	if err != nil {
		s.writeError(w, r, "recognize_student", err)
		return
	}

	resp := recognizeResponse{RecognizeStudentResult: result}
	if !result.Recognized {
		resp.Message = "Student not recognized"
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleGetStudent handles GET /api/v1/students/{id}
func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetStudent == nil {
		notConfigured(w, r, "Student lookup")
		return
	}

	result, err := s.deps.GetStudent.Handle(r.Context(), query.GetStudentQuery{StudentID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, "get_student", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleListStudents handles GET /api/v1/students
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListStudents == nil {
		notConfigured(w, r, "Student listing")
		return
	}

	q := query.ListStudentsQuery{
		Department: getQueryParam(r, "department", ""),
		Program:    getQueryParam(r, "program", ""),
		Year:       getQueryParamInt(r, "year", 0),
		Section:    getQueryParam(r, "section", ""),
		Limit:      getQueryParamInt(r, "limit", 0),
		Offset:     getQueryParamInt(r, "offset", 0),
	}

	result, err := s.deps.ListStudents.Handle(r.Context(), q)
	if err != nil {
		s.writeError(w, r, "list_students", err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{
		TotalCount: result.Total,
		Limit:      result.Limit,
		Offset:     result.Offset,
		HasMore:    result.Offset+len(result.Students) < result.Total,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type markAttendanceRequest struct {
	StudentID string `json:"student_id"`
	Subject   string `json:"subject"`
	Room      string `json:"room"`
	IsTruant  bool   `json:"is_truant"`
	Status    string `json:"status,omitempty"`
}

type markAttendanceResponse struct {
	Message string              `json:"message"`
	Record  query.AttendanceDTO `json:"record"`
}

// handleMarkAttendance handles POST /api/v1/attendance/mark
func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	if s.deps.MarkAttendance == nil {
		notConfigured(w, r, "Attendance marking")
		return
	}

	var req markAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "mark_attendance", err)
		return
	}

	cmd := command.MarkAttendanceCommand{
		StudentID: req.StudentID,
		Subject:   req.Subject,
		Room:      req.Room,
		IsTruant:  req.IsTruant,
	}
	if req.Status != "" {
		status, err := attendance.ParseStatus(req.Status)
		if err != nil {
			s.writeError(w, r, "mark_attendance", err)
			return
		}
		cmd.Status = status
	}

	result, err := s.deps.MarkAttendance.Handle(r.Context(), cmd)
	if err != nil {
		s.writeError(w, r, "mark_attendance", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, markAttendanceResponse{
		Message: fmt.Sprintf("Attendance marked for %s in %s", result.Record.StudentName, result.Record.Subject),
		Record:  query.NewAttendanceDTO(result.Record),
	})
}

// handleGetAttendance handles GET /api/v1/attendance
func (s *Server) handleGetAttendance(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetAttendance == nil {
		notConfigured(w, r, "Attendance lookup")
		return
	}

	result, err := s.deps.GetAttendance.Handle(r.Context(), query.GetAttendanceQuery{
		StudentID: getQueryParam(r, "student_id", ""),
		Date:      getQueryParam(r, "date", ""),
		Subject:   getQueryParam(r, "subject", ""),
		Status:    getQueryParam(r, "status", ""),
		Limit:     getQueryParamInt(r, "limit", 0),
	})
	if err != nil {
		s.writeError(w, r, "get_attendance", err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{TotalCount: len(result.Records)})
}

// handleMarkAbsentees handles POST /api/v1/attendance/absentees. It runs the
// end-of-day sweep on demand.
func (s *Server) handleMarkAbsentees(w http.ResponseWriter, r *http.Request) {
	if s.deps.MarkAbsentees == nil {
		notConfigured(w, r, "Absentee sweep")
		return
	}
	if !s.featureEnabled(w, r, config.FeatureAbsenteeSweep, "") {
		return
	}

	result, err := s.deps.MarkAbsentees.Handle(r.Context(), command.MarkAbsenteesCommand{})
	if err != nil {
		s.writeError(w, r, "mark_absentees", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLIANCE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type complianceCheckRequest struct {
	StudentID       string `json:"student_id"`
	CurrentLocation string `json:"current_location"`
}

// handleComplianceCheck handles POST /api/v1/compliance/check
func (s *Server) handleComplianceCheck(w http.ResponseWriter, r *http.Request) {
	if s.deps.DetectTruancy == nil {
		notConfigured(w, r, "Compliance check")
		return
	}

	var req complianceCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "compliance_check", err)
		return
	}
	if !s.featureEnabled(w, r, config.FeatureTruancyDetection, req.CurrentLocation) {
		return
	}

	result, err := s.deps.DetectTruancy.Handle(r.Context(), command.DetectTruancyCommand{
		StudentID:       req.StudentID,
		CurrentLocation: req.CurrentLocation,
	})
	if err != nil {
		s.writeError(w, r, "compliance_check", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type noiseAlertRequest struct {
	Zone        string `json:"zone"`
	LectureMode bool   `json:"lecture_mode"`
	compliance.AudioMetrics
}

// handleNoiseAlert handles POST /api/v1/alerts/noise
func (s *Server) handleNoiseAlert(w http.ResponseWriter, r *http.Request) {
	if s.deps.EvaluateNoise == nil {
		notConfigured(w, r, "Noise alerts")
		return
	}

	var req noiseAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "noise_alert", err)
		return
	}
	if !s.featureEnabled(w, r, config.FeatureNoiseAlerts, req.Zone) {
		return
	}

	result, err := s.deps.EvaluateNoise.Handle(r.Context(), command.EvaluateNoiseCommand{
		Zone:        req.Zone,
		Metrics:     req.AudioMetrics,
		LectureMode: req.LectureMode,
	})
	if err != nil {
		s.writeError(w, r, "noise_alert", err)
		return
	}

	status := http.StatusOK
	if result.Alert != nil {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, result)
}

// handleZonePresence handles GET /api/v1/presence/{zone}?within=15m
func (s *Server) handleZonePresence(w http.ResponseWriter, r *http.Request) {
	if s.deps.ZonePresence == nil {
		notConfigured(w, r, "Presence")
		return
	}

	q := query.ZonePresenceQuery{Zone: r.PathValue("zone")}
	if raw := r.URL.Query().Get("within"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			s.writeError(w, r, "zone_presence", shared.NewDomainError("recognition", "Presence", shared.ErrInvalidFormat,
				"within must be a positive duration such as 15m"))
			return
		}
		q.Within = d
	}

	result, err := s.deps.ZonePresence.Handle(r.Context(), q)
	if err != nil {
		s.writeError(w, r, "zone_presence", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{TotalCount: len(result.Sightings)})
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSCRIPT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleLatestTranscript handles GET /api/v1/transcripts/latest
func (s *Server) handleLatestTranscript(w http.ResponseWriter, r *http.Request) {
	if s.deps.LatestTranscript == nil {
		notConfigured(w, r, "Transcripts")
		return
	}
	if !s.featureEnabled(w, r, config.FeatureTranscripts, "") {
		return
	}
	writeJSON(w, r, http.StatusOK, s.deps.LatestTranscript.Handle(r.Context()))
}

// handleSubmitAudio handles POST /api/v1/transcripts/audio
// (multipart: audio file, optional zone).
func (s *Server) handleSubmitAudio(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audio == nil {
		notConfigured(w, r, "Transcription")
		return
	}

	audio, filename, err := s.readUpload(r, "audio")
	if err != nil {
		s.writeError(w, r, "submit_audio", err)
		return
	}
	zone := strings.TrimSpace(r.FormValue("zone"))
	if !s.featureEnabled(w, r, config.FeatureTranscripts, zone) {
		return
	}

	if filename == "" {
		filename = "chunk.wav"
	}

	err = s.deps.Audio.Submit(asr.Chunk{Audio: audio, Filename: filename, Zone: zone, Received: time.Now()})
	if errors.Is(err, asr.ErrQueueFull) {
		w.Header().Set("Retry-After", "5")
		writeJSONError(w, r, http.StatusServiceUnavailable, "queue_full", "Transcription queue is full, retry shortly")
		return
	}
	if err != nil {
		s.writeError(w, r, "submit_audio", err)
		return
	}

	writeJSON(w, r, http.StatusAccepted, map[string]interface{}{
		"queued": true,
		"bytes":  len(audio),
		"zone":   zone,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// featureEnabled writes 503 and returns false when a feature is switched off.
func (s *Server) featureEnabled(w http.ResponseWriter, r *http.Request, name, zone string) bool {
	if s.deps.Features == nil || s.deps.Features.IsEnabled(name, &config.FeatureContext{Zone: zone}) {
		return true
	}
	writeJSONError(w, r, http.StatusServiceUnavailable, "feature_disabled", fmt.Sprintf("Feature %s is disabled", name))
	return false
}

func notConfigured(w http.ResponseWriter, r *http.Request, what string) {
	writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", what+" is not configured")
}

// readUpload reads a multipart file field and returns its content and
// client file name.
func (s *Server) readUpload(r *http.Request, field string) ([]byte, string, error) {
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", err
		}
		return nil, "", shared.WrapError("http", "Upload", shared.ErrInvalidInput, "expected a multipart/form-data body", err)
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", shared.NewDomainError("http", "Upload", shared.ErrEmptyValue, fmt.Sprintf("%s file is required", field))
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, "", shared.NewDomainError("http", "Upload", shared.ErrEmptyValue, fmt.Sprintf("%s file is empty", field))
	}
	return data, header.Filename, nil
}

// decodeJSON decodes a JSON request body.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return shared.WrapError("http", "Decode", shared.ErrInvalidFormat, "invalid JSON body", err)
	}
	return nil
}

func formInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return 0, shared.NewDomainError("http", "Form", shared.ErrEmptyValue, key+" is required")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, shared.WrapError("http", "Form", shared.ErrInvalidFormat, key+" must be a number", err)
	}
	return n, nil
}

func firstForm(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := r.FormValue(k); v != "" {
			return v
		}
	}
	return ""
}

// getQueryParam extracts a query parameter with a default value.
func getQueryParam(r *http.Request, key, defaultValue string) string {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getQueryParamInt extracts an integer query parameter with a default value.
func getQueryParamInt(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
