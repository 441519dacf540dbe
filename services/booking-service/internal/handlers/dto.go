package handlers

import (
	"time"

	"github.com/smiledesk/smiledesk/services/booking-service/internal/availability"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/booking"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
)

type createAppointmentRequest struct {
	PatientID    string `json:"patient_id" validate:"required,max=64"`
	TypeID       string `json:"type_id" validate:"max=64"`
	Date         string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime    string `json:"start_time" validate:"required,datetime=15:04"`
	Notes        string `json:"notes" validate:"max=2000"`
	ReminderTime string `json:"reminder_time" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	PatientName  string `json:"patient_name" validate:"max=200"`
	PatientEmail string `json:"patient_email" validate:"omitempty,email"`
	PatientPhone string `json:"patient_phone" validate:"omitempty,e164"`
}

type appointmentActionRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required,uuid"`
	Reason        string `json:"reason" validate:"max=500"`
}

type appointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	TypeID        string `json:"type_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	StartsAt      string `json:"starts_at"`
	EndsAt        string `json:"ends_at"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	ReminderTime  string `json:"reminder_time,omitempty"`
	PatientName   string `json:"patient_name,omitempty"`
	PatientEmail  string `json:"patient_email,omitempty"`
	PatientPhone  string `json:"patient_phone,omitempty"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type appointmentTypeResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Color           string `json:"color"`
}

type slotResponse struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

type dayResponse struct {
	Date            string                   `json:"date"`
	Open            bool                     `json:"open"`
	Reason          string                   `json:"reason,omitempty"`
	Type            *appointmentTypeResponse `json:"type,omitempty"`
	DurationMinutes int                      `json:"duration_minutes,omitempty"`
	Slots           []slotResponse           `json:"slots"`
}

type conflictResponse struct {
	Error    string              `json:"error"`
	Conflict *appointmentSummary `json:"conflict,omitempty"`
}

type appointmentSummary struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	PatientName   string `json:"patient_name,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

type depositResponse struct {
	AppointmentID   string `json:"appointment_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
}

func toAppointmentResponse(a model.Appointment, loc *time.Location) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		TypeID:        a.TypeID,
		Date:          a.Date,
		StartTime:     a.StartTime.In(loc).Format("15:04"),
		EndTime:       a.EndTime.In(loc).Format("15:04"),
		StartsAt:      a.StartTime.UTC().Format(time.RFC3339),
		EndsAt:        a.EndTime.UTC().Format(time.RFC3339),
		Status:        string(a.Status),
		Notes:         a.Notes,
		PatientName:   a.PatientName,
		PatientEmail:  a.PatientEmail,
		PatientPhone:  a.PatientPhone,
		CancelReason:  a.CancelReason,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.ReminderTime != nil {
		resp.ReminderTime = a.ReminderTime.UTC().Format(time.RFC3339)
	}
	return resp
}

func toTypeResponse(t model.AppointmentType) appointmentTypeResponse {
	return appointmentTypeResponse{
		ID:              t.ID,
		Name:            t.Name,
		DurationMinutes: t.DurationMinutes,
		Color:           t.Color,
	}
}

func toDayResponse(v booking.DayView, loc *time.Location) dayResponse {
	resp := dayResponse{
		Date:   v.Date,
		Open:   v.Open,
		Reason: v.Reason,
		Slots:  make([]slotResponse, 0, len(v.Slots)),
	}
	if v.Type.ID != "" {
		t := toTypeResponse(v.Type)
		resp.Type = &t
		resp.DurationMinutes = v.Type.DurationMinutes
	}
	for _, s := range v.Slots {
		resp.Slots = append(resp.Slots, slotResponse{
			StartTime: s.Start.In(loc).Format("15:04"),
			EndTime:   s.End.In(loc).Format("15:04"),
			Status:    string(s.Status),
		})
	}
	return resp
}

func toConflictResponse(ce *availability.ConflictError, loc *time.Location) conflictResponse {
	resp := conflictResponse{Error: availability.ErrSlotConflict.Error()}
	if ce.With.ID != "" {
		resp.Conflict = &appointmentSummary{
			AppointmentID: ce.With.ID,
			PatientID:     ce.With.PatientID,
			PatientName:   ce.With.PatientName,
			StartTime:     ce.With.StartTime.In(loc).Format("15:04"),
			EndTime:       ce.With.EndTime.In(loc).Format("15:04"),
		}
	}
	return resp
}
