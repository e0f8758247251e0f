// ABOUTME: JSON wire representations of users, credentials, entries and settings
// ABOUTME: Resource IDs are exposed as "_id"; secrets and hashes never leave except on key creation

package server

import (
	"time"

	"github.com/bluemedia/timechamp/internal/auth"
	"github.com/bluemedia/timechamp/internal/store"
)

type userResponse struct {
	ID            string           `json:"_id"`
	Username      string           `json:"username"`
	Permission    store.Permission `json:"permission"`
	LastLoginTime *time.Time       `json:"lastLoginTime"`
	Name          string           `json:"name"`
	EmployeeID    string           `json:"employeeId"`
	Department    string           `json:"department"`
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Username:      u.Username,
		Permission:    u.Permission,
		LastLoginTime: u.LastLoginAt,
		Name:          u.DisplayName,
		EmployeeID:    u.EmployeeID,
		Department:    u.Department,
	}
}

func toUserResponses(users []*store.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}

type meResponse struct {
	User         userResponse     `json:"user"`
	AuthMethod   auth.Method      `json:"authMethod"`
	Permission   store.Permission `json:"permission"`
	CredentialID string           `json:"credentialId"`
}

type apiKeyResponse struct {
	ID         string           `json:"_id"`
	Name       string           `json:"name"`
	UserID     string           `json:"userId"`
	Permission store.Permission `json:"permission"`
	LastUsed   *time.Time       `json:"lastUsed"`
	CreatedAt  time.Time        `json:"createdAt"`
	Secret     string           `json:"secret,omitempty"`
}

func toAPIKeyResponse(k *store.APIKey) apiKeyResponse {
	return apiKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		UserID:     k.UserID,
		Permission: k.Permission,
		LastUsed:   k.LastAccessAt,
		CreatedAt:  k.CreatedAt,
	}
}

func toAPIKeyResponses(keys []*store.APIKey) []apiKeyResponse {
	out := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, toAPIKeyResponse(k))
	}
	return out
}

type secretResponse struct {
	Secret string `json:"secret"`
}

type sessionResponse struct {
	ID                  string    `json:"_id"`
	UserID              string    `json:"userId"`
	UserAgent           string    `json:"userAgent"`
	LastAccessIPAddress string    `json:"lastAccessIpAddress"`
	LastAccessTime      time.Time `json:"lastAccessTime"`
	CreatedAt           time.Time `json:"createdAt"`
	Current             bool      `json:"current"`
}

func toSessionResponse(sess *store.Session, currentID string) sessionResponse {
	return sessionResponse{
		ID:                  sess.ID,
		UserID:              sess.UserID,
		UserAgent:           sess.UserAgent,
		LastAccessIPAddress: sess.LastAccessIP,
		LastAccessTime:      sess.LastAccessAt,
		CreatedAt:           sess.CreatedAt,
		Current:             sess.ID == currentID,
	}
}

type timeEntryResponse struct {
	ID          string              `json:"_id"`
	StartTime   time.Time           `json:"startTime"`
	EndTime     *time.Time          `json:"endTime"`
	Worktime    *int64              `json:"worktime"` // seconds
	Type        store.TimeEntryType `json:"type"`
	Workplace   store.Workplace     `json:"workplace"`
	Description *string             `json:"description"`
}

func toTimeEntryResponse(e *store.TimeEntry) timeEntryResponse {
	resp := timeEntryResponse{
		ID:          e.ID,
		StartTime:   e.Start,
		EndTime:     e.End,
		Type:        e.Type,
		Workplace:   e.Workplace,
		Description: e.Description,
	}
	if e.Worktime != nil {
		secs := int64(e.Worktime.Seconds())
		resp.Worktime = &secs
	}
	return resp
}

type settingsBody struct {
	HoursMonday           float64 `json:"hoursMonday"`
	HoursTuesday          float64 `json:"hoursTuesday"`
	HoursWednesday        float64 `json:"hoursWednesday"`
	HoursThursday         float64 `json:"hoursThursday"`
	HoursFriday           float64 `json:"hoursFriday"`
	HoursSaturday         float64 `json:"hoursSaturday"`
	HoursSunday           float64 `json:"hoursSunday"`
	VacationDays          float64 `json:"vacationDays"`
	AutoBreak             bool    `json:"autoBreak"`
	BreakDurationMinutes  int     `json:"breakDurationMinutes"`
	BreakThresholdMinutes int     `json:"breakThresholdMinutes"`
	BreakStartTime        string  `json:"breakStartTime"`
}

func toSettingsBody(st *store.UserSettings) settingsBody {
	return settingsBody{
		HoursMonday:           st.HoursMonday,
		HoursTuesday:          st.HoursTuesday,
		HoursWednesday:        st.HoursWednesday,
		HoursThursday:         st.HoursThursday,
		HoursFriday:           st.HoursFriday,
		HoursSaturday:         st.HoursSaturday,
		HoursSunday:           st.HoursSunday,
		VacationDays:          st.VacationDays,
		AutoBreak:             st.AutoBreak,
		BreakDurationMinutes:  st.BreakDurationMinutes,
		BreakThresholdMinutes: st.BreakThresholdMinutes,
		BreakStartTime:        st.BreakStartTime,
	}
}

func (b settingsBody) toStore(userID string) *store.UserSettings {
	return &store.UserSettings{
		UserID:                userID,
		HoursMonday:           b.HoursMonday,
		HoursTuesday:          b.HoursTuesday,
		HoursWednesday:        b.HoursWednesday,
		HoursThursday:         b.HoursThursday,
		HoursFriday:           b.HoursFriday,
		HoursSaturday:         b.HoursSaturday,
		HoursSunday:           b.HoursSunday,
		VacationDays:          b.VacationDays,
		AutoBreak:             b.AutoBreak,
		BreakDurationMinutes:  b.BreakDurationMinutes,
		BreakThresholdMinutes: b.BreakThresholdMinutes,
		BreakStartTime:        b.BreakStartTime,
	}
}

type auditResponse struct {
	ID         string            `json:"_id"`
	ActorID    string            `json:"actorId"`
	Action     store.AuditAction `json:"action"`
	TargetType string            `json:"targetType"`
	TargetID   string            `json:"targetId"`
	Timestamp  time.Time         `json:"timestamp"`
	Detail     map[string]any    `json:"detail,omitempty"`
}

func toAuditResponses(entries []store.AuditEntry) []auditResponse {
	out := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditResponse{
			ID:         e.ID,
			ActorID:    e.ActorUserID,
			Action:     e.Action,
			TargetType: e.TargetType,
			TargetID:   e.TargetID,
			Timestamp:  e.Timestamp,
			Detail:     e.Detail,
		})
	}
	return out
}
