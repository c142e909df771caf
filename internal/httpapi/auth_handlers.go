package httpapi

import (
	"net/http"
	"time"

	"parkpass/internal/auth"
	"parkpass/internal/models"
)

type loginReq struct {
	Phone string `json:"phone"`
	Pin   string `json:"pin"`
}

type loginResp struct {
	Token string       `json:"token"`
	Staff models.Staff `json:"staff"`
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeBody(r, &req); err != nil || req.Phone == "" || req.Pin == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone and pin required"})
		return
	}

	staff, err := s.Staff.GetByPhone(r.Context(), req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}
	if staff == nil || !staff.IsActive || !auth.VerifyPin(staff.PinHash, req.Pin) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	dev, err := s.Devices.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	deviceId := ""
	if dev != nil {
		deviceId = dev.DeviceId
	}

	session := models.Session{
		StaffId:   staff.StaffId,
		StaffName: staff.Name,
		Role:      staff.Role,
		DeviceId:  deviceId,
		ExpiresAt: time.Now().UTC().Add(s.Cfg.SessionTTL),
	}
	token, err := auth.NewToken(s.Cfg.JWTSecret, session)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResp{Token: token, Staff: *staff})
}
