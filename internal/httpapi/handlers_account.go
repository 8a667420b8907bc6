package httpapi

import (
	"net/http"

	"github.com/Yellowatch/boxumco"
	"github.com/Yellowatch/boxumco/middleware"
)

func (s *Server) identity(w http.ResponseWriter, r *http.Request) (*boxumco.AuthResult, bool) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		s.writeError(w, r, boxumco.ErrUnauthorized)
		return nil, false
	}
	return res, true
}

func (s *Server) handleMFAEnable(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	enrollment, err := s.engine.BeginEnrollment(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MFAEnableResponse{
		ProvisioningURI: enrollment.ProvisioningURI,
		QRCode:          enrollment.QRImage,
		Secret:          enrollment.Secret,
	})
}

func (s *Server) handleMFAConfirm(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req MFACodeRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.engine.ConfirmEnrollment(r.Context(), id.UserID, req.MFACode); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "mfa enabled"})
}

func (s *Server) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	if err := s.engine.DisableSecondFactor(r.Context(), id.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "mfa disabled"})
}

func (s *Server) handleMFAStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	enabled, err := s.engine.HasSecondFactor(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MFAStatusResponse{MFAEnabled: enabled})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.engine.ChangePassword(r.Context(), id.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "password changed"})
}

func (s *Server) handleUserDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	u, err := s.engine.GetUser(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userPayload(u))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req UserPayload
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	current, err := s.engine.GetUser(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	profile, err := req.profile(current.AccountType(), current.Profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.engine.UpdateProfile(r.Context(), id.UserID, profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userPayload(u))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req DeleteAccountRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.Confirm {
		s.writeError(w, r, errConfirmRequired)
		return
	}

	if err := s.engine.DeleteAccount(r.Context(), id.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "account deleted"})
}
