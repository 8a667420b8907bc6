package httpapi

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/Yellowatch/boxumco"
	"github.com/Yellowatch/boxumco/media"
	"go.uber.org/zap"
)

func (s *Server) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRegistrationRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Password1 != req.Password2 {
		s.writeError(w, r, errPasswordMismatch)
		return
	}

	s.register(w, r, req.Email, req.Password1, boxumco.ClientProfile{
		Contact:     req.contact(),
		CompanyName: req.CompanyName,
	})
}

func (s *Server) handleRegisterSupplier(w http.ResponseWriter, r *http.Request) {
	var (
		req     SupplierRegistrationRequest
		logoKey string
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		if err := r.ParseMultipartForm(s.maxBody); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		req = supplierFromForm(r)
		if req.Password1 != req.Password2 {
			s.writeError(w, r, errPasswordMismatch)
			return
		}

		file, _, err := r.FormFile("company_logo")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		default:
			defer file.Close()
			if s.logos == nil {
				s.writeError(w, r, errLogosDisabled)
				return
			}
			logoKey, err = s.logos.PutLogo(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)), file)
			if errors.Is(err, media.ErrUnsupportedImage) || errors.Is(err, media.ErrTooLarge) {
				s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
				return
			}
			if err != nil {
				s.writeError(w, r, err)
				return
			}
		}
	} else {
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if req.Password1 != req.Password2 {
			s.writeError(w, r, errPasswordMismatch)
			return
		}
	}

	if err := s.register(w, r, req.Email, req.Password1, req.profile(logoKey)); err != nil && logoKey != "" {
		s.discardLogo(r.Context(), logoKey)
	}
}

// discardLogo removes a logo uploaded for a registration that was rejected.
func (s *Server) discardLogo(ctx context.Context, key string) {
	if err := s.logos.DeleteLogo(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("orphaned logo left in bucket", zap.String("key", key), zap.Error(err))
	}
}

func supplierFromForm(r *http.Request) SupplierRegistrationRequest {
	f := r.FormValue
	return SupplierRegistrationRequest{
		registrationCredentials: registrationCredentials{
			Email:     f("email"),
			Password1: f("password1"),
			Password2: f("password2"),
		},
		contactFields: contactFields{
			FirstName: f("first_name"),
			LastName:  f("last_name"),
			Number:    f("number"),
			Address:   f("address"),
			Postcode:  f("postcode"),
			DOB:       f("dob"),
		},
		CompanyName:        f("company_name"),
		CompanyAddress:     f("company_address"),
		CompanyDescription: f("company_description"),
		CompanyPostcode:    f("company_postcode"),
		CompanyNumber:      f("company_number"),
		CompanyType:        f("company_type"),
		Subcategories:      splitList(f("subcategories")),
	}
}

// register writes the outcome of engine.Register and returns its error.
func (s *Server) register(w http.ResponseWriter, r *http.Request, email, password string, profile boxumco.Profile) error {
	res, err := s.engine.Register(r.Context(), boxumco.RegisterRequest{
		Email:    email,
		Password: password,
		Profile:  profile,
	})
	if err != nil {
		s.writeError(w, r, err)
		return err
	}
	writeJSON(w, http.StatusCreated, RegistrationResponse{
		UserID:             res.UserID,
		UserType:           res.AccountType.String(),
		VerificationQueued: res.VerificationQueued,
	})
	return nil
}

func (s *Server) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := s.engine.ConfirmEmail(r.Context(), q.Get("uid"), q.Get("token")); err != nil {
		if boxumco.ErrorCode(err) == "internal" {
			s.logger.Error("confirm email failed", zap.Error(err))
		}
		http.Redirect(w, r, s.redirect.fail, http.StatusFound)
		return
	}
	http.Redirect(w, r, s.redirect.ok, http.StatusFound)
}

func (s *Server) handleResendEmail(w http.ResponseWriter, r *http.Request) {
	var req ResendEmailRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.RequestEmailVerification(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "verification email sent"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeLoginResult(w, res)
}

func (s *Server) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	var req MFAVerifyRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.engine.CompleteMFA(r.Context(), req.TempToken, req.MFACode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeLoginResult(w, res)
}

func (s *Server) writeLoginResult(w http.ResponseWriter, res *boxumco.LoginResult) {
	if res.MFARequired {
		writeJSON(w, http.StatusAccepted, ChallengeResponse{
			TempToken:   res.ChallengeToken,
			MFARequired: true,
		})
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		Access:   res.Tokens.Access,
		Refresh:  res.Tokens.Refresh,
		UserID:   res.UserID,
		UserType: res.AccountType.String(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.engine.Refresh(r.Context(), req.Refresh)
	if err != nil {
		if errors.Is(err, boxumco.ErrInvalidToken) || errors.Is(err, boxumco.ErrExpired) {
			s.writeErrorStatus(w, r, http.StatusUnauthorized, err)
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{Access: res.Access})
}
